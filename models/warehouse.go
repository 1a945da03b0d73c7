package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Warehouse struct {
	ID        string    `gorm:"size:36;primaryKey" json:"id"`
	TenantId  string    `gorm:"size:64;index;not null" json:"tenant_id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Address   string    `gorm:"type:text" json:"address"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (w *Warehouse) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

type NewWarehouse struct {
	Name    string `json:"name" binding:"required,max=100"`
	Address string `json:"address"`
}
