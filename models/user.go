package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID        string    `gorm:"size:36;primaryKey" json:"id"`
	TenantId  string    `gorm:"size:64;index;not null" json:"tenant_id"`
	Username  string    `gorm:"size:100;not null;uniqueIndex" json:"username"`
	Name      string    `gorm:"size:100" json:"name"`
	Email     string    `gorm:"size:100" json:"email"`
	Role      UserRole  `gorm:"size:20;index;not null" json:"role"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
