package models

import "time"

type Notification struct {
	ID            int       `gorm:"primary_key" json:"id"`
	TenantId      string    `gorm:"size:64;index;not null" json:"tenant_id"`
	UserId        string    `gorm:"size:36;index;not null" json:"user_id"`
	EventId       string    `gorm:"size:36;index" json:"event_id"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	Message       string    `gorm:"type:text" json:"message"`
	ReferenceType string    `gorm:"size:50" json:"reference_type"`
	ReferenceId   string    `gorm:"size:36" json:"reference_id"`
	IsRead        bool      `gorm:"default:false" json:"is_read"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
