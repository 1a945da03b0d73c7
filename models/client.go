package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Client struct {
	ID               string          `gorm:"size:36;primaryKey" json:"id"`
	TenantId         string          `gorm:"size:64;index;not null" json:"tenant_id"`
	Name             string          `gorm:"size:255;not null" json:"name"`
	Address          string          `gorm:"type:text" json:"address"`
	VatNumber        string          `gorm:"size:64" json:"vat_number"`
	ContactName      string          `gorm:"size:100" json:"contact_name"`
	Phone            string          `gorm:"size:30" json:"phone"`
	Email            string          `gorm:"size:100" json:"email"`
	PaymentTermsDays int             `gorm:"default:30" json:"payment_terms_days"`
	DefaultRate      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"default_rate"`
	Currency         string          `gorm:"size:3" json:"currency"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type NewClient struct {
	Name             string          `json:"name" binding:"required,max=255"`
	Address          string          `json:"address"`
	VatNumber        string          `json:"vat_number" binding:"max=64"`
	ContactName      string          `json:"contact_name" binding:"max=100"`
	Phone            string          `json:"phone"`
	PhoneRegion      string          `json:"phone_region" binding:"omitempty,len=2"`
	Email            string          `json:"email" binding:"omitempty,email"`
	PaymentTermsDays *int            `json:"payment_terms_days" binding:"omitempty,min=0,max=3650"`
	DefaultRate      decimal.Decimal `json:"default_rate"`
	Currency         string          `json:"currency" binding:"omitempty,len=3"`
}
