package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment is an append-only record of money received against an invoice.
type Payment struct {
	ID          string          `gorm:"size:36;primaryKey" json:"id"`
	TenantId    string          `gorm:"size:64;index;not null" json:"tenant_id"`
	ClientId    string          `gorm:"size:36;index;not null" json:"client_id"`
	InvoiceId   *string         `gorm:"size:36;index" json:"invoice_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaymentDate time.Time       `gorm:"not null" json:"payment_date"`
	Method      PaymentMethod   `gorm:"size:20;not null" json:"method"`
	Reference   string          `gorm:"size:100" json:"reference"`
	Notes       string          `gorm:"type:text" json:"notes"`
	RecordedBy  string          `gorm:"size:100" json:"recorded_by"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type NewPayment struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate *time.Time      `json:"payment_date"`
	Method      PaymentMethod   `json:"method"`
	Reference   string          `json:"reference"`
	Notes       string          `json:"notes"`
}

type PaymentResult struct {
	PaymentId    string          `json:"payment_id"`
	NewPaidTotal decimal.Decimal `json:"new_paid_total"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	FullyPaid    bool            `json:"fully_paid"`
}
