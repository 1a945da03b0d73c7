package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const InvoiceNumberPrefix = "INV"

type Invoice struct {
	ID               string           `gorm:"size:36;primaryKey" json:"id"`
	TenantId         string           `gorm:"size:64;not null;index;uniqueIndex:uniq_invoice_number,priority:1" json:"tenant_id"`
	ClientId         string           `gorm:"size:36;index;not null" json:"client_id"`
	TripId           *string          `gorm:"size:36;index" json:"trip_id"`
	InvoiceNumber    string           `gorm:"size:30;not null;uniqueIndex:uniq_invoice_number,priority:2" json:"invoice_number"`
	InvoiceYear      int              `gorm:"not null;index" json:"invoice_year"`
	SequenceNo       int64            `gorm:"not null" json:"sequence_no"`
	Currency         string           `gorm:"size:3" json:"currency"`
	Status           InvoiceStatus    `gorm:"size:20;index;not null" json:"status"`
	InvoiceDate      time.Time        `gorm:"not null" json:"invoice_date"`
	DueDate          *time.Time       `gorm:"index" json:"due_date"`
	Subtotal         decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	AdjustmentsTotal decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"adjustments_total"`
	Total            decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"total"`
	TotalOverride    *decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_override"`

	// Client details frozen at creation.
	ClientName      string `gorm:"size:255" json:"client_name"`
	ClientAddress   string `gorm:"type:text" json:"client_address"`
	ClientVatNumber string `gorm:"size:64" json:"client_vat_number"`
	ClientContact   string `gorm:"size:100" json:"client_contact"`
	ClientPhone     string `gorm:"size:30" json:"client_phone"`

	SentAt      *time.Time          `json:"sent_at"`
	SentBy      *string             `gorm:"size:100" json:"sent_by"`
	PaidAt      *time.Time          `json:"paid_at"`
	Notes       string              `gorm:"type:text" json:"notes"`
	Version     int                 `gorm:"not null;default:1" json:"version"`
	LineItems   []InvoiceLineItem   `gorm:"foreignKey:InvoiceId" json:"line_items"`
	Adjustments []InvoiceAdjustment `gorm:"foreignKey:InvoiceId" json:"adjustments"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceLineItem struct {
	ID            string          `gorm:"size:36;primaryKey" json:"id"`
	InvoiceId     string          `gorm:"size:36;index;not null" json:"invoice_id"`
	ShipmentId    *string         `gorm:"size:36;index" json:"shipment_id"`
	Description   string          `gorm:"size:255" json:"description"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	Rate          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Weight        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"weight"`
	Length        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"length"`
	Width         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"width"`
	Height        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"height"`
	RecipientName string          `gorm:"size:100" json:"recipient_name"`
	SortOrder     int             `json:"sort_order"`
}

type InvoiceAdjustment struct {
	ID          string          `gorm:"size:36;primaryKey" json:"id"`
	InvoiceId   string          `gorm:"size:36;index;not null" json:"invoice_id"`
	Type        AdjustmentType  `gorm:"size:20;not null" json:"type"`
	Description string          `gorm:"size:255" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
}

func (inv *Invoice) BeforeCreate(tx *gorm.DB) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	return nil
}

func (item *InvoiceLineItem) BeforeCreate(tx *gorm.DB) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	return nil
}

func (adj *InvoiceAdjustment) BeforeCreate(tx *gorm.DB) error {
	if adj.ID == "" {
		adj.ID = uuid.NewString()
	}
	return nil
}

type NewInvoiceLineItem struct {
	ShipmentId    *string         `json:"shipment_id"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	Rate          decimal.Decimal `json:"rate"`
	Weight        decimal.Decimal `json:"weight"`
	Length        decimal.Decimal `json:"length"`
	Width         decimal.Decimal `json:"width"`
	Height        decimal.Decimal `json:"height"`
	RecipientName string          `json:"recipient_name"`
}

type NewInvoiceAdjustment struct {
	Type        AdjustmentType  `json:"type" binding:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type NewInvoice struct {
	ClientId         string                 `json:"client_id" binding:"required"`
	TripId           *string                `json:"trip_id"`
	InvoiceDate      *time.Time             `json:"invoice_date"`
	DueDate          *time.Time             `json:"due_date"`
	PaymentTermsDays *int                   `json:"payment_terms_days" binding:"omitempty,min=0,max=3650"`
	Currency         string                 `json:"currency"`
	Status           InvoiceStatus          `json:"status"`
	TotalOverride    *decimal.Decimal       `json:"total_override"`
	Notes            string                 `json:"notes"`
	LineItems        []NewInvoiceLineItem   `json:"line_items" binding:"dive"`
	Adjustments      []NewInvoiceAdjustment `json:"adjustments" binding:"dive"`
}

type UpdateInvoice struct {
	Status        *InvoiceStatus          `json:"status"`
	DueDate       *time.Time              `json:"due_date"`
	TotalOverride *decimal.Decimal        `json:"total_override"`
	ClearOverride bool                    `json:"clear_override"`
	Notes         *string                 `json:"notes"`
	LineItems     *[]NewInvoiceLineItem   `json:"line_items"`
	Adjustments   *[]NewInvoiceAdjustment `json:"adjustments"`
}

func FormatInvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%04d", InvoiceNumberPrefix, year, seq)
}

// DueDateFor adds the payment terms to the invoice date.
func DueDateFor(invoiceDate time.Time, termsDays int) time.Time {
	return invoiceDate.AddDate(0, 0, termsDays)
}

func (adj InvoiceAdjustment) SignedAmount() decimal.Decimal {
	if adj.Type == AdjustmentTypeSubtraction {
		return adj.Amount.Neg()
	}
	return adj.Amount
}

// RecalculateTotals derives every total from the current items and adjustments.
// Totals are never patched incrementally.
func (inv *Invoice) RecalculateTotals() {
	subtotal := decimal.Zero
	for i := range inv.LineItems {
		inv.LineItems[i].Amount = inv.LineItems[i].Quantity.Mul(inv.LineItems[i].Rate)
		subtotal = subtotal.Add(inv.LineItems[i].Amount)
	}
	adjustments := decimal.Zero
	for _, adj := range inv.Adjustments {
		adjustments = adjustments.Add(adj.SignedAmount())
	}
	inv.Subtotal = subtotal
	inv.AdjustmentsTotal = adjustments
	if inv.TotalOverride != nil {
		inv.Total = *inv.TotalOverride
	} else {
		inv.Total = subtotal.Add(adjustments)
	}
}

func (inv *Invoice) Outstanding(paidTotal decimal.Decimal) decimal.Decimal {
	return inv.Total.Sub(paidTotal)
}

// IsOverdue is the single overdue rule: unsettled, not yet flagged, and past its due date.
// It is shared by the read path and the reconciliation job.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	if inv.Status == InvoiceStatusPaid || inv.Status == InvoiceStatusOverdue {
		return false
	}
	if inv.DueDate == nil {
		return false
	}
	due := inv.DueDate.UTC()
	today := now.UTC()
	dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	nowDay := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return nowDay.After(dueDay)
}

func (inv *Invoice) MarkSent(by string, now time.Time) {
	inv.Status = InvoiceStatusSent
	if inv.SentAt == nil {
		inv.SentAt = &now
	}
	inv.SentBy = &by
}

func (inv *Invoice) MarkPaid(now time.Time) {
	inv.Status = InvoiceStatusPaid
	inv.PaidAt = &now
}

// ReopenAfterRefund is used when a payment is removed from a paid invoice.
func (inv *Invoice) ReopenAfterRefund(now time.Time) {
	inv.PaidAt = nil
	inv.Status = InvoiceStatusSent
	if inv.IsOverdue(now) {
		inv.Status = InvoiceStatusOverdue
	}
}

// ShipmentIds lists the parcels referenced by line items.
func (inv *Invoice) ShipmentIds() []string {
	var ids []string
	seen := map[string]bool{}
	for _, item := range inv.LineItems {
		if item.ShipmentId != nil && !seen[*item.ShipmentId] {
			seen[*item.ShipmentId] = true
			ids = append(ids, *item.ShipmentId)
		}
	}
	return ids
}

// LineItemFromParcel bills a parcel at the given rate per unit of weight.
func LineItemFromParcel(p *Parcel, rate decimal.Decimal) InvoiceLineItem {
	id := p.ID
	description := p.Description
	if description == "" {
		description = "Shipment " + p.ID
	}
	qty := p.BillableQuantity()
	return InvoiceLineItem{
		ID:            uuid.NewString(),
		ShipmentId:    &id,
		Description:   description,
		Quantity:      qty,
		Rate:          rate,
		Amount:        qty.Mul(rate),
		Weight:        p.Weight,
		Length:        p.Length,
		Width:         p.Width,
		Height:        p.Height,
		RecipientName: p.RecipientName,
	}
}
