package repository

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InvoiceStore struct {
	db *gorm.DB
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order")
}

func (s *InvoiceStore) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	var inv models.Invoice
	err := scoped(ctx, s.db, "invoices").
		Preload("LineItems", orderedLines).
		Preload("Adjustments").
		Where("invoices.id = ?", id).
		First(&inv).Error
	if err != nil {
		return nil, translate(err, "invoice")
	}
	return &inv, nil
}

func (s *InvoiceStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	return translate(s.db.WithContext(ctx).Create(inv).Error, "invoice number "+inv.InvoiceNumber)
}

// UpdateInvoice is a compare-and-swap on version.
func (s *InvoiceStore) UpdateInvoice(ctx context.Context, inv *models.Invoice) error {
	next := *inv
	next.Version = inv.Version + 1
	res := s.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		Select("*").
		Omit("id", "tenant_id", "invoice_number", "invoice_year", "sequence_no", "created_at", clause.Associations).
		Updates(&next)
	if res.Error != nil {
		return translate(res.Error, "invoice")
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := scoped(ctx, s.db, "invoices").Model(&models.Invoice{}).Where("id = ?", inv.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return utils.NotFound("invoice not found")
		}
		return utils.Conflict("invoice %s was modified by another request", inv.InvoiceNumber)
	}
	inv.Version = next.Version
	return nil
}

func (s *InvoiceStore) ReplaceInvoiceLines(ctx context.Context, inv *models.Invoice) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceLineItem{}).Error; err != nil {
		return err
	}
	if err := db.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceAdjustment{}).Error; err != nil {
		return err
	}
	if len(inv.LineItems) > 0 {
		if err := db.Create(&inv.LineItems).Error; err != nil {
			return err
		}
	}
	if len(inv.Adjustments) > 0 {
		if err := db.Create(&inv.Adjustments).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *InvoiceStore) DeleteInvoice(ctx context.Context, id string) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("invoice_id = ?", id).Delete(&models.InvoiceLineItem{}).Error; err != nil {
		return err
	}
	if err := db.Where("invoice_id = ?", id).Delete(&models.InvoiceAdjustment{}).Error; err != nil {
		return err
	}
	res := scoped(ctx, s.db, "invoices").Where("id = ?", id).Delete(&models.Invoice{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NotFound("invoice not found")
	}
	return nil
}

// DetachShipment keeps the billed lines but drops their link to the parcel.
func (s *InvoiceStore) DetachShipment(ctx context.Context, parcelId string) error {
	tenantInvoices := scoped(ctx, s.db, "invoices").Model(&models.Invoice{}).Select("id")
	return s.db.WithContext(ctx).Model(&models.InvoiceLineItem{}).
		Where("shipment_id = ? AND invoice_id IN (?)", parcelId, tenantInvoices).
		Update("shipment_id", nil).Error
}

func (s *InvoiceStore) ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Invoice, error) {
	var invoices []*models.Invoice
	q := scoped(ctx, s.db, "invoices").
		Where("status NOT IN ?", []models.InvoiceStatus{models.InvoiceStatusPaid, models.InvoiceStatusOverdue}).
		Where("due_date IS NOT NULL AND due_date < ?", utils.DateOnly(now)).
		Order("due_date, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&invoices).Error
	return invoices, err
}

func (s *InvoiceStore) MaxInvoiceSequence(ctx context.Context, year int) (int64, error) {
	var max int64
	err := scoped(ctx, s.db, "invoices").Model(&models.Invoice{}).
		Where("invoice_year = ?", year).
		Select("COALESCE(MAX(sequence_no), 0)").
		Scan(&max).Error
	return max, err
}

type PaymentStore struct {
	db *gorm.DB
}

func (s *PaymentStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return fetch[models.Payment](ctx, s.db, "payment", id)
}

func (s *PaymentStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	return translate(s.db.WithContext(ctx).Create(p).Error, "payment")
}

func (s *PaymentStore) DeletePayment(ctx context.Context, id string) error {
	res := scoped(ctx, s.db, "payments").Where("id = ?", id).Delete(&models.Payment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NotFound("payment not found")
	}
	return nil
}

func (s *PaymentStore) SumPayments(ctx context.Context, invoiceId string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := scoped(ctx, s.db, "payments").Model(&models.Payment{}).
		Where("invoice_id = ?", invoiceId).
		Select("COALESCE(SUM(amount), 0)").
		Row().Scan(&total)
	return total, err
}

func (s *PaymentStore) DetachPayments(ctx context.Context, invoiceId string) error {
	return scoped(ctx, s.db, "payments").Model(&models.Payment{}).
		Where("invoice_id = ?", invoiceId).
		Update("invoice_id", nil).Error
}
