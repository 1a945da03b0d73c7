package services

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const overdueBatchSize = 200

// LedgerService owns invoices and the payments recorded against them.
type LedgerService struct {
	Deps
}

func NewLedgerService(deps Deps) *LedgerService {
	return &LedgerService{Deps: deps}
}

type InvoiceView struct {
	*models.Invoice
	PaidTotal   decimal.Decimal `json:"paid_total"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type InvoiceFromTrip struct {
	ClientId         string               `json:"client_id" binding:"required"`
	TripId           string               `json:"trip_id" binding:"required"`
	Rate             *decimal.Decimal     `json:"rate"`
	PaymentTermsDays *int                 `json:"payment_terms_days" binding:"omitempty,min=0,max=3650"`
	Status           models.InvoiceStatus `json:"status"`
	Notes            string               `json:"notes"`
}

type ReassignResult struct {
	ParcelId     string  `json:"parcel_id"`
	Success      bool    `json:"success"`
	OldInvoiceId *string `json:"old_invoice_id"`
	NewInvoiceId string  `json:"new_invoice_id"`
	Error        string  `json:"error,omitempty"`
}

func newView(inv *models.Invoice, paid decimal.Decimal) *InvoiceView {
	return &InvoiceView{Invoice: inv, PaidTotal: paid, Outstanding: inv.Outstanding(paid)}
}

func buildAdjustments(invoiceId string, inputs []models.NewInvoiceAdjustment) ([]models.InvoiceAdjustment, error) {
	adjustments := make([]models.InvoiceAdjustment, 0, len(inputs))
	for i, in := range inputs {
		if !in.Type.IsValid() {
			return nil, utils.InvalidRequest("adjustment %d has invalid type %q", i+1, in.Type)
		}
		if in.Amount.IsNegative() {
			return nil, utils.InvalidRequest("adjustment %d amount must not be negative", i+1)
		}
		adjustments = append(adjustments, models.InvoiceAdjustment{
			ID:          uuid.NewString(),
			InvoiceId:   invoiceId,
			Type:        in.Type,
			Description: in.Description,
			Amount:      in.Amount,
		})
	}
	return adjustments, nil
}

// buildLineItems validates the items and any parcels they reference.
// A referenced parcel must exist and belong to the invoiced client.
func buildLineItems(ctx context.Context, tx Stores, inv *models.Invoice, inputs []models.NewInvoiceLineItem) ([]models.InvoiceLineItem, error) {
	items := make([]models.InvoiceLineItem, 0, len(inputs))
	seen := map[string]bool{}
	for i, in := range inputs {
		if in.Quantity.IsNegative() || in.Rate.IsNegative() {
			return nil, utils.InvalidRequest("line item %d: quantity and rate must not be negative", i+1)
		}
		item := models.InvoiceLineItem{
			ID:            uuid.NewString(),
			InvoiceId:     inv.ID,
			Description:   in.Description,
			Quantity:      in.Quantity,
			Rate:          in.Rate,
			Weight:        in.Weight,
			Length:        in.Length,
			Width:         in.Width,
			Height:        in.Height,
			RecipientName: in.RecipientName,
			SortOrder:     i,
		}
		if in.ShipmentId != nil && *in.ShipmentId != "" {
			parcelId := *in.ShipmentId
			if seen[parcelId] {
				return nil, utils.InvalidRequest("parcel %s is listed more than once", parcelId)
			}
			seen[parcelId] = true
			p, err := tx.Parcels.GetParcel(ctx, parcelId)
			if err != nil {
				return nil, err
			}
			if p.ClientId != inv.ClientId {
				return nil, utils.InvalidRequest("parcel %s belongs to another client", parcelId)
			}
			if p.InvoiceId != nil && *p.InvoiceId != inv.ID {
				return nil, utils.InvalidRequest("parcel %s is already invoiced", parcelId)
			}
			item.ShipmentId = &parcelId
		}
		items = append(items, item)
	}
	return items, nil
}

// syncParcelLinks points the parcels in the item set at the invoice and releases the removed ones.
func syncParcelLinks(ctx context.Context, tx Stores, inv *models.Invoice, previous []string) error {
	current := map[string]bool{}
	for _, id := range inv.ShipmentIds() {
		current[id] = true
		p, err := tx.Parcels.GetParcel(ctx, id)
		if err != nil {
			return err
		}
		if p.InvoiceId != nil && *p.InvoiceId == inv.ID {
			continue
		}
		invId := inv.ID
		p.InvoiceId = &invId
		if err := tx.Parcels.UpdateParcel(ctx, p); err != nil {
			return err
		}
	}
	for _, id := range previous {
		if current[id] {
			continue
		}
		p, err := tx.Parcels.GetParcel(ctx, id)
		if utils.IsKind(err, utils.ErrorKindNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if p.InvoiceId != nil && *p.InvoiceId == inv.ID {
			p.InvoiceId = nil
			if err := tx.Parcels.UpdateParcel(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *LedgerService) CreateInvoice(ctx context.Context, input models.NewInvoice) (*InvoiceView, error) {
	ctx, span := startSpan(ctx, "LedgerService.CreateInvoice")
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if input.Status == "" {
		input.Status = models.InvoiceStatusDraft
	}
	if input.Status != models.InvoiceStatusDraft && input.Status != models.InvoiceStatusSent {
		return nil, utils.InvalidRequest("a new invoice must be draft or sent, got %q", input.Status)
	}
	if input.TotalOverride != nil && input.TotalOverride.IsNegative() {
		return nil, utils.InvalidRequest("total override must not be negative")
	}
	now := s.now()
	invoiceDate := now
	if input.InvoiceDate != nil {
		invoiceDate = input.InvoiceDate.UTC()
	}

	var inv *models.Invoice
	for attempt := 0; ; attempt++ {
		seq, err := s.Sequencer.NextInvoiceSequence(ctx, invoiceDate.Year())
		if err != nil {
			return nil, err
		}
		inv = &models.Invoice{
			ID:            uuid.NewString(),
			TenantId:      actor.TenantId,
			ClientId:      input.ClientId,
			InvoiceYear:   invoiceDate.Year(),
			SequenceNo:    seq,
			InvoiceNumber: models.FormatInvoiceNumber(invoiceDate.Year(), seq),
			Status:        models.InvoiceStatusDraft,
			InvoiceDate:   invoiceDate,
			TotalOverride: input.TotalOverride,
			Notes:         input.Notes,
			Version:       1,
		}
		err = s.UoW.WithinTx(ctx, func(tx Stores) error {
			client, err := tx.Clients.GetClient(ctx, input.ClientId)
			if err != nil {
				return err
			}
			if input.TripId != nil && *input.TripId != "" {
				if _, err := tx.Trips.GetTrip(ctx, *input.TripId); err != nil {
					return err
				}
				tripId := *input.TripId
				inv.TripId = &tripId
			}
			inv.ClientName = client.Name
			inv.ClientAddress = client.Address
			inv.ClientVatNumber = client.VatNumber
			inv.ClientContact = client.ContactName
			inv.ClientPhone = client.Phone
			inv.Currency = client.Currency
			if input.Currency != "" {
				inv.Currency = input.Currency
			}
			switch {
			case input.DueDate != nil:
				due := input.DueDate.UTC()
				inv.DueDate = &due
			case input.PaymentTermsDays != nil:
				due := models.DueDateFor(invoiceDate, *input.PaymentTermsDays)
				inv.DueDate = &due
			default:
				due := models.DueDateFor(invoiceDate, client.PaymentTermsDays)
				inv.DueDate = &due
			}

			if inv.LineItems, err = buildLineItems(ctx, tx, inv, input.LineItems); err != nil {
				return err
			}
			if inv.Adjustments, err = buildAdjustments(inv.ID, input.Adjustments); err != nil {
				return err
			}
			inv.RecalculateTotals()
			if input.Status == models.InvoiceStatusSent {
				inv.MarkSent(actor.DisplayName(), now)
			}
			if err := tx.Invoices.CreateInvoice(ctx, inv); err != nil {
				return err
			}
			return syncParcelLinks(ctx, tx, inv, nil)
		})
		if err == nil {
			break
		}
		if attempt == 0 && utils.IsKind(err, utils.ErrorKindConflict) {
			continue
		}
		return nil, err
	}

	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventInvoiceCreated, models.EntityInvoice, inv.ID, "", string(inv.Status), now).
		WithPayload(map[string]any{"invoice_number": inv.InvoiceNumber, "total": utils.FormatMoney(inv.Total)}))
	return newView(inv, decimal.Zero), nil
}

// CreateFromTrip bills every uninvoiced parcel the client has on the trip.
func (s *LedgerService) CreateFromTrip(ctx context.Context, input InvoiceFromTrip) (*InvoiceView, error) {
	if _, err := ActorFromContext(ctx); err != nil {
		return nil, err
	}
	stores := s.UoW.Stores()
	client, err := stores.Clients.GetClient(ctx, input.ClientId)
	if err != nil {
		return nil, err
	}
	if _, err := stores.Trips.GetTrip(ctx, input.TripId); err != nil {
		return nil, err
	}
	parcels, err := stores.Parcels.ListParcelsByTrip(ctx, input.TripId)
	if err != nil {
		return nil, err
	}
	rate := client.DefaultRate
	if input.Rate != nil {
		rate = *input.Rate
	}

	var items []models.NewInvoiceLineItem
	for _, p := range parcels {
		if p.ClientId != client.ID || p.InvoiceId != nil {
			continue
		}
		item := models.LineItemFromParcel(p, rate)
		items = append(items, models.NewInvoiceLineItem{
			ShipmentId:    item.ShipmentId,
			Description:   item.Description,
			Quantity:      item.Quantity,
			Rate:          item.Rate,
			Weight:        item.Weight,
			Length:        item.Length,
			Width:         item.Width,
			Height:        item.Height,
			RecipientName: item.RecipientName,
		})
	}
	if len(items) == 0 {
		return nil, utils.InvalidRequest("trip has no uninvoiced parcels for this client")
	}
	tripId := input.TripId
	return s.CreateInvoice(ctx, models.NewInvoice{
		ClientId:         client.ID,
		TripId:           &tripId,
		PaymentTermsDays: input.PaymentTermsDays,
		Status:           input.Status,
		Notes:            input.Notes,
		LineItems:        items,
	})
}

// GetInvoice returns the invoice with its payment position.
// An invoice found past due is flagged overdue and saved on the way out.
func (s *LedgerService) GetInvoice(ctx context.Context, id string) (*InvoiceView, error) {
	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	stores := s.UoW.Stores()
	inv, err := stores.Invoices.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	paid, err := stores.Payments.SumPayments(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if inv.IsOverdue(now) {
		old := inv.Status
		inv.Status = models.InvoiceStatusOverdue
		if err := stores.Invoices.UpdateInvoice(ctx, inv); err != nil {
			return nil, err
		}
		_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventInvoiceStatusChanged, models.EntityInvoice, inv.ID, string(old), string(inv.Status), now))
	}
	return newView(inv, paid), nil
}

// applyStatus performs a manual status change.
func applyStatus(inv *models.Invoice, target models.InvoiceStatus, actor models.Actor, paid decimal.Decimal, now time.Time) error {
	if target == inv.Status {
		return nil
	}
	switch target {
	case models.InvoiceStatusSent:
		switch inv.Status {
		case models.InvoiceStatusDraft:
			inv.MarkSent(actor.DisplayName(), now)
		case models.InvoiceStatusPartial, models.InvoiceStatusOverdue:
			inv.Status = models.InvoiceStatusSent
		default:
			return utils.InvalidRequest("invoice cannot move from %s to sent", inv.Status)
		}
	case models.InvoiceStatusDraft:
		if inv.Status != models.InvoiceStatusSent || !paid.IsZero() {
			return utils.InvalidRequest("only a sent invoice without payments can return to draft")
		}
		inv.Status = models.InvoiceStatusDraft
	case models.InvoiceStatusPartial:
		if !paid.IsPositive() || paid.GreaterThanOrEqual(inv.Total) {
			return utils.InvalidRequest("partial status needs a payment short of the total")
		}
		inv.Status = models.InvoiceStatusPartial
	case models.InvoiceStatusPaid:
		if !actor.IsElevated() {
			return utils.Forbidden("only owners and admins can mark an invoice paid")
		}
		inv.MarkPaid(now)
	case models.InvoiceStatusOverdue:
		return utils.InvalidRequest("overdue status is set automatically")
	default:
		return utils.InvalidRequest("invalid invoice status %q", target)
	}
	return nil
}

func (s *LedgerService) UpdateInvoice(ctx context.Context, id string, input models.UpdateInvoice) (*InvoiceView, error) {
	ctx, span := startSpan(ctx, "LedgerService.UpdateInvoice", attribute.String("invoice_id", id))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if input.TotalOverride != nil && input.TotalOverride.IsNegative() {
		return nil, utils.InvalidRequest("total override must not be negative")
	}
	now := s.now()
	var inv *models.Invoice
	var paid decimal.Decimal
	var old models.InvoiceStatus
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		inv, err = tx.Invoices.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		old = inv.Status
		paid, err = tx.Payments.SumPayments(ctx, inv.ID)
		if err != nil {
			return err
		}

		linesChanged := input.LineItems != nil || input.Adjustments != nil
		if linesChanged {
			if !paid.IsZero() || inv.Status == models.InvoiceStatusPaid {
				return utils.InvalidRequest("invoice items cannot change once payments are recorded")
			}
			previous := inv.ShipmentIds()
			if input.LineItems != nil {
				if inv.LineItems, err = buildLineItems(ctx, tx, inv, *input.LineItems); err != nil {
					return err
				}
			}
			if input.Adjustments != nil {
				if inv.Adjustments, err = buildAdjustments(inv.ID, *input.Adjustments); err != nil {
					return err
				}
			}
			if err := syncParcelLinks(ctx, tx, inv, previous); err != nil {
				return err
			}
		}
		if input.ClearOverride {
			inv.TotalOverride = nil
		} else if input.TotalOverride != nil {
			override := *input.TotalOverride
			inv.TotalOverride = &override
		}
		if input.DueDate != nil {
			due := input.DueDate.UTC()
			inv.DueDate = &due
		}
		if input.Notes != nil {
			inv.Notes = *input.Notes
		}
		inv.RecalculateTotals()
		if inv.Total.LessThan(paid) {
			return utils.InvalidRequest("total %s is below the %s already paid", utils.FormatMoney(inv.Total), utils.FormatMoney(paid))
		}
		if input.Status != nil {
			if err := applyStatus(inv, *input.Status, actor, paid, now); err != nil {
				return err
			}
		}
		// A lowered total can leave the recorded payments covering it.
		if paid.IsPositive() && paid.GreaterThanOrEqual(inv.Total) && inv.Status != models.InvoiceStatusPaid {
			inv.MarkPaid(now)
		}
		if linesChanged {
			if err := tx.Invoices.ReplaceInvoiceLines(ctx, inv); err != nil {
				return err
			}
		}
		return tx.Invoices.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	events := []models.DomainEvent{models.NewDomainEvent(actor, models.EventInvoiceUpdated, models.EntityInvoice, inv.ID, "", "", now)}
	if old != inv.Status {
		events = append(events, models.NewDomainEvent(actor, models.EventInvoiceStatusChanged, models.EntityInvoice, inv.ID, string(old), string(inv.Status), now))
	}
	_ = s.emit(ctx, events...)
	return newView(inv, paid), nil
}

// DeleteInvoice removes a draft invoice. Owners and admins may delete any invoice.
// Parcels and payments stay and lose their link.
func (s *LedgerService) DeleteInvoice(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "LedgerService.DeleteInvoice", attribute.String("invoice_id", id))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return err
	}
	var status models.InvoiceStatus
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		inv, err := tx.Invoices.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != models.InvoiceStatusDraft && !actor.IsElevated() {
			return utils.Forbidden("only draft invoices can be deleted")
		}
		status = inv.Status
		parcels, err := tx.Parcels.ListParcelsByInvoice(ctx, inv.ID)
		if err != nil {
			return err
		}
		for _, p := range parcels {
			p.InvoiceId = nil
			if err := tx.Parcels.UpdateParcel(ctx, p); err != nil {
				return err
			}
		}
		if err := tx.Payments.DetachPayments(ctx, inv.ID); err != nil {
			return err
		}
		return tx.Invoices.DeleteInvoice(ctx, inv.ID)
	})
	if err != nil {
		return err
	}
	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventInvoiceDeleted, models.EntityInvoice, id, string(status), "", s.now()))
	return nil
}

func paymentLockKey(invoiceId string) string {
	return "invoice_payment:" + invoiceId
}

func (s *LedgerService) lock(ctx context.Context, key string) (func(), error) {
	if s.Locker == nil {
		return func() {}, nil
	}
	return s.Locker.Lock(ctx, key)
}

// RecordPayment adds a payment and settles the invoice when it reaches the total.
// Payments on one invoice are serialized.
func (s *LedgerService) RecordPayment(ctx context.Context, invoiceId string, input models.NewPayment) (*models.PaymentResult, error) {
	ctx, span := startSpan(ctx, "LedgerService.RecordPayment", attribute.String("invoice_id", invoiceId))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, utils.InvalidRequest("payment amount must be greater than zero")
	}
	if input.Method == "" {
		input.Method = models.PaymentMethodCash
	}
	if !input.Method.IsValid() {
		return nil, utils.InvalidRequest("invalid payment method %q", input.Method)
	}

	release, err := s.lock(ctx, paymentLockKey(invoiceId))
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now()
	result := &models.PaymentResult{}
	var inv *models.Invoice
	var old models.InvoiceStatus
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		inv, err = tx.Invoices.GetInvoice(ctx, invoiceId)
		if err != nil {
			return err
		}
		old = inv.Status
		paid, err := tx.Payments.SumPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		outstanding := inv.Outstanding(paid)
		if inv.Status == models.InvoiceStatusPaid || !outstanding.IsPositive() {
			return utils.InvalidRequest("invoice already fully paid")
		}
		if input.Amount.GreaterThan(outstanding) {
			return utils.InvalidRequest("payment %s exceeds outstanding %s", utils.FormatMoney(input.Amount), utils.FormatMoney(outstanding))
		}

		invId := inv.ID
		payment := &models.Payment{
			ID:          uuid.NewString(),
			TenantId:    actor.TenantId,
			ClientId:    inv.ClientId,
			InvoiceId:   &invId,
			Amount:      input.Amount,
			PaymentDate: now,
			Method:      input.Method,
			Reference:   input.Reference,
			Notes:       input.Notes,
			RecordedBy:  actor.DisplayName(),
		}
		if input.PaymentDate != nil {
			payment.PaymentDate = input.PaymentDate.UTC()
		}
		if err := tx.Payments.CreatePayment(ctx, payment); err != nil {
			return err
		}

		newPaid := paid.Add(input.Amount)
		if newPaid.GreaterThanOrEqual(inv.Total) {
			inv.MarkPaid(now)
		}
		// Saved even without a status change so concurrent writers trip the version check.
		if err := tx.Invoices.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		result.PaymentId = payment.ID
		result.NewPaidTotal = newPaid
		result.Outstanding = inv.Outstanding(newPaid)
		result.FullyPaid = inv.Status == models.InvoiceStatusPaid
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := []models.DomainEvent{
		models.NewDomainEvent(actor, models.EventPaymentRecorded, models.EntityPayment, result.PaymentId, "", "", now).
			WithPayload(map[string]string{"invoice_id": inv.ID, "amount": utils.FormatMoney(input.Amount)}),
	}
	if old != inv.Status {
		events = append(events, models.NewDomainEvent(actor, models.EventInvoiceStatusChanged, models.EntityInvoice, inv.ID, string(old), string(inv.Status), now))
	}
	_ = s.emit(ctx, events...)
	return result, nil
}

// DeletePayment removes a payment and reopens a paid invoice that is no longer settled.
func (s *LedgerService) DeletePayment(ctx context.Context, paymentId string) error {
	ctx, span := startSpan(ctx, "LedgerService.DeletePayment", attribute.String("payment_id", paymentId))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return err
	}
	if !actor.IsElevated() {
		return utils.Forbidden("only owners and admins can delete payments")
	}
	payment, err := s.UoW.Stores().Payments.GetPayment(ctx, paymentId)
	if err != nil {
		return err
	}
	if payment.InvoiceId != nil {
		release, err := s.lock(ctx, paymentLockKey(*payment.InvoiceId))
		if err != nil {
			return err
		}
		defer release()
	}

	now := s.now()
	var events []models.DomainEvent
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		if err := tx.Payments.DeletePayment(ctx, payment.ID); err != nil {
			return err
		}
		if payment.InvoiceId == nil {
			return nil
		}
		inv, err := tx.Invoices.GetInvoice(ctx, *payment.InvoiceId)
		if utils.IsKind(err, utils.ErrorKindNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		paid, err := tx.Payments.SumPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		if inv.Status == models.InvoiceStatusPaid && paid.LessThan(inv.Total) {
			inv.ReopenAfterRefund(now)
			events = append(events, models.NewDomainEvent(actor, models.EventInvoiceStatusChanged, models.EntityInvoice, inv.ID, string(models.InvoiceStatusPaid), string(inv.Status), now))
		}
		return tx.Invoices.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return err
	}
	events = append([]models.DomainEvent{
		models.NewDomainEvent(actor, models.EventPaymentDeleted, models.EntityPayment, payment.ID, "", "", now).
			WithPayload(map[string]string{"amount": utils.FormatMoney(payment.Amount)}),
	}, events...)
	_ = s.emit(ctx, events...)
	return nil
}

// ReconcileOverdue flags every past-due invoice visible to ctx and returns how many changed.
// Version conflicts are skipped; the next sweep or read picks them up.
func (s *LedgerService) ReconcileOverdue(ctx context.Context, now time.Time) (int, error) {
	ctx, span := startSpan(ctx, "LedgerService.ReconcileOverdue")
	defer span.End()

	stores := s.UoW.Stores()
	flipped := 0
	for {
		candidates, err := stores.Invoices.ListOverdueCandidates(ctx, now, overdueBatchSize)
		if err != nil {
			return flipped, err
		}
		changed := 0
		var events []models.DomainEvent
		for _, inv := range candidates {
			if !inv.IsOverdue(now) {
				continue
			}
			old := inv.Status
			inv.Status = models.InvoiceStatusOverdue
			if err := stores.Invoices.UpdateInvoice(ctx, inv); err != nil {
				if utils.IsKind(err, utils.ErrorKindConflict) || utils.IsKind(err, utils.ErrorKindNotFound) {
					continue
				}
				return flipped, err
			}
			changed++
			system := models.Actor{TenantId: inv.TenantId, UserName: "system"}
			events = append(events, models.NewDomainEvent(system, models.EventInvoiceStatusChanged, models.EntityInvoice, inv.ID, string(old), string(inv.Status), now))
		}
		flipped += changed
		_ = s.emit(ctx, events...)
		if len(candidates) < overdueBatchSize || changed == 0 {
			return flipped, nil
		}
	}
}

// Reassign moves parcels onto the target invoice one by one.
// A failure on one parcel does not stop the others.
func (s *LedgerService) Reassign(ctx context.Context, targetInvoiceId string, parcelIds []string) ([]ReassignResult, error) {
	ctx, span := startSpan(ctx, "LedgerService.Reassign", attribute.String("invoice_id", targetInvoiceId))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := requireIds(parcelIds, "parcel")
	if err != nil {
		return nil, err
	}
	stores := s.UoW.Stores()
	target, err := stores.Invoices.GetInvoice(ctx, targetInvoiceId)
	if err != nil {
		return nil, err
	}
	if target.Status == models.InvoiceStatusPaid {
		return nil, utils.InvalidRequest("cannot add parcels to a paid invoice")
	}
	client, err := stores.Clients.GetClient(ctx, target.ClientId)
	if err != nil {
		return nil, err
	}

	results := make([]ReassignResult, 0, len(ids))
	for _, parcelId := range ids {
		res := ReassignResult{ParcelId: parcelId, NewInvoiceId: target.ID}
		err := s.UoW.WithinTx(ctx, func(tx Stores) error {
			p, err := tx.Parcels.GetParcel(ctx, parcelId)
			if err != nil {
				return err
			}
			res.OldInvoiceId = p.InvoiceId
			if p.InvoiceId != nil && *p.InvoiceId == target.ID {
				return utils.InvalidRequest("parcel is already on this invoice")
			}
			if p.ClientId != target.ClientId {
				return utils.InvalidRequest("parcel belongs to another client")
			}
			if p.InvoiceId != nil {
				if err := removeParcelLines(ctx, tx, *p.InvoiceId, p.ID); err != nil {
					return err
				}
			}

			inv, err := tx.Invoices.GetInvoice(ctx, target.ID)
			if err != nil {
				return err
			}
			if inv.Status == models.InvoiceStatusPaid {
				return utils.InvalidRequest("cannot add parcels to a paid invoice")
			}
			item := models.LineItemFromParcel(p, client.DefaultRate)
			item.InvoiceId = inv.ID
			item.SortOrder = len(inv.LineItems)
			inv.LineItems = append(inv.LineItems, item)
			inv.RecalculateTotals()
			if err := tx.Invoices.ReplaceInvoiceLines(ctx, inv); err != nil {
				return err
			}
			if err := tx.Invoices.UpdateInvoice(ctx, inv); err != nil {
				return err
			}

			invId := inv.ID
			p.InvoiceId = &invId
			return tx.Parcels.UpdateParcel(ctx, p)
		})
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Success = true
		}
		results = append(results, res)
	}

	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventInvoiceReassigned, models.EntityInvoice, target.ID, "", "", s.now()).
		WithPayload(results))
	return results, nil
}

// removeParcelLines drops the parcel's line items from an invoice and recomputes it.
// Like UpdateInvoice, it refuses once the invoice carries payments.
func removeParcelLines(ctx context.Context, tx Stores, invoiceId string, parcelId string) error {
	inv, err := tx.Invoices.GetInvoice(ctx, invoiceId)
	if utils.IsKind(err, utils.ErrorKindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	paid, err := tx.Payments.SumPayments(ctx, inv.ID)
	if err != nil {
		return err
	}
	if !paid.IsZero() || inv.Status == models.InvoiceStatusPaid {
		return utils.InvalidRequest("parcel is billed on invoice %s, which already has payments", inv.InvoiceNumber)
	}
	kept := inv.LineItems[:0]
	for _, item := range inv.LineItems {
		if item.ShipmentId != nil && *item.ShipmentId == parcelId {
			continue
		}
		kept = append(kept, item)
	}
	inv.LineItems = kept
	inv.RecalculateTotals()
	if err := tx.Invoices.ReplaceInvoiceLines(ctx, inv); err != nil {
		return err
	}
	return tx.Invoices.UpdateInvoice(ctx, inv)
}
