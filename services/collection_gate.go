package services

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	ScanPolicySkipPaymentCheck = "skip_payment_check"
	ScanPolicyNotifyUnsettled  = "notify_unsettled"
	ScanPolicyRequireSettled   = "require_settled"
)

// CollectionGate decides whether an arrived parcel may be handed to the client.
type CollectionGate struct {
	Deps
	ScanPolicy string
}

func NewCollectionGate(deps Deps, scanPolicy string) *CollectionGate {
	switch scanPolicy {
	case ScanPolicyNotifyUnsettled, ScanPolicyRequireSettled:
	default:
		scanPolicy = ScanPolicySkipPaymentCheck
	}
	return &CollectionGate{Deps: deps, ScanPolicy: scanPolicy}
}

type CollectionCheck struct {
	ParcelId             string                   `json:"parcel_id"`
	Status               models.ParcelStatus      `json:"status"`
	CanCollect           bool                     `json:"can_collect"`
	RequiresConfirmation bool                     `json:"requires_confirmation"`
	NotifyAdmin          bool                     `json:"notify_admin"`
	Warning              models.CollectionWarning `json:"warning,omitempty"`
	Message              string                   `json:"message,omitempty"`
	InvoiceId            *string                  `json:"invoice_id,omitempty"`
	InvoiceNumber        string                   `json:"invoice_number,omitempty"`
	InvoiceStatus        models.InvoiceStatus     `json:"invoice_status,omitempty"`
	Outstanding          *decimal.Decimal         `json:"outstanding,omitempty"`
}

// Unsettled is true when the parcel is billed but the bill is not paid in full.
func (c CollectionCheck) Unsettled() bool {
	return c.Warning == models.CollectionWarningPartialPayment || c.Warning == models.CollectionWarningUnpaid
}

type CollectionResult struct {
	Success       bool                     `json:"success"`
	ParcelId      string                   `json:"parcel_id"`
	CollectedAt   time.Time                `json:"collected_at"`
	AdminNotified bool                     `json:"admin_notified"`
	Warning       models.CollectionWarning `json:"warning,omitempty"`
	Parcel        *ScannedParcel           `json:"parcel,omitempty"`
}

// ScannedParcel is what the scanner shows back after a scan.
type ScannedParcel struct {
	ID          string              `json:"id"`
	ClientId    string              `json:"client_id"`
	ClientName  string              `json:"client_name"`
	Description string              `json:"description"`
	Status      models.ParcelStatus `json:"status"`
	Barcodes    []string            `json:"barcodes"`
	TripNumber  string              `json:"trip_number,omitempty"`
}

// evaluate applies the collection rules in priority order. It never writes.
func evaluate(ctx context.Context, stores Stores, p *models.Parcel) (*CollectionCheck, error) {
	check := &CollectionCheck{ParcelId: p.ID, Status: p.Status, InvoiceId: p.InvoiceId}
	if p.Status != models.ParcelStatusArrived {
		check.Warning = models.CollectionWarningNotArrived
		check.Message = "parcel has not arrived (status " + string(p.Status) + ")"
		return check, nil
	}
	check.CanCollect = true
	if p.InvoiceId == nil {
		check.Warning = models.CollectionWarningNotInvoiced
		check.Message = "parcel has not been invoiced"
		check.RequiresConfirmation = true
		return check, nil
	}
	inv, err := stores.Invoices.GetInvoice(ctx, *p.InvoiceId)
	if utils.IsKind(err, utils.ErrorKindNotFound) {
		check.Warning = models.CollectionWarningInvoiceNotFound
		check.Message = "linked invoice not found"
		check.RequiresConfirmation = true
		return check, nil
	}
	if err != nil {
		return nil, err
	}
	check.InvoiceNumber = inv.InvoiceNumber
	check.InvoiceStatus = inv.Status
	if inv.Status == models.InvoiceStatusPaid {
		return check, nil
	}
	paid, err := stores.Payments.SumPayments(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	outstanding := inv.Outstanding(paid)
	if !outstanding.IsPositive() {
		return check, nil
	}
	check.Outstanding = &outstanding
	check.RequiresConfirmation = true
	if inv.Status == models.InvoiceStatusPartial || (paid.IsPositive() && paid.LessThan(inv.Total)) {
		check.Warning = models.CollectionWarningPartialPayment
		check.Message = "invoice " + inv.InvoiceNumber + " is partially paid, outstanding " + utils.FormatMoney(outstanding)
		return check, nil
	}
	check.Warning = models.CollectionWarningUnpaid
	check.Message = "invoice " + inv.InvoiceNumber + " is unpaid, outstanding " + utils.FormatMoney(outstanding)
	check.NotifyAdmin = true
	return check, nil
}

func (g *CollectionGate) Check(ctx context.Context, parcelId string) (*CollectionCheck, error) {
	if _, err := ActorFromContext(ctx); err != nil {
		return nil, err
	}
	stores := g.UoW.Stores()
	p, err := stores.Parcels.GetParcel(ctx, parcelId)
	if err != nil {
		return nil, err
	}
	return evaluate(ctx, stores, p)
}

// Commit hands the parcel over. An unsettled invoice does not block collection
// but raises a collection.unsettled event for the admins.
func (g *CollectionGate) Commit(ctx context.Context, parcelId string, note string) (*CollectionResult, error) {
	return g.collect(ctx, parcelId, note, ScanPolicyNotifyUnsettled)
}

// ScanAndCollect resolves a scanned code to a parcel and collects it under the configured policy.
// The code may be a piece barcode, a parcel id, or an unambiguous id prefix.
func (g *CollectionGate) ScanAndCollect(ctx context.Context, code string, note string) (*CollectionResult, error) {
	ctx, span := startSpan(ctx, "CollectionGate.ScanAndCollect")
	defer span.End()

	if _, err := ActorFromContext(ctx); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, utils.InvalidRequest("scan code is required")
	}
	p, err := g.resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	result, err := g.collect(ctx, p.ID, note, g.ScanPolicy)
	if err != nil {
		return nil, err
	}
	result.Parcel, err = g.summarize(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (g *CollectionGate) summarize(ctx context.Context, parcelId string) (*ScannedParcel, error) {
	stores := g.UoW.Stores()
	p, err := stores.Parcels.GetParcel(ctx, parcelId)
	if err != nil {
		return nil, err
	}
	out := &ScannedParcel{
		ID:          p.ID,
		ClientId:    p.ClientId,
		Description: p.Description,
		Status:      p.Status,
		Barcodes:    make([]string, 0, len(p.Pieces)),
	}
	for _, piece := range p.Pieces {
		if piece.Barcode != "" {
			out.Barcodes = append(out.Barcodes, piece.Barcode)
		}
	}
	client, err := stores.Clients.GetClient(ctx, p.ClientId)
	switch {
	case err == nil:
		out.ClientName = client.Name
	case !utils.IsKind(err, utils.ErrorKindNotFound):
		return nil, err
	}
	if p.TripId != nil {
		trip, err := stores.Trips.GetTrip(ctx, *p.TripId)
		switch {
		case err == nil:
			out.TripNumber = trip.TripNumber
		case !utils.IsKind(err, utils.ErrorKindNotFound):
			return nil, err
		}
	}
	return out, nil
}

func (g *CollectionGate) resolve(ctx context.Context, code string) (*models.Parcel, error) {
	stores := g.UoW.Stores()
	p, err := stores.Parcels.FindParcelByBarcode(ctx, code)
	if err == nil {
		return p, nil
	}
	if !utils.IsKind(err, utils.ErrorKindNotFound) {
		return nil, err
	}
	p, err = stores.Parcels.GetParcel(ctx, code)
	if err == nil {
		return p, nil
	}
	if !utils.IsKind(err, utils.ErrorKindNotFound) {
		return nil, err
	}
	matches, err := stores.Parcels.FindParcelsByIdPrefix(ctx, strings.ToLower(code), 2)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, utils.NotFound("no parcel matches %q", code)
	case 1:
		return matches[0], nil
	default:
		return nil, utils.InvalidRequest("code %q matches more than one parcel", code)
	}
}

func (g *CollectionGate) collect(ctx context.Context, parcelId string, note string, policy string) (*CollectionResult, error) {
	ctx, span := startSpan(ctx, "CollectionGate.collect", attribute.String("parcel_id", parcelId), attribute.String("policy", policy))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	now := g.now()
	result := &CollectionResult{ParcelId: parcelId}
	var check *CollectionCheck
	err = g.UoW.WithinTx(ctx, func(tx Stores) error {
		p, err := tx.Parcels.GetParcel(ctx, parcelId)
		if err != nil {
			return err
		}
		if p.Status != models.ParcelStatusArrived {
			return utils.InvalidRequest("parcel cannot be collected while %s", p.Status)
		}
		if policy != ScanPolicySkipPaymentCheck {
			check, err = evaluate(ctx, tx, p)
			if err != nil {
				return err
			}
			if policy == ScanPolicyRequireSettled && check.Warning != models.CollectionWarningNone {
				return utils.InvalidRequest("parcel cannot be collected: %s", check.Message)
			}
			result.Warning = check.Warning
		}
		p.MarkCollected(actor.DisplayName(), note, now)
		return tx.Parcels.UpdateParcel(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	result.Success = true
	result.CollectedAt = now

	events := []models.DomainEvent{
		models.NewDomainEvent(actor, models.EventParcelCollected, models.EntityParcel, parcelId,
			string(models.ParcelStatusArrived), string(models.ParcelStatusCollected), now),
	}
	if check != nil && check.Unsettled() {
		payload := map[string]any{"invoice_id": check.InvoiceId, "invoice_number": check.InvoiceNumber, "warning": check.Warning}
		if check.Outstanding != nil {
			payload["outstanding"] = utils.FormatMoney(*check.Outstanding)
		}
		events = append(events, models.NewDomainEvent(actor, models.EventCollectionUnsettled, models.EntityParcel, parcelId, "", "", now).
			WithPayload(payload))
		result.AdminNotified = g.emit(ctx, events...) == nil
		return result, nil
	}
	_ = g.emit(ctx, events...)
	return result, nil
}
