package services

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DeletePolicyForbid = "forbid"
	DeletePolicyDetach = "detach"
)

type ParcelService struct {
	Deps
	// DeletePolicy decides what happens when an invoiced parcel is deleted.
	DeletePolicy string
}

func NewParcelService(deps Deps, deletePolicy string) *ParcelService {
	if deletePolicy != DeletePolicyDetach {
		deletePolicy = DeletePolicyForbid
	}
	return &ParcelService{Deps: deps, DeletePolicy: deletePolicy}
}

type SkippedParcel struct {
	ParcelId string `json:"parcel_id"`
	Reason   string `json:"reason"`
}

type BulkStatusResult struct {
	Updated int             `json:"updated"`
	Skipped []SkippedParcel `json:"skipped"`
}

func validateDimensions(input models.NewParcel) error {
	if input.Weight.IsNegative() || input.Length.IsNegative() || input.Width.IsNegative() || input.Height.IsNegative() {
		return utils.InvalidRequest("weight and dimensions must not be negative")
	}
	for i, piece := range input.Pieces {
		if piece.Weight.IsNegative() || piece.Length.IsNegative() || piece.Width.IsNegative() || piece.Height.IsNegative() {
			return utils.InvalidRequest("piece %d has a negative dimension", i+1)
		}
	}
	return nil
}

func (s *ParcelService) Create(ctx context.Context, input models.NewParcel) (*models.Parcel, error) {
	ctx, span := startSpan(ctx, "ParcelService.Create")
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateDimensions(input); err != nil {
		return nil, err
	}

	parcel := &models.Parcel{
		ID:             uuid.NewString(),
		TenantId:       actor.TenantId,
		ClientId:       input.ClientId,
		Status:         models.ParcelStatusWarehouse,
		Description:    input.Description,
		RecipientName:  input.RecipientName,
		RecipientPhone: input.RecipientPhone,
		Weight:         input.Weight,
		Length:         input.Length,
		Width:          input.Width,
		Height:         input.Height,
	}
	parcel.Pieces = input.BuildPieces(parcel.ID)

	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		if _, err := tx.Clients.GetClient(ctx, input.ClientId); err != nil {
			return err
		}
		if input.WarehouseId != nil && *input.WarehouseId != "" {
			if _, err := tx.Warehouses.GetWarehouse(ctx, *input.WarehouseId); err != nil {
				return err
			}
			whId := *input.WarehouseId
			parcel.WarehouseId = &whId
		}
		if input.TripId != nil && *input.TripId != "" {
			trip, err := tx.Trips.GetTrip(ctx, *input.TripId)
			if err != nil {
				return err
			}
			if err := guardTripLock(trip, actor); err != nil {
				return err
			}
			if err := placeOnTrip(ctx, tx, parcel, trip); err != nil {
				return err
			}
		} else {
			parcel.ResetBarcodes()
		}
		return tx.Parcels.CreateParcel(ctx, parcel)
	})
	if err != nil {
		return nil, err
	}

	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventParcelCreated, models.EntityParcel, parcel.ID, "", string(parcel.Status), s.now()))
	return parcel, nil
}

func (s *ParcelService) Get(ctx context.Context, id string) (*models.Parcel, error) {
	if _, err := ActorFromContext(ctx); err != nil {
		return nil, err
	}
	return s.UoW.Stores().Parcels.GetParcel(ctx, id)
}

// AssignToTrip stages the parcels on the trip and relabels them. Returns how many changed.
func (s *ParcelService) AssignToTrip(ctx context.Context, parcelIds []string, tripId string) (int, error) {
	ctx, span := startSpan(ctx, "ParcelService.AssignToTrip", attribute.String("trip_id", tripId))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return 0, err
	}
	ids, err := requireIds(parcelIds, "parcel")
	if err != nil {
		return 0, err
	}

	var events []models.DomainEvent
	updated := 0
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		trip, err := tx.Trips.GetTrip(ctx, tripId)
		if err != nil {
			return err
		}
		if err := guardTripLock(trip, actor); err != nil {
			return err
		}
		if trip.Status == models.TripStatusInTransit || trip.Status == models.TripStatusDelivered || trip.Status == models.TripStatusClosed {
			return utils.InvalidRequest("trip %s is already %s", trip.TripNumber, trip.Status)
		}
		parcels, err := loadAll(ctx, tx, ids)
		if err != nil {
			return err
		}
		trips := tripCache{tx: tx, byId: map[string]*models.Trip{trip.ID: trip}}
		for _, p := range parcels {
			switch p.Status {
			case models.ParcelStatusInTransit, models.ParcelStatusArrived, models.ParcelStatusDelivered, models.ParcelStatusCollected:
				return utils.InvalidRequest("parcel %s cannot be assigned while %s", p.ID, p.Status)
			}
			if p.TripId != nil && *p.TripId == trip.ID && p.Status == models.ParcelStatusStaged {
				continue
			}
			if p.TripId != nil && *p.TripId != trip.ID {
				current, err := trips.get(ctx, *p.TripId)
				if err != nil && !utils.IsKind(err, utils.ErrorKindNotFound) {
					return err
				}
				if err := guardTripLock(current, actor); err != nil {
					return err
				}
			}
			old := p.Status
			if err := placeOnTrip(ctx, tx, p, trip); err != nil {
				return err
			}
			if err := tx.Parcels.UpdateParcel(ctx, p); err != nil {
				return err
			}
			updated++
			events = append(events, models.NewDomainEvent(actor, models.EventParcelAssigned, models.EntityParcel, p.ID, string(old), string(p.Status), s.now()).
				WithPayload(map[string]string{"trip_id": trip.ID, "trip_number": trip.TripNumber}))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	_ = s.emit(ctx, events...)
	return updated, nil
}

// UnassignFromTrip sends staged or loaded parcels back to the warehouse.
func (s *ParcelService) UnassignFromTrip(ctx context.Context, parcelIds []string) (int, error) {
	ctx, span := startSpan(ctx, "ParcelService.UnassignFromTrip")
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return 0, err
	}
	ids, err := requireIds(parcelIds, "parcel")
	if err != nil {
		return 0, err
	}

	var events []models.DomainEvent
	updated := 0
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		parcels, err := loadAll(ctx, tx, ids)
		if err != nil {
			return err
		}
		trips := tripCache{tx: tx, byId: map[string]*models.Trip{}}
		for _, p := range parcels {
			if p.TripId == nil {
				continue
			}
			if p.Status != models.ParcelStatusStaged && p.Status != models.ParcelStatusLoaded {
				return utils.InvalidRequest("parcel %s cannot be unassigned while %s", p.ID, p.Status)
			}
			trip, err := trips.get(ctx, *p.TripId)
			if err != nil && !utils.IsKind(err, utils.ErrorKindNotFound) {
				return err
			}
			if err := guardTripLock(trip, actor); err != nil {
				return err
			}
			old := p.Status
			p.ReturnToWarehouse(nil)
			if err := tx.Parcels.UpdateParcel(ctx, p); err != nil {
				return err
			}
			updated++
			events = append(events, models.NewDomainEvent(actor, models.EventParcelUnassigned, models.EntityParcel, p.ID, string(old), string(p.Status), s.now()))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	_ = s.emit(ctx, events...)
	return updated, nil
}

// BulkUpdateStatus moves every listed parcel to target inside one transaction.
// Parcels already at target, or for which the move is illegal, are skipped and reported.
func (s *ParcelService) BulkUpdateStatus(ctx context.Context, parcelIds []string, target models.ParcelStatus) (*BulkStatusResult, error) {
	return s.bulkUpdate(ctx, parcelIds, target, nil)
}

// ReturnToWarehouse is the admin return with an explicit destination.
// Without one, a parcel stays at its current warehouse or falls back to its trip's destination.
func (s *ParcelService) ReturnToWarehouse(ctx context.Context, parcelIds []string, warehouseId *string) (*BulkStatusResult, error) {
	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.IsElevated() {
		return nil, utils.Forbidden("returning parcels to the warehouse requires an owner or admin")
	}
	if warehouseId != nil && *warehouseId != "" {
		if _, err := s.UoW.Stores().Warehouses.GetWarehouse(ctx, *warehouseId); err != nil {
			return nil, err
		}
	}
	return s.bulkUpdate(ctx, parcelIds, models.ParcelStatusWarehouse, warehouseId)
}

func (s *ParcelService) bulkUpdate(ctx context.Context, parcelIds []string, target models.ParcelStatus, returnTo *string) (*BulkStatusResult, error) {
	ctx, span := startSpan(ctx, "ParcelService.BulkUpdateStatus", attribute.String("target", string(target)))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !target.IsValid() {
		return nil, utils.InvalidRequest("invalid parcel status %q", target)
	}
	if target == models.ParcelStatusWarehouse && !actor.IsElevated() {
		return nil, utils.Forbidden("returning parcels to the warehouse requires an owner or admin")
	}
	ids, err := requireIds(parcelIds, "parcel")
	if err != nil {
		return nil, err
	}

	result := &BulkStatusResult{Skipped: []SkippedParcel{}}
	var events []models.DomainEvent
	now := s.now()
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		parcels, err := loadAll(ctx, tx, ids)
		if err != nil {
			return err
		}
		trips := tripCache{tx: tx, byId: map[string]*models.Trip{}}
		for _, p := range parcels {
			if p.Status == target {
				result.Skipped = append(result.Skipped, SkippedParcel{ParcelId: p.ID, Reason: fmt.Sprintf("already %s", target)})
				continue
			}
			var trip *models.Trip
			if p.TripId != nil {
				trip, err = trips.get(ctx, *p.TripId)
				if err != nil && !utils.IsKind(err, utils.ErrorKindNotFound) {
					return err
				}
				// Hand-over after arrival stays open on a closed trip.
				if !target.Landed() {
					if err := guardTripLock(trip, actor); err != nil {
						return err
					}
				}
			}

			old := p.Status
			switch {
			case target == models.ParcelStatusWarehouse:
				if !p.Status.CanReturnToWarehouse() {
					result.Skipped = append(result.Skipped, SkippedParcel{ParcelId: p.ID, Reason: "cannot return to warehouse"})
					continue
				}
				dest := returnTo
				if (dest == nil || *dest == "") && p.WarehouseId == nil && trip != nil {
					dest = trip.DestinationWarehouseId
				}
				if (dest == nil || *dest == "") && p.WarehouseId == nil {
					result.Skipped = append(result.Skipped, SkippedParcel{ParcelId: p.ID, Reason: "no warehouse to return to; pass warehouse_id"})
					continue
				}
				p.ReturnToWarehouse(dest)
			case !p.Status.CanTransitionTo(target):
				result.Skipped = append(result.Skipped, SkippedParcel{ParcelId: p.ID, Reason: fmt.Sprintf("cannot move from %s to %s", p.Status, target)})
				continue
			case target.OnTrip() && p.TripId == nil:
				result.Skipped = append(result.Skipped, SkippedParcel{ParcelId: p.ID, Reason: "parcel is not on a trip"})
				continue
			case target == models.ParcelStatusArrived:
				var dest *string
				if trip != nil {
					dest = trip.DestinationWarehouseId
				}
				p.MarkArrived(dest)
			case target == models.ParcelStatusCollected:
				p.MarkCollected(actor.DisplayName(), "", now)
			default:
				p.Status = target
			}

			if err := tx.Parcels.UpdateParcel(ctx, p); err != nil {
				return err
			}
			result.Updated++
			events = append(events, models.NewDomainEvent(actor, models.EventParcelStatusChanged, models.EntityParcel, p.ID, string(old), string(p.Status), now))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = s.emit(ctx, events...)
	return result, nil
}

func (s *ParcelService) Delete(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "ParcelService.Delete", attribute.String("parcel_id", id))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return err
	}
	var old models.ParcelStatus
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		p, err := tx.Parcels.GetParcel(ctx, id)
		if err != nil {
			return err
		}
		old = p.Status
		if p.TripId != nil {
			trip, err := tx.Trips.GetTrip(ctx, *p.TripId)
			if err != nil && !utils.IsKind(err, utils.ErrorKindNotFound) {
				return err
			}
			if err := guardTripLock(trip, actor); err != nil {
				return err
			}
		}
		if p.InvoiceId != nil {
			if s.DeletePolicy != DeletePolicyDetach {
				return utils.InvalidRequest("parcel is on invoice %s; remove or reassign it first", *p.InvoiceId)
			}
			if err := tx.Invoices.DetachShipment(ctx, p.ID); err != nil {
				return err
			}
		}
		return tx.Parcels.DeleteParcel(ctx, p.ID)
	})
	if err != nil {
		return err
	}
	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventParcelDeleted, models.EntityParcel, id, string(old), "", s.now()))
	return nil
}

// loadAll fetches every id or fails with NotFound naming the first missing one.
func loadAll(ctx context.Context, tx Stores, ids []string) ([]*models.Parcel, error) {
	parcels, err := tx.Parcels.ListParcels(ctx, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[string]*models.Parcel, len(parcels))
	for _, p := range parcels {
		found[p.ID] = p
	}
	ordered := make([]*models.Parcel, 0, len(ids))
	for _, id := range ids {
		p, ok := found[id]
		if !ok {
			return nil, utils.NotFound("parcel %s not found", id)
		}
		ordered = append(ordered, p)
	}
	return ordered, nil
}

type tripCache struct {
	tx   Stores
	byId map[string]*models.Trip
}

func (c tripCache) get(ctx context.Context, id string) (*models.Trip, error) {
	if t, ok := c.byId[id]; ok {
		return t, nil
	}
	t, err := c.tx.Trips.GetTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	c.byId[id] = t
	return t, nil
}
