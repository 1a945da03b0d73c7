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

type TripService struct {
	Deps
}

func NewTripService(deps Deps) *TripService {
	return &TripService{Deps: deps}
}

type TripDetail struct {
	*models.Trip
	Parcels      []*models.Parcel      `json:"parcels"`
	Expenses     []*models.TripExpense `json:"expenses"`
	ExpenseTotal decimal.Decimal       `json:"expense_total"`
}

type UpdateTrip struct {
	Route                  *string    `json:"route"`
	VehicleId              *string    `json:"vehicle_id"`
	DriverId               *string    `json:"driver_id"`
	DestinationWarehouseId *string    `json:"destination_warehouse_id"`
	ScheduledDeparture     *time.Time `json:"scheduled_departure"`
	Notes                  *string    `json:"notes"`
}

type TripTransitionResult struct {
	Trip            *models.Trip `json:"trip"`
	ParcelsMoved    int          `json:"parcels_moved"`
	ParcelsReturned int          `json:"parcels_returned"`
}

func (s *TripService) Create(ctx context.Context, input models.NewTrip) (*models.Trip, error) {
	ctx, span := startSpan(ctx, "TripService.Create")
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if input.DestinationWarehouseId != nil && *input.DestinationWarehouseId != "" {
		if _, err := s.UoW.Stores().Warehouses.GetWarehouse(ctx, *input.DestinationWarehouseId); err != nil {
			return nil, err
		}
	} else {
		input.DestinationWarehouseId = nil
	}
	trip := &models.Trip{
		TenantId:               actor.TenantId,
		Route:                  input.Route,
		VehicleId:              input.VehicleId,
		DriverId:               input.DriverId,
		DestinationWarehouseId: input.DestinationWarehouseId,
		ScheduledDeparture:     input.ScheduledDeparture,
		Notes:                  input.Notes,
		Status:                 models.TripStatusPlanning,
	}
	if err := s.createNumbered(ctx, trip); err != nil {
		return nil, err
	}
	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventTripCreated, models.EntityTrip, trip.ID, "", string(trip.Status), s.now()).
		WithPayload(map[string]string{"trip_number": trip.TripNumber}))
	return trip, nil
}

// createNumbered allocates the next trip number and inserts the trip.
// A unique-number collision is retried once with a fresh number.
func (s *TripService) createNumbered(ctx context.Context, trip *models.Trip) error {
	for attempt := 0; ; attempt++ {
		seq, err := s.Sequencer.NextTripSequence(ctx)
		if err != nil {
			return err
		}
		trip.ID = uuid.NewString()
		trip.SequenceNo = seq
		trip.TripNumber = models.FormatTripNumber(seq)
		err = s.UoW.Stores().Trips.CreateTrip(ctx, trip)
		if err == nil {
			return nil
		}
		if attempt == 0 && utils.IsKind(err, utils.ErrorKindConflict) {
			continue
		}
		return err
	}
}

func (s *TripService) Get(ctx context.Context, id string) (*TripDetail, error) {
	if _, err := ActorFromContext(ctx); err != nil {
		return nil, err
	}
	stores := s.UoW.Stores()
	trip, err := stores.Trips.GetTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	parcels, err := stores.Parcels.ListParcelsByTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	expenses, err := stores.Trips.ListExpenses(ctx, id)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return &TripDetail{Trip: trip, Parcels: parcels, Expenses: expenses, ExpenseTotal: total}, nil
}

func (s *TripService) Update(ctx context.Context, id string, input UpdateTrip) (*models.Trip, error) {
	ctx, span := startSpan(ctx, "TripService.Update", attribute.String("trip_id", id))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var trip *models.Trip
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		trip, err = tx.Trips.GetTrip(ctx, id)
		if err != nil {
			return err
		}
		if err := guardTripLock(trip, actor); err != nil {
			return err
		}
		if input.Route != nil {
			trip.Route = *input.Route
		}
		if input.VehicleId != nil {
			trip.VehicleId = *input.VehicleId
		}
		if input.DriverId != nil {
			trip.DriverId = *input.DriverId
		}
		if input.ScheduledDeparture != nil {
			trip.ScheduledDeparture = input.ScheduledDeparture
		}
		if input.Notes != nil {
			trip.Notes = *input.Notes
		}
		if input.DestinationWarehouseId != nil {
			if *input.DestinationWarehouseId == "" {
				trip.DestinationWarehouseId = nil
			} else {
				if _, err := tx.Warehouses.GetWarehouse(ctx, *input.DestinationWarehouseId); err != nil {
					return err
				}
				dest := *input.DestinationWarehouseId
				trip.DestinationWarehouseId = &dest
			}
		}
		return tx.Trips.UpdateTrip(ctx, trip)
	})
	if err != nil {
		return nil, err
	}
	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventTripUpdated, models.EntityTrip, trip.ID, "", "", s.now()))
	return trip, nil
}

// Transition moves the trip to target. Departure cascades to the parcels in one transaction:
// loaded parcels go in transit, staged parcels that missed the departure return to the warehouse.
func (s *TripService) Transition(ctx context.Context, id string, target models.TripStatus) (*TripTransitionResult, error) {
	if target == models.TripStatusClosed {
		trip, err := s.Close(ctx, id)
		if err != nil {
			return nil, err
		}
		return &TripTransitionResult{Trip: trip}, nil
	}

	ctx, span := startSpan(ctx, "TripService.Transition", attribute.String("trip_id", id), attribute.String("target", string(target)))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !target.IsValid() {
		return nil, utils.InvalidRequest("invalid trip status %q", target)
	}

	result := &TripTransitionResult{}
	var events []models.DomainEvent
	now := s.now()
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		trip, err := tx.Trips.GetTrip(ctx, id)
		if err != nil {
			return err
		}
		if err := guardTripLock(trip, actor); err != nil {
			return err
		}
		old := trip.Status
		if old != target && !target.IsForwardOf(old) && !actor.IsElevated() {
			return utils.InvalidRequest("trip cannot move back from %s to %s", old, target)
		}

		switch target {
		case models.TripStatusInTransit:
			trip.Depart(now)
			parcels, err := tx.Parcels.ListParcelsByTrip(ctx, trip.ID)
			if err != nil {
				return err
			}
			for _, p := range parcels {
				before := p.Status
				switch p.Status {
				case models.ParcelStatusLoaded:
					p.Status = models.ParcelStatusInTransit
					result.ParcelsMoved++
				case models.ParcelStatusStaged:
					p.ReturnToWarehouse(nil)
					result.ParcelsReturned++
				default:
					continue
				}
				if err := tx.Parcels.UpdateParcel(ctx, p); err != nil {
					return err
				}
				events = append(events, models.NewDomainEvent(actor, models.EventParcelStatusChanged, models.EntityParcel, p.ID, string(before), string(p.Status), now))
			}
		case models.TripStatusDelivered:
			trip.Arrive(now)
		default:
			trip.Status = target
		}

		if err := tx.Trips.UpdateTrip(ctx, trip); err != nil {
			return err
		}
		result.Trip = trip
		if old != trip.Status {
			events = append([]models.DomainEvent{models.NewDomainEvent(actor, models.EventTripStatusChanged, models.EntityTrip, trip.ID, string(old), string(trip.Status), now)}, events...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = s.emit(ctx, events...)
	return result, nil
}

// Close locks the trip. Only owners and admins may close, and only once.
func (s *TripService) Close(ctx context.Context, id string) (*models.Trip, error) {
	ctx, span := startSpan(ctx, "TripService.Close", attribute.String("trip_id", id))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.IsElevated() {
		return nil, utils.Forbidden("only owners and admins can close a trip")
	}
	var trip *models.Trip
	var old models.TripStatus
	now := s.now()
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		trip, err = tx.Trips.GetTrip(ctx, id)
		if err != nil {
			return err
		}
		if trip.IsLocked() || trip.Status == models.TripStatusClosed {
			return utils.InvalidRequest("trip already closed")
		}
		old = trip.Status
		trip.Lock(actor.DisplayName(), now)
		return tx.Trips.UpdateTrip(ctx, trip)
	})
	if err != nil {
		return nil, err
	}
	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventTripClosed, models.EntityTrip, trip.ID, string(old), string(trip.Status), now))
	return trip, nil
}

// Duplicate starts a new planning trip on the same route with the next number and no parcels.
func (s *TripService) Duplicate(ctx context.Context, id string) (*models.Trip, error) {
	ctx, span := startSpan(ctx, "TripService.Duplicate", attribute.String("trip_id", id))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	source, err := s.UoW.Stores().Trips.GetTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	trip := source.Duplicate()
	if err := s.createNumbered(ctx, trip); err != nil {
		return nil, err
	}
	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventTripCreated, models.EntityTrip, trip.ID, "", string(trip.Status), s.now()).
		WithPayload(map[string]string{"trip_number": trip.TripNumber, "duplicated_from": source.ID}))
	return trip, nil
}

// Delete unassigns every parcel still in the trip's working set and removes the expenses together with the trip.
// Parcels that already landed only lose the trip reference.
func (s *TripService) Delete(ctx context.Context, id string) error {
	ctx, span := startSpan(ctx, "TripService.Delete", attribute.String("trip_id", id))
	defer span.End()

	actor, err := ActorFromContext(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	var events []models.DomainEvent
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		trip, err := tx.Trips.GetTrip(ctx, id)
		if err != nil {
			return err
		}
		if err := guardTripLock(trip, actor); err != nil {
			return err
		}
		parcels, err := tx.Parcels.ListParcelsByTrip(ctx, trip.ID)
		if err != nil {
			return err
		}
		for _, p := range parcels {
			old := p.Status
			if p.Status.Landed() {
				p.DetachFromTrip()
			} else {
				p.ReturnToWarehouse(nil)
			}
			if err := tx.Parcels.UpdateParcel(ctx, p); err != nil {
				return err
			}
			events = append(events, models.NewDomainEvent(actor, models.EventParcelUnassigned, models.EntityParcel, p.ID, string(old), string(p.Status), now))
		}
		if err := tx.Trips.DeleteExpensesByTrip(ctx, trip.ID); err != nil {
			return err
		}
		if err := tx.Trips.DeleteTrip(ctx, trip.ID); err != nil {
			return err
		}
		events = append(events, models.NewDomainEvent(actor, models.EventTripDeleted, models.EntityTrip, trip.ID, string(trip.Status), "", now))
		return nil
	})
	if err != nil {
		return err
	}
	_ = s.emit(ctx, events...)
	return nil
}

func (s *TripService) AddExpense(ctx context.Context, tripId string, input models.NewTripExpense) (*models.TripExpense, error) {
	actor, err := ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, utils.InvalidRequest("expense amount must be greater than zero")
	}
	expense := &models.TripExpense{
		ID:          uuid.NewString(),
		TenantId:    actor.TenantId,
		TripId:      tripId,
		Category:    input.Category,
		Description: input.Description,
		Amount:      input.Amount,
		ExpenseDate: s.now(),
		CreatedBy:   actor.DisplayName(),
	}
	if input.ExpenseDate != nil {
		expense.ExpenseDate = input.ExpenseDate.UTC()
	}
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		trip, err := tx.Trips.GetTrip(ctx, tripId)
		if err != nil {
			return err
		}
		if err := guardTripLock(trip, actor); err != nil {
			return err
		}
		return tx.Trips.CreateExpense(ctx, expense)
	})
	if err != nil {
		return nil, err
	}
	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventTripExpenseAdded, models.EntityTrip, tripId, "", "", s.now()).
		WithPayload(expense))
	return expense, nil
}

func (s *TripService) DeleteExpense(ctx context.Context, tripId string, expenseId string) error {
	actor, err := ActorFromContext(ctx)
	if err != nil {
		return err
	}
	err = s.UoW.WithinTx(ctx, func(tx Stores) error {
		trip, err := tx.Trips.GetTrip(ctx, tripId)
		if err != nil {
			return err
		}
		if err := guardTripLock(trip, actor); err != nil {
			return err
		}
		expense, err := tx.Trips.GetExpense(ctx, expenseId)
		if err != nil {
			return err
		}
		if expense.TripId != trip.ID {
			return utils.NotFound("expense not found")
		}
		return tx.Trips.DeleteExpense(ctx, expense.ID)
	})
	if err != nil {
		return err
	}
	_ = s.emit(ctx, models.NewDomainEvent(actor, models.EventTripExpenseDeleted, models.EntityTrip, tripId, "", "", s.now()).
		WithPayload(map[string]string{"expense_id": expenseId}))
	return nil
}
