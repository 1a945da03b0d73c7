package services_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/services"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrip_DepartureCascadesToParcels(t *testing.T) {
	f := newFixture(t)
	f.trip(t, nil)
	trip := f.trip(t, nil)
	require.Equal(t, "S2", trip.TripNumber)

	var loaded, staged []string
	for i := 0; i < 3; i++ {
		loaded = append(loaded, f.parcel(t, &trip.ID, 1).ID)
	}
	for i := 0; i < 2; i++ {
		staged = append(staged, f.parcel(t, &trip.ID, 1).ID)
	}
	_, err := f.Parcels.BulkUpdateStatus(f.staff, loaded, models.ParcelStatusLoaded)
	require.NoError(t, err)

	res, err := f.Trips.Transition(f.staff, trip.ID, models.TripStatusInTransit)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ParcelsMoved)
	assert.Equal(t, 2, res.ParcelsReturned)
	assert.Equal(t, models.TripStatusInTransit, res.Trip.Status)
	require.NotNil(t, res.Trip.ActualDeparture)

	for _, id := range loaded {
		p := f.get(t, id)
		assert.Equal(t, models.ParcelStatusInTransit, p.Status)
		require.NotNil(t, p.TripId)
	}
	for _, id := range staged {
		p := f.get(t, id)
		assert.Equal(t, models.ParcelStatusWarehouse, p.Status)
		assert.Nil(t, p.TripId)
		assert.True(t, models.IsPlaceholderBarcode(p.Pieces[0].Barcode))
	}
}

func TestTrip_DepartureKeepsFirstTimestamp(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t, nil)

	res, err := f.Trips.Transition(f.staff, trip.ID, models.TripStatusInTransit)
	require.NoError(t, err)
	first := *res.Trip.ActualDeparture

	_, err = f.Trips.Transition(f.admin, trip.ID, models.TripStatusLoading)
	require.NoError(t, err)
	f.Now = f.Now.Add(90 * time.Minute)
	res, err = f.Trips.Transition(f.staff, trip.ID, models.TripStatusInTransit)
	require.NoError(t, err)
	assert.True(t, first.Equal(*res.Trip.ActualDeparture))
}

func TestTrip_BackwardMoveNeedsElevatedRole(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t, nil)
	_, err := f.Trips.Transition(f.staff, trip.ID, models.TripStatusDelivered)
	require.NoError(t, err)

	_, err = f.Trips.Transition(f.staff, trip.ID, models.TripStatusPlanning)
	requireKind(t, err, utils.ErrorKindInvalidRequest)

	res, err := f.Trips.Transition(f.admin, trip.ID, models.TripStatusPlanning)
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusPlanning, res.Trip.Status)
}

func TestTrip_CloseLocksTrip(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t, nil)

	_, err := f.Trips.Close(f.staff, trip.ID)
	requireKind(t, err, utils.ErrorKindForbidden)

	closed, err := f.Trips.Close(f.admin, trip.ID)
	require.NoError(t, err)
	assert.True(t, closed.IsLocked())
	assert.Equal(t, models.TripStatusClosed, closed.Status)
	require.NotNil(t, closed.LockedBy)

	_, err = f.Trips.Close(f.admin, trip.ID)
	requireKind(t, err, utils.ErrorKindInvalidRequest)

	_, err = f.Trips.Update(f.staff, trip.ID, services.UpdateTrip{Route: utils.Ptr("YGN-NPT")})
	requireKind(t, err, utils.ErrorKindForbidden)

	_, err = f.Trips.Transition(f.staff, trip.ID, models.TripStatusDelivered)
	requireKind(t, err, utils.ErrorKindForbidden)

	_, err = f.Trips.AddExpense(f.staff, trip.ID, models.NewTripExpense{Description: "Fuel", Amount: dec(20)})
	requireKind(t, err, utils.ErrorKindForbidden)
}

func TestTrip_TransitionToClosedGoesThroughClose(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t, nil)

	_, err := f.Trips.Transition(f.staff, trip.ID, models.TripStatusClosed)
	requireKind(t, err, utils.ErrorKindForbidden)

	res, err := f.Trips.Transition(f.admin, trip.ID, models.TripStatusClosed)
	require.NoError(t, err)
	assert.True(t, res.Trip.IsLocked())
}

func TestTrip_NumberCollisionRetriesOnce(t *testing.T) {
	f := newFixture(t)
	f.trip(t, nil)
	f.Sequencer.SetTripSequence(tenant, 0)

	trip := f.trip(t, nil)
	assert.Equal(t, "S2", trip.TripNumber)
}

func TestTrip_DuplicateStartsEmptyPlanningTrip(t *testing.T) {
	f := newFixture(t)
	source := f.trip(t, &f.warehouse.ID)
	f.parcel(t, &source.ID, 1)
	_, err := f.Trips.Transition(f.staff, source.ID, models.TripStatusInTransit)
	require.NoError(t, err)

	dup, err := f.Trips.Duplicate(f.staff, source.ID)
	require.NoError(t, err)
	assert.Equal(t, "S2", dup.TripNumber)
	assert.Equal(t, models.TripStatusPlanning, dup.Status)
	assert.Equal(t, source.Route, dup.Route)
	assert.Nil(t, dup.ActualDeparture)

	detail, err := f.Trips.Get(f.staff, dup.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Parcels)
}

func TestTrip_DeleteUnassignsParcelsAndExpenses(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t, nil)
	p := f.parcel(t, &trip.ID, 1)
	_, err := f.Trips.AddExpense(f.staff, trip.ID, models.NewTripExpense{Description: "Fuel", Amount: dec(40)})
	require.NoError(t, err)
	_, err = f.Trips.AddExpense(f.staff, trip.ID, models.NewTripExpense{Description: "Tolls", Amount: dec(5)})
	require.NoError(t, err)

	detail, err := f.Trips.Get(f.staff, trip.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Parcels, 1)
	assert.True(t, detail.ExpenseTotal.Equal(dec(45)))

	require.NoError(t, f.Trips.Delete(f.staff, trip.ID))

	_, err = f.Trips.Get(f.staff, trip.ID)
	requireKind(t, err, utils.ErrorKindNotFound)
	got := f.get(t, p.ID)
	assert.Equal(t, models.ParcelStatusWarehouse, got.Status)
	assert.Nil(t, got.TripId)

	expenses, err := f.Store.Stores().Trips.ListExpenses(f.staff, trip.ID)
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

func TestTrip_ExpenseMustBePositive(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t, nil)

	_, err := f.Trips.AddExpense(f.staff, trip.ID, models.NewTripExpense{Description: "Fuel", Amount: dec(0)})
	requireKind(t, err, utils.ErrorKindInvalidRequest)

	expense, err := f.Trips.AddExpense(f.staff, trip.ID, models.NewTripExpense{Description: "Fuel", Amount: dec(12)})
	require.NoError(t, err)
	require.NoError(t, f.Trips.DeleteExpense(f.staff, trip.ID, expense.ID))
	requireKind(t, f.Trips.DeleteExpense(f.staff, trip.ID, expense.ID), utils.ErrorKindNotFound)
}

func TestTrip_DeleteKeepsCollectedParcels(t *testing.T) {
	f := newFixture(t)
	p := f.arrived(t)
	_, err := f.Collection.Commit(f.staff, p.ID, "picked up")
	require.NoError(t, err)

	require.NoError(t, f.Trips.Delete(f.staff, *p.TripId))

	got := f.get(t, p.ID)
	assert.Equal(t, models.ParcelStatusCollected, got.Status)
	assert.True(t, got.IsCollected)
	assert.NotNil(t, got.CollectedAt)
	assert.NotNil(t, got.CollectedBy)
	assert.Nil(t, got.TripId)
}
