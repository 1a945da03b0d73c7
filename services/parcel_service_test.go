package services_test

import (
	"errors"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/testutil"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParcel_AssignAndUnassignRelabelsPieces(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t, nil)
	require.Equal(t, "S1", trip.TripNumber)

	p := f.parcel(t, nil, 2)
	assert.Equal(t, models.ParcelStatusWarehouse, p.Status)
	assert.Nil(t, p.TripId)
	for _, piece := range p.Pieces {
		assert.True(t, models.IsPlaceholderBarcode(piece.Barcode), piece.Barcode)
	}

	n, err := f.Parcels.AssignToTrip(f.staff, []string{p.ID}, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.get(t, p.ID)
	assert.Equal(t, models.ParcelStatusStaged, got.Status)
	require.NotNil(t, got.TripId)
	assert.Equal(t, trip.ID, *got.TripId)
	require.Len(t, got.Pieces, 2)
	assert.Equal(t, "S1-001-01", got.Pieces[0].Barcode)
	assert.Equal(t, "S1-001-02", got.Pieces[1].Barcode)

	second := f.parcel(t, &trip.ID, 1)
	assert.Equal(t, "S1-002-01", second.Pieces[0].Barcode)

	n, err = f.Parcels.UnassignFromTrip(f.staff, []string{p.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got = f.get(t, p.ID)
	assert.Equal(t, models.ParcelStatusWarehouse, got.Status)
	assert.Nil(t, got.TripId)
	assert.True(t, strings.HasPrefix(got.Pieces[0].Barcode, "TEMP-"))
}

func TestParcel_CreateValidatesReferences(t *testing.T) {
	f := newFixture(t)

	_, err := f.Parcels.Create(f.staff, models.NewParcel{ClientId: "missing"})
	requireKind(t, err, utils.ErrorKindNotFound)

	missingTrip := "missing"
	_, err = f.Parcels.Create(f.staff, models.NewParcel{ClientId: f.client.ID, TripId: &missingTrip})
	requireKind(t, err, utils.ErrorKindNotFound)

	_, err = f.Parcels.Create(f.staff, models.NewParcel{ClientId: f.client.ID, Weight: dec(-1)})
	requireKind(t, err, utils.ErrorKindInvalidRequest)
}

func TestParcel_OtherTenantCannotSeeParcel(t *testing.T) {
	f := newFixture(t)
	p := f.parcel(t, nil, 1)

	other := testutil.ActorContext("tenant-2", models.UserRoleOwner)
	_, err := f.Parcels.Get(other, p.ID)
	requireKind(t, err, utils.ErrorKindNotFound)
}

func TestParcel_BulkStatusIsIdempotent(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t, nil)
	ids := []string{f.parcel(t, &trip.ID, 1).ID, f.parcel(t, &trip.ID, 1).ID, f.parcel(t, &trip.ID, 1).ID}

	res, err := f.Parcels.BulkUpdateStatus(f.staff, ids, models.ParcelStatusLoaded)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Updated)
	assert.Empty(t, res.Skipped)

	res, err = f.Parcels.BulkUpdateStatus(f.staff, ids, models.ParcelStatusLoaded)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	assert.Len(t, res.Skipped, 3)
}

func TestParcel_BulkStatusSkipsIllegalTransitions(t *testing.T) {
	f := newFixture(t)
	inWarehouse := f.parcel(t, nil, 1)

	res, err := f.Parcels.BulkUpdateStatus(f.staff, []string{inWarehouse.ID}, models.ParcelStatusLoaded)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, inWarehouse.ID, res.Skipped[0].ParcelId)
	assert.Equal(t, models.ParcelStatusWarehouse, f.get(t, inWarehouse.ID).Status)

	res, err = f.Parcels.BulkUpdateStatus(f.staff, []string{inWarehouse.ID}, models.ParcelStatusStaged)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated, "staging needs a trip")

	_, err = f.Parcels.BulkUpdateStatus(f.staff, []string{inWarehouse.ID, "missing"}, models.ParcelStatusLoaded)
	requireKind(t, err, utils.ErrorKindNotFound)

	_, err = f.Parcels.BulkUpdateStatus(f.staff, []string{inWarehouse.ID}, models.ParcelStatus("lost"))
	requireKind(t, err, utils.ErrorKindInvalidRequest)
}

func TestParcel_ReturnToWarehouseNeedsElevatedRole(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t, nil)
	p := f.parcel(t, &trip.ID, 1)

	_, err := f.Parcels.BulkUpdateStatus(f.staff, []string{p.ID}, models.ParcelStatusWarehouse)
	requireKind(t, err, utils.ErrorKindForbidden)

	res, err := f.Parcels.BulkUpdateStatus(f.admin, []string{p.ID}, models.ParcelStatusWarehouse)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	got := f.get(t, p.ID)
	assert.Nil(t, got.TripId)
	assert.True(t, models.IsPlaceholderBarcode(got.Pieces[0].Barcode))
}

func TestParcel_ArrivalRelocatesAndCollectionClearsWarehouse(t *testing.T) {
	f := newFixture(t)
	dest, err := f.Directory.CreateWarehouse(f.staff, models.NewWarehouse{Name: "Mandalay"})
	require.NoError(t, err)
	trip := f.trip(t, &dest.ID)
	p := f.parcel(t, &trip.ID, 1)

	_, err = f.Parcels.BulkUpdateStatus(f.staff, []string{p.ID}, models.ParcelStatusLoaded)
	require.NoError(t, err)
	_, err = f.Trips.Transition(f.staff, trip.ID, models.TripStatusInTransit)
	require.NoError(t, err)
	_, err = f.Parcels.BulkUpdateStatus(f.staff, []string{p.ID}, models.ParcelStatusArrived)
	require.NoError(t, err)

	got := f.get(t, p.ID)
	require.NotNil(t, got.WarehouseId)
	assert.Equal(t, dest.ID, *got.WarehouseId)

	_, err = f.Parcels.BulkUpdateStatus(f.staff, []string{p.ID}, models.ParcelStatusCollected)
	require.NoError(t, err)
	got = f.get(t, p.ID)
	assert.Equal(t, models.ParcelStatusCollected, got.Status)
	assert.Nil(t, got.WarehouseId)
	assert.True(t, got.IsCollected)
	require.NotNil(t, got.CollectedBy)
	require.NotNil(t, got.CollectedAt)
}

func TestParcel_LockedTripRejectsStaff(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t, nil)
	onTrip := f.parcel(t, &trip.ID, 1)
	loose := f.parcel(t, nil, 1)

	_, err := f.Trips.Close(f.admin, trip.ID)
	require.NoError(t, err)

	_, err = f.Parcels.Create(f.staff, models.NewParcel{ClientId: f.client.ID, TripId: &trip.ID})
	requireKind(t, err, utils.ErrorKindForbidden)

	_, err = f.Parcels.AssignToTrip(f.staff, []string{loose.ID}, trip.ID)
	requireKind(t, err, utils.ErrorKindForbidden)

	_, err = f.Parcels.UnassignFromTrip(f.staff, []string{onTrip.ID})
	requireKind(t, err, utils.ErrorKindForbidden)

	_, err = f.Parcels.BulkUpdateStatus(f.staff, []string{onTrip.ID}, models.ParcelStatusLoaded)
	requireKind(t, err, utils.ErrorKindForbidden)

	err = f.Parcels.Delete(f.staff, onTrip.ID)
	requireKind(t, err, utils.ErrorKindForbidden)

	_, err = f.Parcels.BulkUpdateStatus(f.admin, []string{onTrip.ID}, models.ParcelStatusLoaded)
	require.NoError(t, err)
}

func TestParcel_AssignRejectsDepartedParcels(t *testing.T) {
	f := newFixture(t)
	p := f.arrived(t)
	other := f.trip(t, nil)

	_, err := f.Parcels.AssignToTrip(f.staff, []string{p.ID}, other.ID)
	requireKind(t, err, utils.ErrorKindInvalidRequest)
}

func TestParcel_DeleteInvoicedParcelFollowsPolicy(t *testing.T) {
	t.Run("forbid", func(t *testing.T) {
		f := newFixture(t)
		p := f.parcel(t, nil, 1)
		f.invoice(t, models.InvoiceStatusDraft, models.NewInvoiceLineItem{ShipmentId: &p.ID, Quantity: dec(1), Rate: dec(10)})

		err := f.Parcels.Delete(f.staff, p.ID)
		requireKind(t, err, utils.ErrorKindInvalidRequest)
		f.get(t, p.ID)
	})

	t.Run("detach", func(t *testing.T) {
		f := newFixture(t, testutil.WithDeletePolicy("detach"))
		p := f.parcel(t, nil, 1)
		inv := f.invoice(t, models.InvoiceStatusDraft, models.NewInvoiceLineItem{ShipmentId: &p.ID, Quantity: dec(1), Rate: dec(10)})

		require.NoError(t, f.Parcels.Delete(f.staff, p.ID))
		_, err := f.Parcels.Get(f.staff, p.ID)
		requireKind(t, err, utils.ErrorKindNotFound)

		view, err := f.Ledger.GetInvoice(f.staff, inv.ID)
		require.NoError(t, err)
		require.Len(t, view.LineItems, 1)
		assert.Nil(t, view.LineItems[0].ShipmentId)
		assert.True(t, view.Total.Equal(dec(10)))
	})
}

func TestParcel_EventFailureDoesNotUndoChange(t *testing.T) {
	f := newFixture(t)
	f.Events.Err = errors.New("broker down")

	p := f.parcel(t, nil, 1)
	assert.Equal(t, models.ParcelStatusWarehouse, f.get(t, p.ID).Status)
}

func TestParcel_ChangesAreAudited(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t, nil)
	p := f.parcel(t, nil, 1)
	_, err := f.Parcels.AssignToTrip(f.staff, []string{p.ID}, trip.ID)
	require.NoError(t, err)

	assigned := f.Events.OfType(models.EventParcelAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, p.ID, assigned[0].EntityId)
	assert.Equal(t, "warehouse", assigned[0].OldState)
	assert.Equal(t, "staged", assigned[0].NewState)
	assert.Equal(t, tenant, assigned[0].TenantId)
}

func TestParcel_PositionsAreNotReusedAfterUnassign(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t, nil)
	first := f.parcel(t, &trip.ID, 1)
	second := f.parcel(t, &trip.ID, 1)
	assert.Equal(t, "S1-002-01", second.Pieces[0].Barcode)

	_, err := f.Parcels.UnassignFromTrip(f.staff, []string{first.ID})
	require.NoError(t, err)

	third := f.parcel(t, &trip.ID, 1)
	assert.Equal(t, "S1-003-01", third.Pieces[0].Barcode)
	assert.Equal(t, "S1-002-01", f.get(t, second.ID).Pieces[0].Barcode)
}

func TestParcel_ReturnOfLandedParcelKeepsAWarehouse(t *testing.T) {
	f := newFixture(t)

	p := f.arrived(t)
	res, err := f.Parcels.ReturnToWarehouse(f.admin, []string{p.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	got := f.get(t, p.ID)
	assert.Equal(t, models.ParcelStatusWarehouse, got.Status)
	require.NotNil(t, got.WarehouseId)
	assert.Equal(t, f.warehouse.ID, *got.WarehouseId)

	other, err := f.Directory.CreateWarehouse(f.staff, models.NewWarehouse{Name: "Taunggyi"})
	require.NoError(t, err)
	q := f.arrived(t)
	_, err = f.Parcels.ReturnToWarehouse(f.admin, []string{q.ID}, &other.ID)
	require.NoError(t, err)
	got = f.get(t, q.ID)
	require.NotNil(t, got.WarehouseId)
	assert.Equal(t, other.ID, *got.WarehouseId)
	assert.Nil(t, got.TripId)

	_, err = f.Parcels.ReturnToWarehouse(f.admin, []string{q.ID}, utils.Ptr("missing"))
	requireKind(t, err, utils.ErrorKindNotFound)
}
