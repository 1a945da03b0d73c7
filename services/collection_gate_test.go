package services_test

import (
	"net/http"
	"testing"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/testutil"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollection_PartialPaymentNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	p := f.arrived(t)
	inv := f.invoice(t, models.InvoiceStatusSent, models.NewInvoiceLineItem{ShipmentId: &p.ID, Quantity: dec(1), Rate: dec(1000)})
	_, err := f.Ledger.RecordPayment(f.staff, inv.ID, models.NewPayment{Amount: dec(300)})
	require.NoError(t, err)
	partial := models.InvoiceStatusPartial
	_, err = f.Ledger.UpdateInvoice(f.staff, inv.ID, models.UpdateInvoice{Status: &partial})
	require.NoError(t, err)

	check, err := f.Collection.Check(f.staff, p.ID)
	require.NoError(t, err)
	assert.True(t, check.CanCollect)
	assert.Equal(t, models.CollectionWarningPartialPayment, check.Warning)
	require.NotNil(t, check.Outstanding)
	assert.True(t, check.Outstanding.Equal(dec(700)))
	assert.True(t, check.RequiresConfirmation)
	assert.False(t, check.NotifyAdmin)
}

func TestCollection_CheckPriorities(t *testing.T) {
	f := newFixture(t)

	staged := f.parcel(t, &f.trip(t, nil).ID, 1)
	check, err := f.Collection.Check(f.staff, staged.ID)
	require.NoError(t, err)
	assert.False(t, check.CanCollect)
	assert.Equal(t, models.CollectionWarningNotArrived, check.Warning)

	p := f.arrived(t)
	check, err = f.Collection.Check(f.staff, p.ID)
	require.NoError(t, err)
	assert.True(t, check.CanCollect)
	assert.Equal(t, models.CollectionWarningNotInvoiced, check.Warning)
	assert.True(t, check.RequiresConfirmation)

	inv := f.invoice(t, models.InvoiceStatusSent, models.NewInvoiceLineItem{ShipmentId: &p.ID, Quantity: dec(1), Rate: dec(80)})
	check, err = f.Collection.Check(f.staff, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionWarningUnpaid, check.Warning)
	assert.True(t, check.NotifyAdmin)
	assert.True(t, check.Outstanding.Equal(dec(80)))

	_, err = f.Ledger.RecordPayment(f.staff, inv.ID, models.NewPayment{Amount: dec(80)})
	require.NoError(t, err)
	check, err = f.Collection.Check(f.staff, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionWarningNone, check.Warning)
	assert.False(t, check.RequiresConfirmation)

	require.NoError(t, f.Ledger.DeleteInvoice(f.admin, inv.ID))
	check, err = f.Collection.Check(f.staff, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionWarningNotInvoiced, check.Warning)
}

func TestCollection_CommitRejectsParcelThatNeverArrived(t *testing.T) {
	f := newFixture(t)
	p := f.parcel(t, &f.trip(t, nil).ID, 1)

	_, err := f.Collection.Commit(f.staff, p.ID, "")
	requireKind(t, err, utils.ErrorKindInvalidRequest)
	assert.Equal(t, http.StatusBadRequest, utils.HTTPStatus(err))
	assert.Contains(t, err.Error(), "staged")
	assert.Equal(t, models.ParcelStatusStaged, f.get(t, p.ID).Status)
}

func TestCollection_CommitUnpaidNotifiesAdmins(t *testing.T) {
	f := newFixture(t)
	p := f.arrived(t)
	f.invoice(t, models.InvoiceStatusSent, models.NewInvoiceLineItem{ShipmentId: &p.ID, Quantity: dec(1), Rate: dec(80)})

	res, err := f.Collection.Commit(f.staff, p.ID, "picked up by cousin")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.AdminNotified)
	assert.Equal(t, models.CollectionWarningUnpaid, res.Warning)
	assert.True(t, f.Now.Equal(res.CollectedAt))

	got := f.get(t, p.ID)
	assert.Equal(t, models.ParcelStatusCollected, got.Status)
	assert.Nil(t, got.WarehouseId)
	require.NotNil(t, got.CollectedBy)
	assert.Equal(t, "picked up by cousin", got.CollectionNote)

	unsettled := f.Events.OfType(models.EventCollectionUnsettled)
	require.Len(t, unsettled, 1)
	assert.Equal(t, p.ID, unsettled[0].EntityId)

	_, err = f.Collection.Commit(f.staff, p.ID, "")
	requireKind(t, err, utils.ErrorKindInvalidRequest)
}

func TestCollection_CommitUninvoicedStaysQuiet(t *testing.T) {
	f := newFixture(t)
	p := f.arrived(t)

	res, err := f.Collection.Commit(f.staff, p.ID, "")
	require.NoError(t, err)
	assert.False(t, res.AdminNotified)
	assert.Empty(t, f.Events.OfType(models.EventCollectionUnsettled))
}

func TestCollection_ScanResolvesBarcodeAndId(t *testing.T) {
	f := newFixture(t)
	byBarcode := f.arrived(t)
	byPrefix := f.arrived(t)

	res, err := f.Collection.ScanAndCollect(f.staff, byBarcode.Pieces[0].Barcode, "")
	require.NoError(t, err)
	assert.Equal(t, byBarcode.ID, res.ParcelId)

	res, err = f.Collection.ScanAndCollect(f.staff, "  "+byPrefix.ID[:13]+" ", "")
	require.NoError(t, err)
	assert.Equal(t, byPrefix.ID, res.ParcelId)

	_, err = f.Collection.ScanAndCollect(f.staff, "   ", "")
	requireKind(t, err, utils.ErrorKindInvalidRequest)

	_, err = f.Collection.ScanAndCollect(f.staff, "S99-001-01", "")
	requireKind(t, err, utils.ErrorKindNotFound)
}

func TestCollection_ScanPolicies(t *testing.T) {
	unpaidArrival := func(t *testing.T, f *fixture) *models.Parcel {
		p := f.arrived(t)
		f.invoice(t, models.InvoiceStatusSent, models.NewInvoiceLineItem{ShipmentId: &p.ID, Quantity: dec(1), Rate: dec(10)})
		return p
	}

	t.Run("skip payment check", func(t *testing.T) {
		f := newFixture(t)
		p := unpaidArrival(t, f)
		res, err := f.Collection.ScanAndCollect(f.staff, p.ID, "")
		require.NoError(t, err)
		assert.False(t, res.AdminNotified)
		assert.Empty(t, f.Events.OfType(models.EventCollectionUnsettled))
	})

	t.Run("notify unsettled", func(t *testing.T) {
		f := newFixture(t, testutil.WithScanPolicy("notify_unsettled"))
		p := unpaidArrival(t, f)
		res, err := f.Collection.ScanAndCollect(f.staff, p.ID, "")
		require.NoError(t, err)
		assert.True(t, res.AdminNotified)
		assert.Len(t, f.Events.OfType(models.EventCollectionUnsettled), 1)
	})

	t.Run("require settled", func(t *testing.T) {
		f := newFixture(t, testutil.WithScanPolicy("require_settled"))
		p := unpaidArrival(t, f)
		_, err := f.Collection.ScanAndCollect(f.staff, p.ID, "")
		requireKind(t, err, utils.ErrorKindInvalidRequest)
		assert.Equal(t, models.ParcelStatusArrived, f.get(t, p.ID).Status)
	})
}

func TestCollection_ClosedTripStillHandsOver(t *testing.T) {
	f := newFixture(t)
	committed := f.arrived(t)
	scanned := f.arrived(t)
	bulk := f.arrived(t)
	for _, p := range []*models.Parcel{committed, scanned, bulk} {
		_, err := f.Trips.Close(f.admin, *p.TripId)
		require.NoError(t, err)
	}

	res, err := f.Collection.Commit(f.staff, committed.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = f.Collection.ScanAndCollect(f.staff, scanned.Pieces[0].Barcode, "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.Parcel)
	assert.Equal(t, models.ParcelStatusCollected, res.Parcel.Status)

	moved, err := f.Parcels.BulkUpdateStatus(f.staff, []string{bulk.ID}, models.ParcelStatusCollected)
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Updated)

	for _, p := range []*models.Parcel{committed, scanned, bulk} {
		got := f.get(t, p.ID)
		assert.Equal(t, models.ParcelStatusCollected, got.Status)
		assert.True(t, got.IsCollected)
	}
}

func TestCollection_ScanReturnsParcelSummary(t *testing.T) {
	f := newFixture(t)
	p := f.arrived(t)
	trip, err := f.Trips.Get(f.staff, *p.TripId)
	require.NoError(t, err)

	res, err := f.Collection.ScanAndCollect(f.staff, p.Pieces[0].Barcode, "")
	require.NoError(t, err)
	require.NotNil(t, res.Parcel)
	assert.False(t, res.CollectedAt.IsZero())
	assert.Equal(t, p.ID, res.Parcel.ID)
	assert.Equal(t, f.client.ID, res.Parcel.ClientId)
	assert.Equal(t, f.client.Name, res.Parcel.ClientName)
	assert.Equal(t, "Rice bags", res.Parcel.Description)
	assert.Equal(t, trip.TripNumber, res.Parcel.TripNumber)
	assert.Equal(t, []string{p.Pieces[0].Barcode}, res.Parcel.Barcodes)
}

func TestCollection_OverrideCoveredByPaymentsIsSettled(t *testing.T) {
	f := newFixture(t)
	p := f.arrived(t)
	inv := f.invoice(t, models.InvoiceStatusSent, models.NewInvoiceLineItem{ShipmentId: &p.ID, Quantity: dec(1), Rate: dec(1000)})
	_, err := f.Ledger.RecordPayment(f.staff, inv.ID, models.NewPayment{Amount: dec(300)})
	require.NoError(t, err)

	override := dec(300)
	view, err := f.Ledger.UpdateInvoice(f.staff, inv.ID, models.UpdateInvoice{TotalOverride: &override})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, view.Status)
	assert.NotNil(t, view.PaidAt)
	assert.True(t, view.Outstanding.IsZero())

	check, err := f.Collection.Check(f.staff, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionWarningNone, check.Warning)
	assert.False(t, check.NotifyAdmin)
	assert.False(t, check.RequiresConfirmation)

	_, err = f.Ledger.RecordPayment(f.staff, inv.ID, models.NewPayment{Amount: dec(1)})
	requireKind(t, err, utils.ErrorKindInvalidRequest)
}
