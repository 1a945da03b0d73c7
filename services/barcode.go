package services

import (
	"context"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
)

// assignBarcodes labels the parcel for its position on the trip.
// Position is one past the highest position held by any other parcel on the trip.
// A position still held is never handed out twice, even after unassigns leave gaps.
func assignBarcodes(ctx context.Context, tx Stores, p *models.Parcel, trip *models.Trip) error {
	last, err := tx.Parcels.MaxTripPosition(ctx, trip.ID, p.ID)
	if err != nil {
		return err
	}
	p.AssignBarcodes(trip.TripNumber, last+1)
	return nil
}

// placeOnTrip stages the parcel on the trip and relabels it.
func placeOnTrip(ctx context.Context, tx Stores, p *models.Parcel, trip *models.Trip) error {
	tripId := trip.ID
	p.TripId = &tripId
	p.Status = models.ParcelStatusStaged
	return assignBarcodes(ctx, tx, p, trip)
}
