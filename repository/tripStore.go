package repository

import (
	"context"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"gorm.io/gorm"
)

type TripStore struct {
	db *gorm.DB
}

func (s *TripStore) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	return fetch[models.Trip](ctx, s.db, "trip", id)
}

func (s *TripStore) CreateTrip(ctx context.Context, t *models.Trip) error {
	return translate(s.db.WithContext(ctx).Create(t).Error, "trip number "+t.TripNumber)
}

func (s *TripStore) UpdateTrip(ctx context.Context, t *models.Trip) error {
	err := s.db.WithContext(ctx).Model(t).
		Select("*").
		Omit("id", "tenant_id", "trip_number", "sequence_no", "created_at").
		Updates(t).Error
	return translate(err, "trip")
}

func (s *TripStore) DeleteTrip(ctx context.Context, id string) error {
	res := scoped(ctx, s.db, "trips").Where("id = ?", id).Delete(&models.Trip{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NotFound("trip not found")
	}
	return nil
}

func (s *TripStore) MaxTripSequence(ctx context.Context) (int64, error) {
	var max int64
	err := scoped(ctx, s.db, "trips").Model(&models.Trip{}).
		Select("COALESCE(MAX(sequence_no), 0)").
		Scan(&max).Error
	return max, err
}

func (s *TripStore) GetExpense(ctx context.Context, id string) (*models.TripExpense, error) {
	return fetch[models.TripExpense](ctx, s.db, "expense", id)
}

func (s *TripStore) ListExpenses(ctx context.Context, tripId string) ([]*models.TripExpense, error) {
	var expenses []*models.TripExpense
	err := scoped(ctx, s.db, "trip_expenses").
		Where("trip_id = ?", tripId).
		Order("expense_date, created_at").
		Find(&expenses).Error
	return expenses, err
}

func (s *TripStore) CreateExpense(ctx context.Context, e *models.TripExpense) error {
	return translate(s.db.WithContext(ctx).Create(e).Error, "expense")
}

func (s *TripStore) DeleteExpense(ctx context.Context, id string) error {
	res := scoped(ctx, s.db, "trip_expenses").Where("id = ?", id).Delete(&models.TripExpense{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NotFound("expense not found")
	}
	return nil
}

func (s *TripStore) DeleteExpensesByTrip(ctx context.Context, tripId string) error {
	return scoped(ctx, s.db, "trip_expenses").Where("trip_id = ?", tripId).Delete(&models.TripExpense{}).Error
}
