package repository

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ParcelStore struct {
	db *gorm.DB
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func orderedPieces(db *gorm.DB) *gorm.DB {
	return db.Order("sequence_no")
}

func (s *ParcelStore) query(ctx context.Context) *gorm.DB {
	return scoped(ctx, s.db, "parcels").Preload("Pieces", orderedPieces)
}

func (s *ParcelStore) list(q *gorm.DB) ([]*models.Parcel, error) {
	var parcels []*models.Parcel
	if err := q.Order("parcels.created_at, parcels.id").Find(&parcels).Error; err != nil {
		return nil, err
	}
	return parcels, nil
}

func (s *ParcelStore) GetParcel(ctx context.Context, id string) (*models.Parcel, error) {
	var p models.Parcel
	if err := s.query(ctx).Where("parcels.id = ?", id).First(&p).Error; err != nil {
		return nil, translate(err, "parcel")
	}
	return &p, nil
}

func (s *ParcelStore) ListParcels(ctx context.Context, ids []string) ([]*models.Parcel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.list(s.query(ctx).Where("parcels.id IN ?", ids))
}

func (s *ParcelStore) ListParcelsByTrip(ctx context.Context, tripId string) ([]*models.Parcel, error) {
	return s.list(s.query(ctx).Where("parcels.trip_id = ?", tripId))
}

func (s *ParcelStore) ListParcelsByInvoice(ctx context.Context, invoiceId string) ([]*models.Parcel, error) {
	return s.list(s.query(ctx).Where("parcels.invoice_id = ?", invoiceId))
}

func (s *ParcelStore) MaxTripPosition(ctx context.Context, tripId string, excludeParcelId string) (int, error) {
	var last int
	err := scoped(ctx, s.db, "parcels").
		Model(&models.Parcel{}).
		Select("COALESCE(MAX(trip_position), 0)").
		Where("trip_id = ? AND id <> ?", tripId, excludeParcelId).
		Scan(&last).Error
	return last, err
}

func (s *ParcelStore) FindParcelByBarcode(ctx context.Context, barcode string) (*models.Parcel, error) {
	pieces := s.db.WithContext(ctx).Model(&models.Piece{}).Select("parcel_id").Where("barcode = ?", barcode)
	var p models.Parcel
	if err := s.query(ctx).Where("parcels.id IN (?)", pieces).First(&p).Error; err != nil {
		return nil, translate(err, "parcel")
	}
	return &p, nil
}

func (s *ParcelStore) FindParcelsByIdPrefix(ctx context.Context, prefix string, limit int) ([]*models.Parcel, error) {
	pattern := likeEscaper.Replace(strings.ToLower(prefix)) + "%"
	q := s.query(ctx).Where("LOWER(parcels.id) LIKE ?", pattern)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return s.list(q)
}

func (s *ParcelStore) CreateParcel(ctx context.Context, p *models.Parcel) error {
	return translate(s.db.WithContext(ctx).Create(p).Error, "parcel")
}

func (s *ParcelStore) UpdateParcel(ctx context.Context, p *models.Parcel) error {
	db := s.db.WithContext(ctx)
	err := db.Model(p).
		Select("*").
		Omit("id", "tenant_id", "created_at", clause.Associations).
		Updates(p).Error
	if err != nil {
		return translate(err, "parcel")
	}
	for _, piece := range p.Pieces {
		if err := db.Model(&models.Piece{}).Where("id = ?", piece.ID).Update("barcode", piece.Barcode).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *ParcelStore) DeleteParcel(ctx context.Context, id string) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("parcel_id = ?", id).Delete(&models.Piece{}).Error; err != nil {
		return err
	}
	res := scoped(ctx, s.db, "parcels").Where("id = ?", id).Delete(&models.Parcel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NotFound("parcel not found")
	}
	return nil
}
