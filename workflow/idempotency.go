package workflow

import (
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

// A STARTED row older than this is treated as abandoned by a crashed worker.
const idempotencyStaleAfter = 5 * time.Minute

// BeginIdempotency inserts STARTED. If SUCCEEDED exists, returns (true, nil) meaning "skip safely".
func BeginIdempotency(tx *gorm.DB, tenantId, handlerName, eventId string) (skip bool, err error) {
	key := models.IdempotencyKey{
		TenantId:    tenantId,
		HandlerName: handlerName,
		EventId:     eventId,
		Status:      models.IdempotencyStatusStarted,
	}
	// ON CONFLICT DO NOTHING keeps a Postgres transaction usable after a duplicate.
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&key)
	if res.Error != nil && !repository.IsDuplicateKeyErr(res.Error) {
		return false, res.Error
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return false, nil
	}

	var existing models.IdempotencyKey
	if err := tx.Where("tenant_id = ? AND handler_name = ? AND event_id = ?", tenantId, handlerName, eventId).
		First(&existing).Error; err != nil {
		return false, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, nil
	case models.IdempotencyStatusStarted:
		if time.Since(existing.UpdatedAt) < idempotencyStaleAfter {
			return false, ErrIdempotencyInProgress
		}
	}
	return false, tx.Model(&models.IdempotencyKey{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
}

func MarkIdempotencySucceeded(tx *gorm.DB, tenantId, handlerName, eventId string) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("tenant_id = ? AND handler_name = ? AND event_id = ?", tenantId, handlerName, eventId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "last_error": nil}).Error
}

func MarkIdempotencyFailed(tx *gorm.DB, tenantId, handlerName, eventId string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return tx.Model(&models.IdempotencyKey{}).
		Where("tenant_id = ? AND handler_name = ? AND event_id = ?", tenantId, handlerName, eventId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusFailed, "last_error": &msg}).Error
}
