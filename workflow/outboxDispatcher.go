package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/config"
	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventHandler consumes one domain event inside the dispatcher's transaction.
type EventHandler interface {
	Name() string
	Handle(ctx context.Context, tx *gorm.DB, ev models.DomainEvent) error
}

// PublishFunc sends a serialized event to the external topic and returns the message id.
type PublishFunc func(ctx context.Context, tenantId string, data []byte, attributes map[string]string) (string, error)

type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string
	Handlers     []EventHandler
	Publish      PublishFunc

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger, handlers ...EventHandler) *OutboxDispatcher {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		Handlers:       handlers,
		Publish:        config.PublishDomainEvent,
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     10 * time.Minute,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch and delivers it. It returns the number of records claimed.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) int {
	if d.DB == nil {
		return 0
	}
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)

	var claimed []models.OutboxRecord
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible: PENDING or FAILED and due, or PROCESSING with a stale lock.
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now, models.OutboxPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if d.MaxAttempts > 0 && claimed[i].PublishAttempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].PublishStatus = models.OutboxPublishStatusDead
				if err := tx.Model(&models.OutboxRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].PublishStatus = models.OutboxPublishStatusProcessing
			claimed[i].PublishAttempts++
			if err := tx.Model(&models.OutboxRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusProcessing,
				"locked_at":          &now,
				"locked_by":          &d.DispatcherID,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(d.Logger, "workflow", "OutboxDispatcher", "claiming outbox batch", nil, err)
		return 0
	}

	for _, rec := range claimed {
		if rec.PublishStatus == models.OutboxPublishStatusDead {
			continue
		}
		pubID, err := d.deliver(ctx, rec)
		if err != nil {
			d.markFailed(ctx, rec, err)
			continue
		}
		d.markSent(ctx, rec.ID, pubID)
	}
	return len(claimed)
}

// deliver runs every local handler, then forwards the event to Pub/Sub when configured.
func (d *OutboxDispatcher) deliver(ctx context.Context, rec models.OutboxRecord) (string, error) {
	ev, err := rec.Event()
	if err != nil {
		return "", fmt.Errorf("decode event %s: %w", rec.EventId, err)
	}
	for _, h := range d.Handlers {
		if err := d.runHandler(ctx, h, ev); err != nil {
			return "", fmt.Errorf("%s: %w", h.Name(), err)
		}
	}
	if d.Publish == nil {
		return "", nil
	}
	pubID, err := d.Publish(ctx, ev.TenantId, []byte(rec.Payload), map[string]string{
		"event_type":  string(ev.Type),
		"entity_type": ev.EntityType,
		"tenant_id":   ev.TenantId,
	})
	if errors.Is(err, config.ErrPubSubNotConfigured) {
		return "", nil
	}
	return pubID, err
}

func (d *OutboxDispatcher) runHandler(ctx context.Context, h EventHandler, ev models.DomainEvent) error {
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		skip, err := BeginIdempotency(tx, ev.TenantId, h.Name(), ev.ID)
		if err != nil || skip {
			return err
		}
		if err := h.Handle(ctx, tx, ev); err != nil {
			return err
		}
		return MarkIdempotencySucceeded(tx, ev.TenantId, h.Name(), ev.ID)
	})
	if err != nil && !errors.Is(err, ErrIdempotencyInProgress) {
		_ = MarkIdempotencyFailed(d.DB.WithContext(ctx), ev.TenantId, h.Name(), ev.ID, err)
	}
	return err
}

func (d *OutboxDispatcher) markSent(ctx context.Context, recordID int, pubsubMsgID string) {
	now := time.Now().UTC()
	var msgID *string
	if pubsubMsgID != "" {
		msgID = &pubsubMsgID
	}
	err := d.DB.WithContext(ctx).Model(&models.OutboxRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusSent,
			"published_at":       &now,
			"pub_sub_message_id": msgID,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    nil,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "workflow", "OutboxDispatcher", "marking outbox record sent", recordID, err)
	}
}

func (d *OutboxDispatcher) markFailed(ctx context.Context, rec models.OutboxRecord, cause error) {
	msg := cause.Error()
	fields := logrus.Fields{
		"field":      "OutboxDispatcher",
		"tenant_id":  rec.TenantId,
		"record_id":  rec.ID,
		"event_type": rec.EventType,
		"attempt":    rec.PublishAttempts,
	}

	updates := map[string]interface{}{
		"last_publish_error": &msg,
		"locked_at":          nil,
		"locked_by":          nil,
	}
	if d.MaxAttempts > 0 && rec.PublishAttempts >= d.MaxAttempts {
		updates["publish_status"] = models.OutboxPublishStatusDead
		updates["next_attempt_at"] = nil
		d.Logger.WithFields(fields).Error("outbox delivery moved to DEAD after max attempts: " + msg)
	} else {
		next := time.Now().UTC().Add(retryBackoff(rec.PublishAttempts, d.InitialBackoff, d.MaxBackoff))
		updates["publish_status"] = models.OutboxPublishStatusFailed
		updates["next_attempt_at"] = &next
		fields["next_attempt_at"] = next.Format(time.RFC3339Nano)
		d.Logger.WithFields(fields).Error("outbox delivery failed: " + msg)
	}
	if err := d.DB.WithContext(ctx).Model(&models.OutboxRecord{}).Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
		config.LogError(d.Logger, "workflow", "OutboxDispatcher", "marking outbox record failed", rec.ID, err)
	}
}

// retryBackoff doubles from base for every attempt after the first, capped at max.
func retryBackoff(attempt int, base, max time.Duration) time.Duration {
	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if max > 0 && backoff >= max {
			return max
		}
	}
	return backoff
}

// ReplayDead moves DEAD records back to PENDING with a fresh attempt budget.
// An empty tenantId replays every tenant.
func ReplayDead(ctx context.Context, db *gorm.DB, tenantId string) (int64, error) {
	q := db.WithContext(utils.SetSkipTenantScopeInContext(ctx, true)).
		Model(&models.OutboxRecord{}).
		Where("publish_status = ?", models.OutboxPublishStatusDead)
	if tenantId != "" {
		q = q.Where("tenant_id = ?", tenantId)
	}
	res := q.Updates(map[string]interface{}{
		"publish_status":   models.OutboxPublishStatusPending,
		"publish_attempts": 0,
		"next_attempt_at":  nil,
	})
	return res.RowsAffected, res.Error
}
