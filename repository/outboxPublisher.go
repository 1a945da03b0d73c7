package repository

import (
	"context"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"gorm.io/gorm"
)

// OutboxPublisher queues domain events in the outbox table. The dispatcher delivers them.
type OutboxPublisher struct {
	db *gorm.DB
}

func NewOutboxPublisher(db *gorm.DB) *OutboxPublisher {
	return &OutboxPublisher{db: db}
}

func (p *OutboxPublisher) Publish(ctx context.Context, events ...models.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]*models.OutboxRecord, 0, len(events))
	for _, ev := range events {
		rec, err := models.NewOutboxRecord(ev)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	return translate(p.db.WithContext(ctx).Create(&records).Error, "outbox event")
}
