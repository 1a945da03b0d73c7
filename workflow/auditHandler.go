package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"gorm.io/gorm"
)

// AuditHandler writes one history row per event.
type AuditHandler struct{}

func (AuditHandler) Name() string { return "audit" }

func (AuditHandler) Handle(ctx context.Context, tx *gorm.DB, ev models.DomainEvent) error {
	h := models.HistoryFromEvent(ev)
	return tx.WithContext(ctx).Create(&h).Error
}
