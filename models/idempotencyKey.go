package models

import "time"

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// IdempotencyKey records that an event handler ran for an outbox event.
// Unique constraint: (tenant_id, handler_name, event_id).
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	TenantId    string            `gorm:"size:64;not null;index:uniq_idem,unique" json:"tenant_id"`
	HandlerName string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"handler_name"`
	EventId     string            `gorm:"size:64;not null;index:uniq_idem,unique" json:"event_id"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
