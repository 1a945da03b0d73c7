package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventParcelCreated       EventType = "parcel.created"
	EventParcelStatusChanged EventType = "parcel.status_changed"
	EventParcelAssigned      EventType = "parcel.assigned"
	EventParcelUnassigned    EventType = "parcel.unassigned"
	EventParcelDeleted       EventType = "parcel.deleted"
	EventParcelCollected     EventType = "parcel.collected"
	EventCollectionUnsettled EventType = "collection.unsettled"

	EventTripCreated        EventType = "trip.created"
	EventTripUpdated        EventType = "trip.updated"
	EventTripStatusChanged  EventType = "trip.status_changed"
	EventTripClosed         EventType = "trip.closed"
	EventTripDeleted        EventType = "trip.deleted"
	EventTripExpenseAdded   EventType = "trip.expense_added"
	EventTripExpenseDeleted EventType = "trip.expense_deleted"

	EventInvoiceCreated       EventType = "invoice.created"
	EventInvoiceUpdated       EventType = "invoice.updated"
	EventInvoiceStatusChanged EventType = "invoice.status_changed"
	EventInvoiceDeleted       EventType = "invoice.deleted"
	EventInvoiceReassigned    EventType = "invoice.parcels_reassigned"
	EventPaymentRecorded      EventType = "payment.recorded"
	EventPaymentDeleted       EventType = "payment.deleted"

	EventClientCreated    EventType = "client.created"
	EventClientUpdated    EventType = "client.updated"
	EventWarehouseCreated EventType = "warehouse.created"
)

const (
	EntityParcel    = "parcel"
	EntityTrip      = "trip"
	EntityInvoice   = "invoice"
	EntityPayment   = "payment"
	EntityClient    = "client"
	EntityWarehouse = "warehouse"
)

// DomainEvent is a state change emitted by a core operation after its transaction commits.
type DomainEvent struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	TenantId      string          `json:"tenant_id"`
	EntityType    string          `json:"entity_type"`
	EntityId      string          `json:"entity_id"`
	OldState      string          `json:"old_state,omitempty"`
	NewState      string          `json:"new_state,omitempty"`
	ActorId       string          `json:"actor_id"`
	ActorName     string          `json:"actor_name"`
	CorrelationId string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func NewDomainEvent(actor Actor, typ EventType, entityType string, entityId string, oldState, newState string, now time.Time) DomainEvent {
	return DomainEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		TenantId:   actor.TenantId,
		EntityType: entityType,
		EntityId:   entityId,
		OldState:   oldState,
		NewState:   newState,
		ActorId:    actor.UserId,
		ActorName:  actor.DisplayName(),
		OccurredAt: now,
	}
}

// WithPayload attaches a JSON payload. Marshal failures leave the payload empty.
func (ev DomainEvent) WithPayload(payload any) DomainEvent {
	if payload == nil {
		return ev
	}
	if b, err := json.Marshal(payload); err == nil {
		ev.Payload = b
	}
	return ev
}

func (ev DomainEvent) Describe() string {
	switch {
	case ev.OldState != "" && ev.NewState != "":
		return fmt.Sprintf("%s %s: %s -> %s", ev.EntityType, ev.EntityId, ev.OldState, ev.NewState)
	case ev.NewState != "":
		return fmt.Sprintf("%s %s: %s", ev.EntityType, ev.EntityId, ev.NewState)
	default:
		return fmt.Sprintf("%s %s: %s", ev.EntityType, ev.EntityId, ev.Type)
	}
}

// Outbox publish statuses for OutboxRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

type OutboxRecord struct {
	ID               int        `gorm:"primary_key" json:"id"`
	TenantId         string     `gorm:"size:64;index;not null" json:"tenant_id"`
	EventId          string     `gorm:"size:36;not null;uniqueIndex" json:"event_id"`
	EventType        string     `gorm:"size:50;not null;index" json:"event_type"`
	EntityType       string     `gorm:"size:50" json:"entity_type"`
	EntityId         string     `gorm:"size:36" json:"entity_id"`
	Payload          string     `gorm:"type:text;not null" json:"payload"`
	PublishStatus    string     `gorm:"size:20;not null;index;default:PENDING" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	NextAttemptAt    *time.Time `gorm:"index" json:"next_attempt_at"`
	LockedAt         *time.Time `json:"locked_at"`
	LockedBy         *string    `gorm:"size:36" json:"locked_by"`
	PublishedAt      *time.Time `json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:100" json:"pub_sub_message_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func NewOutboxRecord(ev DomainEvent) (*OutboxRecord, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &OutboxRecord{
		TenantId:      ev.TenantId,
		EventId:       ev.ID,
		EventType:     string(ev.Type),
		EntityType:    ev.EntityType,
		EntityId:      ev.EntityId,
		Payload:       string(b),
		PublishStatus: OutboxPublishStatusPending,
	}, nil
}

func (r *OutboxRecord) Event() (DomainEvent, error) {
	var ev DomainEvent
	err := json.Unmarshal([]byte(r.Payload), &ev)
	return ev, err
}
