package models

import "time"

// History is the audit trail row written for every domain event.
type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	TenantId      string    `gorm:"size:64;index;not null" json:"tenant_id"`
	EventId       string    `gorm:"size:36;index" json:"event_id"`
	ActionType    string    `gorm:"size:50;not null" json:"action_type"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceID   string    `gorm:"size:36;index" json:"reference_id"`
	ReferenceType string    `gorm:"size:50" json:"reference_type"`
	UserId        string    `gorm:"size:36;index" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// HistoryFromEvent renders the audit row for an event.
func HistoryFromEvent(ev DomainEvent) History {
	return History{
		TenantId:      ev.TenantId,
		EventId:       ev.ID,
		ActionType:    string(ev.Type),
		Before:        ev.OldState,
		After:         ev.NewState,
		Description:   ev.Describe(),
		ReferenceID:   ev.EntityId,
		ReferenceType: ev.EntityType,
		UserId:        ev.ActorId,
		UserName:      ev.ActorName,
	}
}
