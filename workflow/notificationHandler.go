package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/repository"
	"gorm.io/gorm"
)

// UnsettledCollectionNotifier tells every owner and admin of the tenant that a parcel
// left the warehouse with an unpaid invoice.
type UnsettledCollectionNotifier struct{}

func (UnsettledCollectionNotifier) Name() string { return "notify_unsettled_collection" }

func (UnsettledCollectionNotifier) Handle(ctx context.Context, tx *gorm.DB, ev models.DomainEvent) error {
	if ev.Type != models.EventCollectionUnsettled {
		return nil
	}
	users, err := repository.NewUserStore(tx).ListElevatedUsers(ctx, ev.TenantId)
	if err != nil {
		return err
	}
	notes := unsettledNotifications(ev, users)
	if len(notes) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&notes).Error
}

type unsettledPayload struct {
	InvoiceId     string `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
	Warning       string `json:"warning"`
	Outstanding   string `json:"outstanding"`
}

func unsettledNotifications(ev models.DomainEvent, users []*models.User) []models.Notification {
	var payload unsettledPayload
	if len(ev.Payload) > 0 {
		_ = json.Unmarshal(ev.Payload, &payload)
	}

	title := "Parcel collected with unsettled invoice"
	var message string
	switch {
	case payload.InvoiceNumber == "":
		message = fmt.Sprintf("Parcel %s was collected by %s but is not invoiced.", ev.EntityId, ev.ActorName)
	case payload.Outstanding != "":
		message = fmt.Sprintf("Parcel %s was collected by %s. Invoice %s has %s outstanding (%s).",
			ev.EntityId, ev.ActorName, payload.InvoiceNumber, payload.Outstanding, payload.Warning)
	default:
		message = fmt.Sprintf("Parcel %s was collected by %s. Invoice %s is %s.",
			ev.EntityId, ev.ActorName, payload.InvoiceNumber, payload.Warning)
	}

	notes := make([]models.Notification, 0, len(users))
	for _, u := range users {
		notes = append(notes, models.Notification{
			TenantId:      ev.TenantId,
			UserId:        u.ID,
			EventId:       ev.ID,
			Title:         title,
			Message:       message,
			ReferenceType: models.EntityParcel,
			ReferenceId:   ev.EntityId,
		})
	}
	return notes
}
