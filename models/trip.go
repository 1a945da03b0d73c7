package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const TripNumberPrefix = "S"

type Trip struct {
	ID                     string     `gorm:"size:36;primaryKey" json:"id"`
	TenantId               string     `gorm:"size:64;not null;index;uniqueIndex:uniq_trip_number,priority:1" json:"tenant_id"`
	TripNumber             string     `gorm:"size:20;not null;uniqueIndex:uniq_trip_number,priority:2" json:"trip_number"`
	SequenceNo             int64      `gorm:"not null" json:"sequence_no"`
	Route                  string     `gorm:"size:255" json:"route"`
	VehicleId              string     `gorm:"size:64" json:"vehicle_id"`
	DriverId               string     `gorm:"size:64" json:"driver_id"`
	DestinationWarehouseId *string    `gorm:"size:36" json:"destination_warehouse_id"`
	Status                 TripStatus `gorm:"size:20;index;not null" json:"status"`
	ScheduledDeparture     *time.Time `json:"scheduled_departure"`
	ActualDeparture        *time.Time `json:"actual_departure"`
	ActualArrival          *time.Time `json:"actual_arrival"`
	LockedAt               *time.Time `json:"locked_at"`
	LockedBy               *string    `gorm:"size:100" json:"locked_by"`
	Notes                  string     `gorm:"type:text" json:"notes"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type TripExpense struct {
	ID          string          `gorm:"size:36;primaryKey" json:"id"`
	TenantId    string          `gorm:"size:64;index;not null" json:"tenant_id"`
	TripId      string          `gorm:"size:36;index;not null" json:"trip_id"`
	Category    string          `gorm:"size:50" json:"category"`
	Description string          `gorm:"size:255" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	ExpenseDate time.Time       `json:"expense_date"`
	CreatedBy   string          `gorm:"size:100" json:"created_by"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (t *Trip) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

func (e *TripExpense) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

type NewTrip struct {
	Route                  string     `json:"route"`
	VehicleId              string     `json:"vehicle_id"`
	DriverId               string     `json:"driver_id"`
	DestinationWarehouseId *string    `json:"destination_warehouse_id"`
	ScheduledDeparture     *time.Time `json:"scheduled_departure"`
	Notes                  string     `json:"notes"`
}

type NewTripExpense struct {
	Category    string          `json:"category"`
	Description string          `json:"description" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate *time.Time      `json:"expense_date"`
}

func FormatTripNumber(seq int64) string {
	return TripNumberPrefix + strconv.FormatInt(seq, 10)
}

func ParseTripNumber(s string) (int64, error) {
	if !strings.HasPrefix(s, TripNumberPrefix) {
		return 0, fmt.Errorf("trip number %q must start with %s", s, TripNumberPrefix)
	}
	return strconv.ParseInt(strings.TrimPrefix(s, TripNumberPrefix), 10, 64)
}

func (t *Trip) IsLocked() bool {
	return t.LockedAt != nil
}

func (t *Trip) Lock(by string, now time.Time) {
	t.Status = TripStatusClosed
	t.LockedAt = &now
	t.LockedBy = &by
}

// Depart stamps the first departure only.
func (t *Trip) Depart(now time.Time) {
	t.Status = TripStatusInTransit
	if t.ActualDeparture == nil {
		t.ActualDeparture = &now
	}
}

func (t *Trip) Arrive(now time.Time) {
	t.Status = TripStatusDelivered
	if t.ActualArrival == nil {
		t.ActualArrival = &now
	}
}

// Duplicate copies the route plan into a fresh planning trip.
func (t *Trip) Duplicate() *Trip {
	var dest *string
	if t.DestinationWarehouseId != nil {
		d := *t.DestinationWarehouseId
		dest = &d
	}
	return &Trip{
		TenantId:               t.TenantId,
		Route:                  t.Route,
		VehicleId:              t.VehicleId,
		DriverId:               t.DriverId,
		DestinationWarehouseId: dest,
		Status:                 TripStatusPlanning,
		Notes:                  t.Notes,
	}
}
