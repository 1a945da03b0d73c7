package models

import "strings"

type ParcelStatus string

const (
	ParcelStatusWarehouse ParcelStatus = "warehouse"
	ParcelStatusStaged    ParcelStatus = "staged"
	ParcelStatusLoaded    ParcelStatus = "loaded"
	ParcelStatusInTransit ParcelStatus = "in_transit"
	ParcelStatusArrived   ParcelStatus = "arrived"
	ParcelStatusDelivered ParcelStatus = "delivered"
	ParcelStatusCollected ParcelStatus = "collected"
)

func (s ParcelStatus) IsValid() bool {
	switch s {
	case ParcelStatusWarehouse, ParcelStatusStaged, ParcelStatusLoaded, ParcelStatusInTransit,
		ParcelStatusArrived, ParcelStatusDelivered, ParcelStatusCollected:
		return true
	}
	return false
}

// CanTransitionTo reports whether the forward lifecycle allows s -> to.
// Returning a parcel to the warehouse from anywhere else is an admin action and is
// handled by CanReturnToWarehouse instead.
func (s ParcelStatus) CanTransitionTo(to ParcelStatus) bool {
	switch s {
	case ParcelStatusWarehouse:
		return to == ParcelStatusStaged
	case ParcelStatusStaged:
		return to == ParcelStatusLoaded || to == ParcelStatusWarehouse
	case ParcelStatusLoaded:
		return to == ParcelStatusInTransit || to == ParcelStatusStaged
	case ParcelStatusInTransit:
		return to == ParcelStatusArrived
	case ParcelStatusArrived:
		return to == ParcelStatusDelivered || to == ParcelStatusCollected
	case ParcelStatusDelivered:
		return to == ParcelStatusCollected
	default:
		return false
	}
}

func (s ParcelStatus) CanReturnToWarehouse() bool {
	return s.IsValid() && s != ParcelStatusWarehouse
}

// OnTrip is true for the statuses that require a trip reference.
func (s ParcelStatus) OnTrip() bool {
	return s == ParcelStatusStaged || s == ParcelStatusLoaded || s == ParcelStatusInTransit
}

// Landed is true once the parcel has reached its destination.
// A landed parcel no longer belongs to the trip's working set.
func (s ParcelStatus) Landed() bool {
	return s == ParcelStatusArrived || s == ParcelStatusDelivered || s == ParcelStatusCollected
}

type TripStatus string

const (
	TripStatusPlanning  TripStatus = "planning"
	TripStatusLoading   TripStatus = "loading"
	TripStatusInTransit TripStatus = "in_transit"
	TripStatusDelivered TripStatus = "delivered"
	TripStatusClosed    TripStatus = "closed"
)

func (s TripStatus) IsValid() bool {
	return s.rank() >= 0
}

func (s TripStatus) rank() int {
	switch s {
	case TripStatusPlanning:
		return 0
	case TripStatusLoading:
		return 1
	case TripStatusInTransit:
		return 2
	case TripStatusDelivered:
		return 3
	case TripStatusClosed:
		return 4
	default:
		return -1
	}
}

// IsForwardOf reports whether s comes strictly after other in the lifecycle.
func (s TripStatus) IsForwardOf(other TripStatus) bool {
	return s.rank() > other.rank()
}

type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusOverdue, InvoiceStatusPartial, InvoiceStatusPaid:
		return true
	}
	return false
}

type UserRole string

const (
	UserRoleOwner UserRole = "owner"
	UserRoleAdmin UserRole = "admin"
	UserRoleStaff UserRole = "staff"
)

func (r UserRole) IsValid() bool {
	return r == UserRoleOwner || r == UserRoleAdmin || r == UserRoleStaff
}

func (r UserRole) IsElevated() bool {
	return r == UserRoleOwner || r == UserRoleAdmin
}

func ParseUserRole(s string) UserRole {
	r := UserRole(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return UserRoleStaff
	}
	return r
}

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodMobileWallet PaymentMethod = "mobile_wallet"
	PaymentMethodOther        PaymentMethod = "other"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCard, PaymentMethodMobileWallet, PaymentMethodOther:
		return true
	}
	return false
}

type AdjustmentType string

const (
	AdjustmentTypeAddition    AdjustmentType = "addition"
	AdjustmentTypeSubtraction AdjustmentType = "subtraction"
)

func (t AdjustmentType) IsValid() bool {
	return t == AdjustmentTypeAddition || t == AdjustmentTypeSubtraction
}

type CollectionWarning string

const (
	CollectionWarningNone            CollectionWarning = ""
	CollectionWarningNotArrived      CollectionWarning = "not_arrived"
	CollectionWarningNotInvoiced     CollectionWarning = "not_invoiced"
	CollectionWarningInvoiceNotFound CollectionWarning = "invoice_not_found"
	CollectionWarningPartialPayment  CollectionWarning = "partial_payment"
	CollectionWarningUnpaid          CollectionWarning = "unpaid"
)
