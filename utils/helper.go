package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

const MoneyPlaces = 2

// NormalizePhoneNumber returns the E.164 form of a valid number.
func NormalizePhoneNumber(phoneNumber, countryCode string) (string, error) {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return "", err
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("phone number is not valid")
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorResponse["body"] = err.Error()
		return errorResponse
	}

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func UniqueSlice[T comparable](slice []T) []T {
	seen := make(map[T]bool, len(slice))
	result := make([]T, 0, len(slice))
	for _, v := range slice {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	var zero T
	if len(defaults) > 0 {
		return defaults[0]
	}
	return zero
}

func NilIfEmpty[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

func Ptr[T any](v T) *T {
	return &v
}

// FormatMoney renders an amount for presentation. Stored values keep full precision.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
