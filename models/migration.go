package models

import (
	"gorm.io/gorm"
)

func AllModels() []interface{} {
	return []interface{}{
		&Client{}, &Warehouse{}, &User{},
		&Parcel{}, &Piece{},
		&Trip{}, &TripExpense{},
		&Invoice{}, &InvoiceLineItem{}, &InvoiceAdjustment{},
		&Payment{},
		&History{}, &Notification{},
		&OutboxRecord{}, &IdempotencyKey{},
	}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
