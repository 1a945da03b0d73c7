package repository

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/services"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UnitOfWork hands out gorm-backed stores. WithinTx runs fn in one database transaction.
type UnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func storesFor(db *gorm.DB) services.Stores {
	return services.Stores{
		Parcels:    &ParcelStore{db: db},
		Trips:      &TripStore{db: db},
		Invoices:   &InvoiceStore{db: db},
		Payments:   &PaymentStore{db: db},
		Clients:    &ClientStore{db: db},
		Warehouses: &WarehouseStore{db: db},
	}
}

func (u *UnitOfWork) Stores() services.Stores {
	return storesFor(u.db)
}

func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(tx services.Stores) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(storesFor(tx))
	})
}

// NewDeps wires the gorm stores, Redis sequencer, redislock locker and outbox publisher
// into the service dependencies. rdb and lock may be nil.
func NewDeps(db *gorm.DB, rdb *redis.Client, lock *redislock.Client, lockTTL time.Duration, logger *logrus.Logger) services.Deps {
	return services.Deps{
		UoW:       NewUnitOfWork(db),
		Sequencer: NewSequencer(db, rdb),
		Locker:    NewLocker(lock, lockTTL),
		Events:    NewOutboxPublisher(db),
		Logger:    logger,
	}
}
