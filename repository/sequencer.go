package repository

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/logistics_backend/config"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Sequencer allocates trip and invoice numbers from Redis counters.
// A missing counter is seeded from the highest number in the database, so a Redis flush
// never hands out a number twice. Without Redis it falls back to max+1; the unique
// indexes and the single retry in the services cover the remaining race.
type Sequencer struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewSequencer(db *gorm.DB, rdb *redis.Client) *Sequencer {
	return &Sequencer{db: db, rdb: rdb}
}

func (s *Sequencer) NextTripSequence(ctx context.Context) (int64, error) {
	tenantId := tenantOf(ctx)
	if tenantId == "" {
		return 0, utils.Forbidden("tenant not resolved for request")
	}
	trips := &TripStore{db: s.db}
	return s.next(ctx, fmt.Sprintf("seq:%s:trip", tenantId), func() (int64, error) {
		return trips.MaxTripSequence(ctx)
	})
}

func (s *Sequencer) NextInvoiceSequence(ctx context.Context, year int) (int64, error) {
	tenantId := tenantOf(ctx)
	if tenantId == "" {
		return 0, utils.Forbidden("tenant not resolved for request")
	}
	invoices := &InvoiceStore{db: s.db}
	return s.next(ctx, fmt.Sprintf("seq:%s:invoice:%d", tenantId, year), func() (int64, error) {
		return invoices.MaxInvoiceSequence(ctx, year)
	})
}

func (s *Sequencer) next(ctx context.Context, key string, dbMax func() (int64, error)) (int64, error) {
	if s.rdb == nil {
		max, err := dbMax()
		if err != nil {
			return 0, err
		}
		return max + 1, nil
	}

	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return s.fallback(ctx, key, dbMax, err)
	}
	if exists == 0 {
		max, err := dbMax()
		if err != nil {
			return 0, err
		}
		if err := s.rdb.SetNX(ctx, key, max, 0).Err(); err != nil {
			return s.fallback(ctx, key, dbMax, err)
		}
	}
	seq, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return s.fallback(ctx, key, dbMax, err)
	}
	return seq, nil
}

func (s *Sequencer) fallback(ctx context.Context, key string, dbMax func() (int64, error), cause error) (int64, error) {
	config.LogError(config.GetLogger(), "repository", "Sequencer", "redis sequence unavailable, using database max", key, cause)
	max, err := dbMax()
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
