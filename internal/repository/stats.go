package repository

import (
	"context"
	"time"

	"vdisphere/internal/model"
	"vdisphere/pkg/log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const cacheEventCollection = "cache_events"

// StatsRepository sinks allocation observability events. It is fire and
// forget: a failed insert is logged, never surfaced to the allocation path.
type StatsRepository interface {
	RecordCacheEvent(ctx context.Context, event *model.CacheEvent)
	ListCacheEvents(ctx context.Context, poolUuid string, since time.Time, limit int64) ([]*model.CacheEvent, error)
}

func NewStatsRepository(db *mongo.Database, logger *log.Logger) StatsRepository {
	return &statsRepository{
		db:     db,
		logger: logger,
	}
}

type statsRepository struct {
	db     *mongo.Database
	logger *log.Logger
}

func (r *statsRepository) RecordCacheEvent(ctx context.Context, event *model.CacheEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	_, err := r.db.Collection(cacheEventCollection).InsertOne(ctx, event)
	if err != nil {
		r.logger.WithContext(ctx).Warn("failed to record cache event",
			zap.Error(err),
			zap.String("pool_uuid", event.PoolUuid),
			zap.String("kind", event.Kind))
	}
}

func (r *statsRepository) ListCacheEvents(ctx context.Context, poolUuid string, since time.Time, limit int64) ([]*model.CacheEvent, error) {
	filter := bson.M{"at": bson.M{"$gte": since}}
	if poolUuid != "" {
		filter["pool_uuid"] = poolUuid
	}
	opts := options.Find().SetSort(bson.M{"at": -1})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}

	cursor, err := r.db.Collection(cacheEventCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []*model.CacheEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
