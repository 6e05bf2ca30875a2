package model

import (
	"time"
)

// Cache event kinds emitted by the allocator
const (
	CacheEventHit  = "hit"
	CacheEventMiss = "miss"
)

// CacheEvent records one allocation outcome with the tier occupancy at that
// moment. Stored in mongo for capacity planning, never read on the hot path.
type CacheEvent struct {
	PoolUuid      string    `bson:"pool_uuid"`
	Kind          string    `bson:"kind"`
	Level         int8      `bson:"level"`
	L1Count       int64     `bson:"l1_count"`
	L2Count       int64     `bson:"l2_count"`
	AssignedCount int64     `bson:"assigned_count"`
	At            time.Time `bson:"at"`
}
