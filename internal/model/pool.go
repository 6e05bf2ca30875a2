package model

import (
	"time"
)

// Pool is a configured desktop offering: one provider, cache tier targets and
// a capacity ceiling. Instances are drawn from it.
type Pool struct {
	Id                  int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Uuid                string `json:"uuid" gorm:"column:uuid;size:64;not null;uniqueIndex"`
	Name                string `json:"name" gorm:"column:name;size:128;not null"`
	Comments            string `json:"comments" gorm:"column:comments;size:255"`
	ProviderID          int64  `json:"provider_id" gorm:"column:provider_id;not null;index"`
	ActivePublicationID *int64 `json:"active_publication_id" gorm:"column:active_publication_id;index"`

	// MaxInstances 0 means unlimited
	MaxInstances     int `json:"max_instances" gorm:"column:max_instances;not null;default:0"`
	InitialInstances int `json:"initial_instances" gorm:"column:initial_instances;not null;default:0"`
	CacheL1          int `json:"cache_l1" gorm:"column:cache_l1;not null;default:0"`
	CacheL2          int `json:"cache_l2" gorm:"column:cache_l2;not null;default:0"`

	// SpawnsNew pools hand every request a fresh instance instead of reusing
	// one already assigned to the user
	SpawnsNew      int8   `json:"spawns_new" gorm:"column:spawns_new;not null;default:0"`
	Visible        int8   `json:"visible" gorm:"column:visible;not null;default:1"`
	FallbackAccess string `json:"fallback_access" gorm:"column:fallback_access;size:16;not null;default:'allow'"`
	OsManagerType  string `json:"os_manager_type" gorm:"column:os_manager_type;size:32;not null;default:'none'"`
	Status         string `json:"status" gorm:"column:status;size:16;not null;default:'active';index"`

	TemplateID string `json:"template_id" gorm:"column:template_id;size:128"` // backend template the publications clone

	CreateTime time.Time `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime time.Time `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (Pool) TableName() string {
	return "service_pools"
}

const (
	PoolStatusActive   = "active"
	PoolStatusRemoving = "removing"
	PoolStatusRemoved  = "removed"
)

// Fallback access policy applied when no finer-grained rule decides
const (
	FallbackAccessAllow = "allow"
	FallbackAccessDeny  = "deny"
)

// UsesCache reports whether the pool keeps warm spares at all
func (p *Pool) UsesCache() bool {
	return p.CacheL1 > 0 || p.CacheL2 > 0 || p.InitialInstances > 0
}
