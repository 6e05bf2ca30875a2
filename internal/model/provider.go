package model

import (
	"time"
)

// Provider is a backend connection boundary (one hypervisor/cloud account).
// It is the unit concurrency ceilings are accounted against, summed across
// all of its pools.
type Provider struct {
	Id       int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Uuid     string `json:"uuid" gorm:"column:uuid;size:64;not null;uniqueIndex"`
	Name     string `json:"name" gorm:"column:name;size:128;not null"`
	Type     string `json:"type" gorm:"column:type;size:32;not null;index"` // backend registry tag
	Config   string `json:"-" gorm:"column:config;type:text"`              // backend-specific JSON (host, token, node, ...)
	Comments string `json:"comments" gorm:"column:comments;size:255"`

	ConcurrentCreationLimit int  `json:"concurrent_creation_limit" gorm:"column:concurrent_creation_limit;not null;default:10"`
	ConcurrentRemovalLimit  int  `json:"concurrent_removal_limit" gorm:"column:concurrent_removal_limit;not null;default:8"`
	IgnoreLimits            int8 `json:"ignore_limits" gorm:"column:ignore_limits;not null;default:0"`
	Maintenance             int8 `json:"maintenance" gorm:"column:maintenance;not null;default:0"`

	CreateTime time.Time `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime time.Time `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (Provider) TableName() string {
	return "providers"
}
