package model

import (
	"time"
)

// MetaPool aggregates several pools behind one offering; requests are spread
// over the members according to the selection policy.
type MetaPool struct {
	Id       int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Uuid     string `json:"uuid" gorm:"column:uuid;size:64;not null;uniqueIndex"`
	Name     string `json:"name" gorm:"column:name;size:128;not null"`
	Comments string `json:"comments" gorm:"column:comments;size:255"`
	Policy   string `json:"policy" gorm:"column:policy;size:16;not null;default:'priority'"`
	HaPolicy string `json:"ha_policy" gorm:"column:ha_policy;size:16;not null;default:'disabled'"`
	Visible  int8   `json:"visible" gorm:"column:visible;not null;default:1"`

	CreateTime time.Time `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime time.Time `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (MetaPool) TableName() string {
	return "meta_pools"
}

type MetaPoolMember struct {
	Id         int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MetaPoolID int64 `json:"meta_pool_id" gorm:"column:meta_pool_id;not null;index"`
	PoolID     int64 `json:"pool_id" gorm:"column:pool_id;not null;index"`
	Priority   int   `json:"priority" gorm:"column:priority;not null;default:0"`
	Enabled    int8  `json:"enabled" gorm:"column:enabled;not null;default:1"`

	CreateTime time.Time `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime time.Time `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (MetaPoolMember) TableName() string {
	return "meta_pool_members"
}

// Member selection policies. Lower key sorts first: priority uses the member
// priority, most_free the percent of capacity in use, random a shuffled order.
const (
	MetaPolicyPriority = "priority"
	MetaPolicyMostFree = "most_free"
	MetaPolicyRandom   = "random"
)

// High availability policy: enabled skips members whose provider is out of
// service and releases assignments stuck on them.
const (
	MetaHaDisabled = "disabled"
	MetaHaEnabled  = "enabled"
)
