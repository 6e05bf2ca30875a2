package model

import (
	"time"
)

// Publication is an immutable versioned build artifact (a golden template
// revision). Instances reference the publication active at their creation;
// a stale reference marks them for replacement once released.
type Publication struct {
	Id       int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Uuid     string `json:"uuid" gorm:"column:uuid;size:64;not null;uniqueIndex"`
	PoolID   int64  `json:"pool_id" gorm:"column:pool_id;not null;index"`
	Revision int    `json:"revision" gorm:"column:revision;not null"`
	State    string `json:"state" gorm:"column:state;size:16;not null;default:'usable';index"`

	UniqueID    string    `json:"unique_id" gorm:"column:unique_id;size:128"` // backend-side template identity
	PublishDate time.Time `json:"publish_date" gorm:"column:publish_date"`

	// Managed publications own their backend template; it is destroyed with
	// the publication. Unmanaged ones registered an existing template id.
	Managed int8 `json:"managed" gorm:"column:managed;not null;default:0"`

	CreateTime time.Time `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime time.Time `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (Publication) TableName() string {
	return "publications"
}

const (
	PublicationStatePreparing = "preparing"
	PublicationStateUsable    = "usable"
	PublicationStateRemovable = "removable"
)
