package model

import (
	"time"
)

// DelayedTask is one pending recheck for an instance. The (type, instance
// uuid) pair is deduplicated through Tag: scheduling always removes the
// previous entry first, so at most one row per instance and purpose exists.
type DelayedTask struct {
	Id            int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Tag           string    `json:"tag" gorm:"column:tag;size:160;not null;uniqueIndex"`
	Type          string    `json:"type" gorm:"column:type;size:64;not null"`
	InstanceUuid  string    `json:"instance_uuid" gorm:"column:instance_uuid;size:64;not null;index"`
	ExpectedState string    `json:"expected_state" gorm:"column:expected_state;size:16;not null"`
	Payload       []byte    `json:"-" gorm:"column:payload;type:blob"`
	ExecutionTime time.Time `json:"execution_time" gorm:"column:execution_time;not null;index"`
	InsertDate    time.Time `json:"insert_date" gorm:"column:insert_date;not null"`
}

func (DelayedTask) TableName() string {
	return "delayed_tasks"
}
