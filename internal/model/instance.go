package model

import (
	"time"
)

// Instance is a consumable compute unit (virtual desktop) bound to a pool,
// optionally to a user and to the publication it was built from.
type Instance struct {
	Id            int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Uuid          string `json:"uuid" gorm:"column:uuid;size:64;not null;uniqueIndex"`
	PoolID        int64  `json:"pool_id" gorm:"column:pool_id;not null;index"`
	PublicationID *int64 `json:"publication_id" gorm:"column:publication_id;index"`
	UserID        *int64 `json:"user_id" gorm:"column:user_id;index"`

	State      string    `json:"state" gorm:"column:state;size:16;not null;default:'preparing';index"`
	OsState    string    `json:"os_state" gorm:"column:os_state;size:16;not null;default:'preparing'"`
	CacheLevel int8      `json:"cache_level" gorm:"column:cache_level;not null;default:0;index"`
	StateDate  time.Time `json:"state_date" gorm:"column:state_date;index"`

	// DestroyAfter marks the instance for removal as soon as the user lets go of it
	DestroyAfter int8       `json:"destroy_after" gorm:"column:destroy_after;not null;default:0"`
	InUse        int8       `json:"in_use" gorm:"column:in_use;not null;default:0"`
	InUseDate    *time.Time `json:"in_use_date" gorm:"column:in_use_date"`

	// UniqueID is the backend-side identity (e.g. a vmid), Blob the serialized
	// continuation state of the backend operation in flight
	UniqueID     string `json:"unique_id" gorm:"column:unique_id;size:128;index"`
	FriendlyName string `json:"friendly_name" gorm:"column:friendly_name;size:128"`
	Blob         []byte `json:"-" gorm:"column:blob;type:blob"`
	Reason       string `json:"reason" gorm:"column:reason;size:255"`

	// Guest agent channel, filled in by the ready callback
	CommsEndpoint string `json:"comms_endpoint" gorm:"column:comms_endpoint;size:255"`
	AgentVersion  string `json:"agent_version" gorm:"column:agent_version;size:32"`
	CommsSecret   string `json:"-" gorm:"column:comms_secret;size:64"`
	KnownIP       string `json:"known_ip" gorm:"column:known_ip;size:64"`

	CreateTime time.Time `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime time.Time `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (Instance) TableName() string {
	return "instances"
}

// Instance lifecycle states. A row never leaves removed/canceled; error
// requires administrative removal.
const (
	InstanceStatePreparing = "preparing"
	InstanceStateUsable    = "usable"
	InstanceStateRemoving  = "removing"
	InstanceStateRemovable = "removable"
	InstanceStateCanceling = "canceling"
	InstanceStateRemoved   = "removed"
	InstanceStateCanceled  = "canceled"
	InstanceStateError     = "error"
)

// Guest OS readiness, mirrored independently of the lifecycle state
const (
	OsStatePreparing = "preparing"
	OsStateUsable    = "usable"
)

// Cache tiers. A tier other than none implies no owning user.
const (
	CacheLevelNone int8 = 0
	CacheLevelL1   int8 = 1
	CacheLevelL2   int8 = 2
)

var (
	// InstanceValidStates are the states an existing assignment may be reused in
	InstanceValidStates = []string{InstanceStateUsable, InstanceStatePreparing}
	// InstanceInfoStates are terminal states kept for bookkeeping only
	InstanceInfoStates = []string{InstanceStateRemoved, InstanceStateCanceled, InstanceStateError}
)

// IsTerminal reports whether the state admits no further transitions
func InstanceStateIsTerminal(state string) bool {
	return state == InstanceStateRemoved || state == InstanceStateCanceled || state == InstanceStateError
}
