package v1

import "time"

type CreatePoolRequest struct {
	Name         string `json:"name" binding:"required,min=2,max=128" example:"win11-sales"`
	Comments     string `json:"comments,omitempty"`
	ProviderUuid string `json:"provider_uuid" binding:"required"`
	TemplateID   string `json:"template_id" binding:"required" example:"9000"` // backend template the pool clones

	MaxInstances     *int `json:"max_instances,omitempty" example:"50"` // 0 means unlimited
	InitialInstances *int `json:"initial_instances,omitempty" example:"2"`
	CacheL1          *int `json:"cache_l1,omitempty" example:"2"`
	CacheL2          *int `json:"cache_l2,omitempty" example:"4"`

	SpawnsNew      *int8  `json:"spawns_new,omitempty" example:"0"`
	Visible        *int8  `json:"visible,omitempty" example:"1"`
	FallbackAccess string `json:"fallback_access,omitempty" binding:"omitempty,oneof=allow deny" example:"allow"`
	OsManagerType  string `json:"os_manager_type,omitempty" binding:"omitempty,oneof=none basic persistent" example:"basic"`
}

type UpdatePoolRequest struct {
	Name     *string `json:"name,omitempty"`
	Comments *string `json:"comments,omitempty"`

	MaxInstances     *int `json:"max_instances,omitempty"`
	InitialInstances *int `json:"initial_instances,omitempty"`
	CacheL1          *int `json:"cache_l1,omitempty"`
	CacheL2          *int `json:"cache_l2,omitempty"`

	SpawnsNew      *int8   `json:"spawns_new,omitempty"`
	Visible        *int8   `json:"visible,omitempty"`
	FallbackAccess *string `json:"fallback_access,omitempty" binding:"omitempty,oneof=allow deny"`
}

type ListPoolRequest struct {
	Page     int    `form:"page" example:"1"`
	PageSize int    `form:"page_size" binding:"omitempty,max=100" example:"10"`
	Status   string `form:"status" example:"active"`
	Visible  *int8  `form:"visible"`
}

type PoolItem struct {
	Id               int64     `json:"id"`
	Uuid             string    `json:"uuid"`
	Name             string    `json:"name"`
	Comments         string    `json:"comments"`
	ProviderUuid     string    `json:"provider_uuid"`
	ProviderName     string    `json:"provider_name"`
	TemplateID       string    `json:"template_id"`
	ActiveRevision   int       `json:"active_revision"`
	MaxInstances     int       `json:"max_instances"`
	InitialInstances int       `json:"initial_instances"`
	CacheL1          int       `json:"cache_l1"`
	CacheL2          int       `json:"cache_l2"`
	SpawnsNew        int8      `json:"spawns_new"`
	Visible          int8      `json:"visible"`
	FallbackAccess   string    `json:"fallback_access"`
	OsManagerType    string    `json:"os_manager_type"`
	Status           string    `json:"status"`
	CreateTime       time.Time `json:"create_time"`
	UpdateTime       time.Time `json:"update_time"`
}

type ListPoolResponseData struct {
	Total int64      `json:"total"`
	List  []PoolItem `json:"list"`
}

type ListPoolResponse struct {
	Response
	Data ListPoolResponseData
}

type GetPoolResponse struct {
	Response
	Data PoolItem
}

// PoolStats is the live occupancy snapshot of one pool.
type PoolStats struct {
	Uuid      string `json:"uuid"`
	Name      string `json:"name"`
	Assigned  int64  `json:"assigned"`
	InUse     int64  `json:"in_use"`
	CachedL1  int64  `json:"cached_l1"`
	CachedL2  int64  `json:"cached_l2"`
	Preparing int64  `json:"preparing"`
	Removing  int64  `json:"removing"`
	Errors    int64  `json:"errors"`
}

type GetPoolStatsResponse struct {
	Response
	Data PoolStats
}

// PublishPoolRequest cuts a new publication. With template_id set the given
// backend template is registered as-is; without it the backend builds a new
// template from the pool's base template.
type PublishPoolRequest struct {
	TemplateID string `json:"template_id,omitempty" example:"9001"`
	Comments   string `json:"comments,omitempty" example:"monthly image refresh"`
}

type PublicationItem struct {
	Id          int64     `json:"id"`
	Revision    int       `json:"revision"`
	State       string    `json:"state"`
	UniqueID    string    `json:"unique_id"`
	PublishDate time.Time `json:"publish_date"`
}

type PublishPoolResponse struct {
	Response
	Data PublicationItem
}

type ListPublicationResponseData struct {
	Total int64             `json:"total"`
	List  []PublicationItem `json:"list"`
}

type ListPublicationResponse struct {
	Response
	Data ListPublicationResponseData
}
