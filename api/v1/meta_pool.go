package v1

import "time"

type MetaPoolMemberRequest struct {
	PoolUuid string `json:"pool_uuid" binding:"required"`
	Priority int    `json:"priority" example:"1"` // lower wins under the priority policy
	Enabled  *int8  `json:"enabled,omitempty" example:"1"`
}

type CreateMetaPoolRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=128" example:"desktops"`
	Comments string `json:"comments,omitempty"`
	// Policy picks the member pool a new allocation lands in
	Policy   string                  `json:"policy" binding:"required,oneof=priority most_free random" example:"most_free"`
	HaPolicy string                  `json:"ha_policy,omitempty" binding:"omitempty,oneof=disabled enabled" example:"enabled"`
	Visible  *int8                   `json:"visible,omitempty" example:"1"`
	Members  []MetaPoolMemberRequest `json:"members" binding:"required,min=1,dive"`
}

type UpdateMetaPoolRequest struct {
	Name     *string                 `json:"name,omitempty"`
	Comments *string                 `json:"comments,omitempty"`
	Policy   *string                 `json:"policy,omitempty" binding:"omitempty,oneof=priority most_free random"`
	HaPolicy *string                 `json:"ha_policy,omitempty" binding:"omitempty,oneof=disabled enabled"`
	Visible  *int8                   `json:"visible,omitempty"`
	Members  []MetaPoolMemberRequest `json:"members,omitempty" binding:"omitempty,dive"`
}

type ListMetaPoolRequest struct {
	Page     int `form:"page" example:"1"`
	PageSize int `form:"page_size" binding:"omitempty,max=100" example:"10"`
}

type MetaPoolMemberItem struct {
	PoolUuid string `json:"pool_uuid"`
	PoolName string `json:"pool_name"`
	Priority int    `json:"priority"`
	Enabled  int8   `json:"enabled"`
}

type MetaPoolItem struct {
	Id         int64                `json:"id"`
	Uuid       string               `json:"uuid"`
	Name       string               `json:"name"`
	Comments   string               `json:"comments"`
	Policy     string               `json:"policy"`
	HaPolicy   string               `json:"ha_policy"`
	Visible    int8                 `json:"visible"`
	Members    []MetaPoolMemberItem `json:"members"`
	CreateTime time.Time            `json:"create_time"`
	UpdateTime time.Time            `json:"update_time"`
}

type ListMetaPoolResponseData struct {
	Total int64          `json:"total"`
	List  []MetaPoolItem `json:"list"`
}

type ListMetaPoolResponse struct {
	Response
	Data ListMetaPoolResponseData
}

type GetMetaPoolResponse struct {
	Response
	Data MetaPoolItem
}
