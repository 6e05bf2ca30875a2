package v1

import "time"

type CreateProviderRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=128" example:"pve-main"`
	Type     string `json:"type" binding:"required" example:"proxmox"`
	Config   string `json:"config" binding:"required"` // backend-specific JSON document
	Comments string `json:"comments,omitempty" example:"main cluster"`

	ConcurrentCreationLimit *int  `json:"concurrent_creation_limit,omitempty" example:"10"`
	ConcurrentRemovalLimit  *int  `json:"concurrent_removal_limit,omitempty" example:"8"`
	IgnoreLimits            *int8 `json:"ignore_limits,omitempty" example:"0"`
}

type UpdateProviderRequest struct {
	Name     *string `json:"name,omitempty"`
	Config   *string `json:"config,omitempty"`
	Comments *string `json:"comments,omitempty"`

	ConcurrentCreationLimit *int  `json:"concurrent_creation_limit,omitempty"`
	ConcurrentRemovalLimit  *int  `json:"concurrent_removal_limit,omitempty"`
	IgnoreLimits            *int8 `json:"ignore_limits,omitempty"`
	Maintenance             *int8 `json:"maintenance,omitempty"`
}

type ListProviderRequest struct {
	Page     int    `form:"page" example:"1"`
	PageSize int    `form:"page_size" binding:"omitempty,max=100" example:"10"`
	Type     string `form:"type" example:"proxmox"`
}

type ProviderItem struct {
	Id                      int64     `json:"id"`
	Uuid                    string    `json:"uuid"`
	Name                    string    `json:"name"`
	Type                    string    `json:"type"`
	Comments                string    `json:"comments"`
	ConcurrentCreationLimit int       `json:"concurrent_creation_limit"`
	ConcurrentRemovalLimit  int       `json:"concurrent_removal_limit"`
	IgnoreLimits            int8      `json:"ignore_limits"`
	Maintenance             int8      `json:"maintenance"`
	CreateTime              time.Time `json:"create_time"`
	UpdateTime              time.Time `json:"update_time"`
}

type ListProviderResponseData struct {
	Total int64          `json:"total"`
	List  []ProviderItem `json:"list"`
}

type ListProviderResponse struct {
	Response
	Data ListProviderResponseData
}

type GetProviderResponse struct {
	Response
	Data ProviderItem
}
