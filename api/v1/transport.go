package v1

import "time"

type CreateTransportRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=128" example:"rdp-lan"`
	Comments string `json:"comments,omitempty"`
	Protocol string `json:"protocol" binding:"required" example:"rdp"`
	Priority int    `json:"priority" example:"1"` // lower is offered first

	// AllowedOses is a comma separated list; empty allows every OS
	AllowedOses string `json:"allowed_oses,omitempty" example:"windows,linux"`
	// NetFilter is a comma separated list of CIDRs evaluated under NetFilterMode
	NetFilter     string `json:"net_filter,omitempty" example:"10.0.0.0/8,192.168.0.0/16"`
	NetFilterMode string `json:"net_filter_mode,omitempty" binding:"omitempty,oneof=allow deny" example:"allow"`
}

type UpdateTransportRequest struct {
	Name          *string `json:"name,omitempty"`
	Comments      *string `json:"comments,omitempty"`
	Protocol      *string `json:"protocol,omitempty"`
	Priority      *int    `json:"priority,omitempty"`
	AllowedOses   *string `json:"allowed_oses,omitempty"`
	NetFilter     *string `json:"net_filter,omitempty"`
	NetFilterMode *string `json:"net_filter_mode,omitempty" binding:"omitempty,oneof=allow deny"`
}

type ListTransportRequest struct {
	Page     int    `form:"page" example:"1"`
	PageSize int    `form:"page_size" binding:"omitempty,max=100" example:"10"`
	Protocol string `form:"protocol" example:"rdp"`
}

type TransportItem struct {
	Id            int64     `json:"id"`
	Uuid          string    `json:"uuid"`
	Name          string    `json:"name"`
	Comments      string    `json:"comments"`
	Protocol      string    `json:"protocol"`
	Priority      int       `json:"priority"`
	AllowedOses   string    `json:"allowed_oses"`
	NetFilter     string    `json:"net_filter"`
	NetFilterMode string    `json:"net_filter_mode"`
	CreateTime    time.Time `json:"create_time"`
	UpdateTime    time.Time `json:"update_time"`
}

type ListTransportResponseData struct {
	Total int64           `json:"total"`
	List  []TransportItem `json:"list"`
}

type ListTransportResponse struct {
	Response
	Data ListTransportResponseData
}

type GetTransportResponse struct {
	Response
	Data TransportItem
}
