package v1

import "time"

type ListInstanceRequest struct {
	Page     int    `form:"page" example:"1"`
	PageSize int    `form:"page_size" binding:"omitempty,max=100" example:"10"`
	PoolUuid string `form:"pool_uuid"`
	State    string `form:"state" example:"usable"`
	UserId   string `form:"user_id"`
}

type InstanceItem struct {
	Id           int64      `json:"id"`
	Uuid         string     `json:"uuid"`
	PoolUuid     string     `json:"pool_uuid"`
	PoolName     string     `json:"pool_name"`
	UserId       string     `json:"user_id,omitempty"`
	State        string     `json:"state"`
	OsState      string     `json:"os_state"`
	CacheLevel   int8       `json:"cache_level"`
	StateDate    time.Time  `json:"state_date"`
	InUse        int8       `json:"in_use"`
	InUseDate    *time.Time `json:"in_use_date,omitempty"`
	DestroyAfter int8       `json:"destroy_after"`
	UniqueID     string     `json:"unique_id"`
	FriendlyName string     `json:"friendly_name"`
	KnownIP      string     `json:"known_ip"`
	AgentVersion string     `json:"agent_version"`
	Reason       string     `json:"reason,omitempty"`
	CreateTime   time.Time  `json:"create_time"`
}

type ListInstanceResponseData struct {
	Total int64          `json:"total"`
	List  []InstanceItem `json:"list"`
}

type ListInstanceResponse struct {
	Response
	Data ListInstanceResponseData
}

type GetInstanceResponse struct {
	Response
	Data InstanceItem
}

// SendMessageRequest delivers a text notice to the instance's logged-in user
// through the guest agent.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required,max=512" example:"maintenance in 10 minutes"`
}

type ScreenshotResponseData struct {
	// Image is a base64 encoded PNG taken by the guest agent
	Image string `json:"image"`
}

type ScreenshotResponse struct {
	Response
	Data ScreenshotResponseData
}
