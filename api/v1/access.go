package v1

// ConnectRequest asks for a desktop from a pool or a meta pool. Os and the
// caller's address select the compatible transports.
type ConnectRequest struct {
	PoolUuid string `json:"pool_uuid" binding:"required"`
	Os       string `json:"os,omitempty" example:"windows"` // client OS hint
}

type TransportOffer struct {
	Uuid     string `json:"uuid"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Priority int    `json:"priority"`
}

type ConnectResponseData struct {
	InstanceUuid string `json:"instance_uuid"`
	State        string `json:"state"`
	OsState      string `json:"os_state"`
	// Ready means the desktop can be connected to right now; otherwise the
	// client polls while the instance finishes preparing
	Ready      bool             `json:"ready"`
	Ip         string           `json:"ip,omitempty"`
	Transports []TransportOffer `json:"transports"`
}

type ConnectResponse struct {
	Response
	Data ConnectResponseData
}
