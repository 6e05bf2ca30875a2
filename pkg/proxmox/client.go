package proxmox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a thin Proxmox VE API client covering the virtual machine
// operations the instance backend drives. Authentication uses an API token
// (Authorization: PVEAPIToken=<id>=<secret>).
type Client struct {
	baseUrl    *url.URL
	httpClient *http.Client
	token      string
}

func NewClient(apiURL, tokenID, tokenSecret string) (*Client, error) {
	baseUrl, err := url.Parse(apiURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseUrl: baseUrl,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				// PVE clusters commonly run self-signed certificates
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		token: fmt.Sprintf("PVEAPIToken=%s=%s", tokenID, tokenSecret),
	}, nil
}

// Request sends req with token auth and decodes the {data: ...} envelope
// every PVE endpoint wraps its payload in.
func (c *Client) Request(ctx context.Context, req *http.Request, result interface{}) error {
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Errors map[string]interface{} `json:"errors,omitempty"`
		}
		if json.Unmarshal(body, &errResp) == nil && len(errResp.Errors) > 0 {
			return fmt.Errorf("proxmox API error (status %d): %v", resp.StatusCode, errResp.Errors)
		}
		return fmt.Errorf("proxmox API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if result != nil {
		var apiResp struct {
			Data interface{} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return err
		}
		if apiResp.Data != nil {
			data, _ := json.Marshal(apiResp.Data)
			return json.Unmarshal(data, result)
		}
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	endpoint := c.baseUrl.JoinPath("/api2/json", path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.Request(ctx, req, result)
}

// PostQuery sends a POST with parameters in the query string. Several PVE
// endpoints (clone, stop, delete) take their arguments this way rather than
// in a body.
func (c *Client) PostQuery(ctx context.Context, path string, params url.Values, result interface{}) error {
	endpoint := c.baseUrl.JoinPath("/api2/json", path).String()
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	return c.Request(ctx, req, result)
}

// PostForm sends an application/x-www-form-urlencoded POST. An empty form is
// valid; some endpoints accept no parameters at all.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, result interface{}) error {
	endpoint := c.baseUrl.JoinPath("/api2/json", path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Request(ctx, req, result)
}

func (c *Client) Delete(ctx context.Context, path string, params url.Values, result interface{}) error {
	endpoint := c.baseUrl.JoinPath("/api2/json", path).String()
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	return c.Request(ctx, req, result)
}

// GetVersion verifies connectivity and credentials.
// GET /api2/json/version
func (c *Client) GetVersion(ctx context.Context) (map[string]interface{}, error) {
	var version map[string]interface{}
	if err := c.Get(ctx, "/version", &version); err != nil {
		return nil, err
	}
	return version, nil
}

// GetNextFreeVMID returns the next unused VMID in the cluster.
// GET /api2/json/cluster/nextid
// The API reports the id as a JSON string on some versions and a number on
// others.
func (c *Client) GetNextFreeVMID(ctx context.Context) (uint32, error) {
	var result interface{}
	if err := c.Get(ctx, "/cluster/nextid", &result); err != nil {
		return 0, fmt.Errorf("failed to get next free vmid: %w", err)
	}
	switch v := result.(type) {
	case float64:
		return uint32(v), nil
	case string:
		vmid, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("failed to parse vmid %q: %w", v, err)
		}
		return uint32(vmid), nil
	default:
		return 0, fmt.Errorf("unexpected vmid type %T", result)
	}
}

// CloneVMRequest carries the clone parameters. Zero values are omitted.
type CloneVMRequest struct {
	NewID   uint32 // VMID of the clone
	Name    string
	Target  string // target node, empty clones on the source node
	Full    bool   // full clone instead of linked clone
	Storage string
	Pool    string // PVE resource pool
}

// CloneVM clones sourceVMID into a new VM and returns the task UPID. The
// clone endpoint takes its parameters in the query string, not a JSON body.
// POST /api2/json/nodes/{node}/qemu/{vmid}/clone
func (c *Client) CloneVM(ctx context.Context, node string, sourceVMID uint32, req *CloneVMRequest) (string, error) {
	path := fmt.Sprintf("/nodes/%s/qemu/%d/clone", node, sourceVMID)

	params := url.Values{}
	params.Set("newid", strconv.FormatUint(uint64(req.NewID), 10))
	if req.Full {
		params.Set("full", "1")
	} else {
		params.Set("full", "0")
	}
	if req.Name != "" {
		params.Set("name", req.Name)
	}
	if req.Target != "" {
		params.Set("target", req.Target)
	}
	if req.Storage != "" {
		params.Set("storage", req.Storage)
	}
	if req.Pool != "" {
		params.Set("pool", req.Pool)
	}

	var upid string
	if err := c.PostQuery(ctx, path, params, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// StartVM returns the start task UPID.
// POST /api2/json/nodes/{node}/qemu/{vmid}/status/start
func (c *Client) StartVM(ctx context.Context, node string, vmID uint32) (string, error) {
	path := fmt.Sprintf("/nodes/%s/qemu/%d/status/start", node, vmID)
	var upid string
	if err := c.PostQuery(ctx, path, nil, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// StopVM hard-stops the VM, waiting up to 30 seconds, and returns the task
// UPID.
// POST /api2/json/nodes/{node}/qemu/{vmid}/status/stop
func (c *Client) StopVM(ctx context.Context, node string, vmID uint32) (string, error) {
	path := fmt.Sprintf("/nodes/%s/qemu/%d/status/stop", node, vmID)
	params := url.Values{}
	params.Set("timeout", "30")

	var upid string
	if err := c.PostQuery(ctx, path, params, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// ShutdownVM asks the guest OS to power off and returns the task UPID.
// Callers that need certainty follow up with StopVM.
// POST /api2/json/nodes/{node}/qemu/{vmid}/status/shutdown
func (c *Client) ShutdownVM(ctx context.Context, node string, vmID uint32) (string, error) {
	path := fmt.Sprintf("/nodes/%s/qemu/%d/status/shutdown", node, vmID)
	params := url.Values{}
	params.Set("timeout", "30")

	var upid string
	if err := c.PostQuery(ctx, path, params, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// ResetVM hard-resets a running VM and returns the task UPID.
// POST /api2/json/nodes/{node}/qemu/{vmid}/status/reset
func (c *Client) ResetVM(ctx context.Context, node string, vmID uint32) (string, error) {
	path := fmt.Sprintf("/nodes/%s/qemu/%d/status/reset", node, vmID)
	var upid string
	if err := c.PostQuery(ctx, path, nil, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// DeleteVM removes the VM and purges it from job configurations, returning
// the task UPID. The VM must be stopped first.
// DELETE /api2/json/nodes/{node}/qemu/{vmid}
func (c *Client) DeleteVM(ctx context.Context, node string, vmID uint32) (string, error) {
	path := fmt.Sprintf("/nodes/%s/qemu/%d", node, vmID)
	params := url.Values{}
	params.Set("purge", "1")

	var upid string
	if err := c.Delete(ctx, path, params, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// ConvertToTemplate turns a stopped VM into a template.
// POST /api2/json/nodes/{node}/qemu/{vmid}/template
func (c *Client) ConvertToTemplate(ctx context.Context, node string, vmID uint32) error {
	path := fmt.Sprintf("/nodes/%s/qemu/%d/template", node, vmID)
	if err := c.PostForm(ctx, path, url.Values{}, nil); err != nil {
		return fmt.Errorf("failed to convert VM %d to template: %w", vmID, err)
	}
	return nil
}

// VMStatus is the subset of /status/current the backend inspects.
type VMStatus struct {
	Status    string `json:"status"` // running, stopped
	QmpStatus string `json:"qmpstatus,omitempty"`
	Name      string `json:"name,omitempty"`
}

// GET /api2/json/nodes/{node}/qemu/{vmid}/status/current
func (c *Client) GetVMStatus(ctx context.Context, node string, vmID uint32) (*VMStatus, error) {
	path := fmt.Sprintf("/nodes/%s/qemu/%d/status/current", node, vmID)
	var status VMStatus
	if err := c.Get(ctx, path, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TaskStatus reports the state of an asynchronous PVE task.
type TaskStatus struct {
	Status     string `json:"status"` // running, stopped
	ExitStatus string `json:"exitstatus,omitempty"`
	Type       string `json:"type,omitempty"`
	ID         string `json:"id,omitempty"`
	Node       string `json:"node,omitempty"`
}

func (t *TaskStatus) IsRunning() bool {
	return t.Status == "running"
}

// IsSuccessful reports whether a finished task exited cleanly. Warnings
// still count as success.
func (t *TaskStatus) IsSuccessful() bool {
	return t.Status == "stopped" &&
		(t.ExitStatus == "OK" || strings.HasPrefix(t.ExitStatus, "WARNINGS"))
}

// GetTaskStatus fetches the status of a task by UPID. The owning node is
// embedded in the UPID itself (UPID:<node>:...).
// GET /api2/json/nodes/{node}/tasks/{upid}/status
func (c *Client) GetTaskStatus(ctx context.Context, upid string) (*TaskStatus, error) {
	node, err := nodeFromUPID(upid)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/nodes/%s/tasks/%s/status", node, upid)
	var status TaskStatus
	if err := c.Get(ctx, path, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func nodeFromUPID(upid string) (string, error) {
	parts := strings.Split(upid, ":")
	if len(parts) < 2 || parts[0] != "UPID" || parts[1] == "" {
		return "", fmt.Errorf("malformed UPID: %s", upid)
	}
	return parts[1], nil
}

// VNCProxy is the ticket issued by the vncproxy endpoint. Port arrives as a
// JSON string.
type VNCProxy struct {
	Port     string `json:"port"`
	Ticket   string `json:"ticket"`
	Password string `json:"password,omitempty"`
	Cert     string `json:"cert,omitempty"`
	User     string `json:"user,omitempty"`
}

// QemuVNCProxy creates a websocket-capable VNC proxy ticket for the VM. The
// ticket expires quickly, so callers dial the websocket right away.
// POST /api2/json/nodes/{node}/qemu/{vmid}/vncproxy
func (c *Client) QemuVNCProxy(ctx context.Context, node string, vmID uint32, generatePassword bool) (*VNCProxy, error) {
	path := fmt.Sprintf("/nodes/%s/qemu/%d/vncproxy", node, vmID)

	params := url.Values{}
	params.Set("websocket", "1")
	if generatePassword {
		params.Set("generate-password", "1")
	}

	var proxy VNCProxy
	if err := c.PostForm(ctx, path, params, &proxy); err != nil {
		return nil, err
	}
	return &proxy, nil
}

// WebSocket dials a PVE websocket endpoint with the client's credentials.
// path is the API path below /api2/json and params the encoded query string.
func (c *Client) WebSocket(path, params string) (*websocket.Conn, *http.Response, error) {
	endpoint := fmt.Sprintf("wss://%s/api2/json%s?%s", c.baseUrl.Host, path, params)

	dialer := &websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: true},
		ReadBufferSize:   8192,
		WriteBufferSize:  8192,
	}

	requestHeader := http.Header{}
	requestHeader.Add("Authorization", c.token)

	return dialer.Dial(endpoint, requestHeader)
}

// QemuVNCWebSocket dials the VNC websocket for a previously issued proxy
// ticket.
// GET /api2/json/nodes/{node}/qemu/{vmid}/vncwebsocket
func (c *Client) QemuVNCWebSocket(node string, vmID uint32, proxy *VNCProxy) (*websocket.Conn, *http.Response, error) {
	path := fmt.Sprintf("/nodes/%s/qemu/%d/vncwebsocket", node, vmID)
	params := url.Values{}
	params.Set("port", proxy.Port)
	params.Set("vncticket", proxy.Ticket)
	return c.WebSocket(path, params.Encode())
}
