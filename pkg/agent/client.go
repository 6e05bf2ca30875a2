package agent

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client drives one instance's guest agent over its announced endpoint.
// Calls are short and synchronous; the agent is on the same network segment
// and anything slower than the timeout is treated as unreachable.

var (
	// ErrNoComms means the instance never announced an endpoint (agent not
	// installed, or the guest has not booted far enough).
	ErrNoComms = errors.New("agent: no communication endpoint")
	// ErrOldVersion means the announced agent predates the command API.
	ErrOldVersion = errors.New("agent: agent version too old")
)

const (
	// MinVersion is the oldest agent the command API works against.
	MinVersion = "3.5.0"

	requestTimeout = 2 * time.Second
	secretHeader   = "X-Vdi-Secret"
)

type Client struct {
	httpClient *http.Client
	endpoint   string
	secret     string
}

// New builds a client for an announced agent. Endpoint and version come from
// the instance row as filled in by the ready callback.
func New(endpoint, secret, version string) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, ErrNoComms
	}
	if !versionAtLeast(version, MinVersion) {
		return nil, ErrOldVersion
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				// agents run with self-issued certificates inside the guest
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		endpoint: strings.TrimRight(endpoint, "/"),
		secret:   secret,
	}, nil
}

// Information is what the agent reports about the guest session.
type Information struct {
	Hostname   string `json:"hostname"`
	Os         string `json:"os"`
	LoggedUser string `json:"logged_user"`
	IdleTime   int64  `json:"idle_time"`
}

func (c *Client) Login(ctx context.Context, username string) error {
	return c.post(ctx, "/login", map[string]string{"username": username}, nil)
}

func (c *Client) Logout(ctx context.Context, username string) error {
	return c.post(ctx, "/logout", map[string]string{"username": username}, nil)
}

func (c *Client) Information(ctx context.Context) (*Information, error) {
	var info Information
	if err := c.post(ctx, "/information", map[string]string{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Screenshot returns a base64 encoded PNG of the current guest session.
func (c *Client) Screenshot(ctx context.Context) (string, error) {
	var result struct {
		Image string `json:"image"`
	}
	if err := c.post(ctx, "/screenshot", map[string]string{}, &result); err != nil {
		return "", err
	}
	return result.Image, nil
}

func (c *Client) Script(ctx context.Context, body string, runAsUser bool) error {
	return c.post(ctx, "/script", map[string]interface{}{
		"script":      body,
		"run_as_user": runAsUser,
	}, nil)
}

func (c *Client) Message(ctx context.Context, text string) error {
	return c.post(ctx, "/message", map[string]string{"text": text}, nil)
}

// PreConnect warns the agent a session is about to attach so it can prepare
// the protocol-specific pieces (credentials, listeners).
func (c *Client) PreConnect(ctx context.Context, username, protocol string) error {
	return c.post(ctx, "/preconnect", map[string]string{
		"username": username,
		"protocol": protocol,
	}, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(secretHeader, c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return fmt.Errorf("agent returned %d: %s", resp.StatusCode, msg)
	}
	if result == nil {
		return nil
	}
	var envelope struct {
		Error string          `json:"error"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("agent response malformed: %w", err)
	}
	if envelope.Error != "" {
		return fmt.Errorf("agent error: %s", envelope.Error)
	}
	return json.Unmarshal(envelope.Data, result)
}

// versionAtLeast compares dotted numeric versions. Unparseable segments
// compare as zero, so a garbage version never passes the gate.
func versionAtLeast(version, minimum string) bool {
	vp := versionParts(version)
	mp := versionParts(minimum)
	for i := 0; i < 3; i++ {
		if vp[i] != mp[i] {
			return vp[i] > mp[i]
		}
	}
	return true
}

func versionParts(v string) [3]int {
	var parts [3]int
	for i, seg := range strings.SplitN(strings.TrimSpace(v), ".", 3) {
		if i >= 3 {
			break
		}
		n, err := strconv.Atoi(strings.TrimSpace(seg))
		if err != nil {
			break
		}
		parts[i] = n
	}
	return parts
}
