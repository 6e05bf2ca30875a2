package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsMissingEndpoint(t *testing.T) {
	_, err := New("", "secret", "4.0.0")
	assert.ErrorIs(t, err, ErrNoComms)

	_, err = New("   ", "secret", "4.0.0")
	assert.ErrorIs(t, err, ErrNoComms)
}

func TestNewRejectsOldAgent(t *testing.T) {
	_, err := New("https://10.0.0.5:43910", "secret", "3.4.9")
	assert.ErrorIs(t, err, ErrOldVersion)

	// a garbage version never passes the gate
	_, err = New("https://10.0.0.5:43910", "secret", "not-a-version")
	assert.ErrorIs(t, err, ErrOldVersion)

	_, err = New("https://10.0.0.5:43910", "secret", "3.5.0")
	assert.NoError(t, err)
}

func TestVersionAtLeast(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"3.5.0", true},
		{"3.5.1", true},
		{"3.6", true},
		{"4.0.0", true},
		{"10.0.0", true},
		{"3.4.99", false},
		{"2.9.9", false},
		{"", false},
		{"3", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, versionAtLeast(tt.version, MinVersion), tt.version)
	}
}

func TestLoginSendsSecret(t *testing.T) {
	var gotSecret, gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Vdi-Secret")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "s3cret", "4.0.0")
	require.NoError(t, err)
	require.NoError(t, c.Login(context.Background(), "alice"))

	assert.Equal(t, "s3cret", gotSecret)
	assert.Equal(t, "/login", gotPath)
	assert.Equal(t, "alice", gotBody["username"])
}

func TestInformationParsesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"hostname":"desk-01","os":"windows","logged_user":"alice","idle_time":120}}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "s", "4.0.0")
	require.NoError(t, err)
	info, err := c.Information(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "desk-01", info.Hostname)
	assert.Equal(t, "alice", info.LoggedUser)
	assert.EqualValues(t, 120, info.IdleTime)
}

func TestAgentErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"no session"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "s", "4.0.0")
	require.NoError(t, err)
	_, err = c.Screenshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session")
}

func TestHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "wrong", "4.0.0")
	require.NoError(t, err)
	err = c.Message(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
