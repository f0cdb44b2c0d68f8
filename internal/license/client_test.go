package license

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientCheckConnection(t *testing.T) {
	serverTime := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/license/status", r.URL.Path)
		json.NewEncoder(w).Encode(StatusResponse{
			ServerTime:            serverTime,
			OfflineToleranceHours: 48,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	status, err := client.CheckConnection(context.Background())
	require.NoError(t, err)
	require.Equal(t, 48, status.OfflineToleranceHours)
	require.True(t, status.ServerTime.Equal(serverTime))
}

func TestClientActivate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/license/activate", r.URL.Path)

		var req ActivateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "AAAA-BBBB-CCCC-DDDD", req.LicenseKey)
		require.Equal(t, "HW-1", req.HardwareID)
		require.Equal(t, "workstation", req.DeviceName)

		json.NewEncoder(w).Encode(ActivateResponse{
			Success: true,
			Message: "activated",
			License: &LicenseDetails{ActivationID: "act-9", ProductCode: "VC01"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	resp, err := client.Activate(context.Background(), "AAAA-BBBB-CCCC-DDDD", "HW-1", "workstation")
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "act-9", resp.License.ActivationID)
}

func TestClientValidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/license/validate/HW-1", r.URL.Path)
		json.NewEncoder(w).Encode(ValidateResponse{
			Valid:                 true,
			Activated:             true,
			OfflineToleranceHours: 24,
			ServerTime:            time.Now().UTC(),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	verdict, err := client.Validate(context.Background(), "HW-1")
	require.NoError(t, err)
	require.True(t, verdict.Valid)
	require.Equal(t, 24, verdict.OfflineToleranceHours)
}

func TestClientNon2xxWithStructuredMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "key already bound to another machine"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	_, err := client.Activate(context.Background(), "AAAA-BBBB-CCCC-DDDD", "HW-1", "")
	require.ErrorIs(t, err, ErrServerRejected)
	require.Contains(t, err.Error(), "key already bound to another machine")
	require.NotErrorIs(t, err, ErrServerOffline)
}

func TestClientNon2xxWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	_, err := client.Validate(context.Background(), "HW-1")
	require.ErrorIs(t, err, ErrServerRejected)
	require.Contains(t, err.Error(), "HTTP 500")
}

func TestClientConnectionRefusedIsOffline(t *testing.T) {
	// Grab a port that nothing listens on.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, nil)
	_, err := client.Validate(context.Background(), "HW-1")
	require.ErrorIs(t, err, ErrServerOffline)
}

func TestClientTimeoutIsOffline(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		server.Close()
	}()

	client := NewClient(server.URL, nil, WithTimeouts(time.Second, 50*time.Millisecond))
	start := time.Now()
	_, err := client.Validate(context.Background(), "HW-1")
	require.ErrorIs(t, err, ErrServerOffline)
	require.Less(t, time.Since(start), 5*time.Second, "timeout must be finite")
}

func TestClientContextCancellation(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		server.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL, nil)
	_, err := client.Validate(ctx, "HW-1")
	require.ErrorIs(t, err, ErrServerOffline)
}
