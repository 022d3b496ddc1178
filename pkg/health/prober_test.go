package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rolekeeper/pkg/types"
)

// endpoint splits a test server address into the slot of a worker on that
// host and the check port
func endpoint(t *testing.T, addr string) (types.SlotID, int32) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return types.SlotID{SlaveAddress: host + ":7000", ID: 1}, int32(port)
}

func TestHTTPProber(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		handler http.HandlerFunc
		timeout time.Duration
		healthy bool
	}{
		{
			name:    "ok",
			path:    "/status",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
			healthy: true,
		},
		{
			name:    "server error",
			path:    "/status",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
		},
		{
			name: "redirect is an answer",
			path: "/status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/elsewhere", http.StatusFound)
			},
			healthy: true,
		},
		{
			name: "check path",
			path: "health",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/health" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.WriteHeader(http.StatusOK)
			},
			healthy: true,
		},
		{
			name: "timeout",
			path: "/status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
				w.WriteHeader(http.StatusOK)
			},
			timeout: 50 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			slot, port := endpoint(t, server.Listener.Addr().String())
			cfg := DefaultProbeConfig()
			cfg.Type = types.HealthCheckHTTP
			cfg.Port = port
			cfg.Path = tt.path
			if tt.timeout > 0 {
				cfg.Timeout = tt.timeout
			}
			p := NewHTTPProber(cfg, slot)
			assert.Equal(t, server.URL+"/"+strings.TrimPrefix(tt.path, "/"), p.Target())

			result := p.Probe(context.Background())
			assert.Equal(t, tt.healthy, result.Healthy, result.Message)
			if !tt.healthy {
				assert.Contains(t, result.Message, slot.String())
			}
		})
	}
}

func TestHTTPProberCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	slot, port := endpoint(t, server.Listener.Addr().String())
	p := NewHTTPProber(ProbeConfig{Port: port, Path: "/", Timeout: time.Second}, slot)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, p.Probe(ctx).Healthy)
	assert.Equal(t, types.HealthCheckHTTP, p.Type())
}

func TestTCPProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	slot, port := endpoint(t, ln.Addr().String())
	p := NewTCPProber(ProbeConfig{Port: port, Timeout: time.Second}, slot)
	assert.Equal(t, ln.Addr().String(), p.Target())
	assert.True(t, p.Probe(context.Background()).Healthy)
	assert.Equal(t, types.HealthCheckTCP, p.Type())

	require.NoError(t, ln.Close())
	result := p.Probe(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, slot.String())
}

func TestNewProber(t *testing.T) {
	slot := types.SlotID{SlaveAddress: "10.0.0.1:7000", ID: 3}

	p, err := NewProber(ProbeConfig{Type: types.HealthCheckHTTP, Port: 8080, Path: "/status"}, slot)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8080/status", p.Target())

	p, err = NewProber(ProbeConfig{Type: types.HealthCheckTCP, Port: 9000}, slot)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9000", p.Target())

	_, err = NewProber(ProbeConfig{Type: types.HealthCheckDefault}, slot)
	assert.Error(t, err)

	_, err = NewProber(ProbeConfig{Type: types.HealthCheckTCP, Port: 9000}, types.SlotID{})
	assert.Error(t, err)
}

func TestProbeStatusInfo(t *testing.T) {
	ok := Result{Healthy: true}
	fail := Result{Healthy: false}

	var s probeStatus
	assert.Equal(t, types.HealthUnknown, s.info(2).HealthStatus)

	s.update(fail)
	s.update(fail)
	s.update(fail)
	assert.Equal(t, types.HealthInfo{HealthStatus: types.HealthAlive, WorkerStatus: types.WorkerNotReady}, s.info(2),
		"never passed: still starting")

	s.update(ok)
	assert.Equal(t, types.HealthInfo{HealthStatus: types.HealthAlive, WorkerStatus: types.WorkerReady}, s.info(2))

	s.update(fail)
	assert.Equal(t, types.WorkerReady, s.info(2).WorkerStatus, "below retries")
	s.update(fail)
	assert.Equal(t, types.HealthInfo{HealthStatus: types.HealthDead, WorkerStatus: types.WorkerNotReady}, s.info(2))
}

func TestResolveProbeConfig(t *testing.T) {
	def := ResolveProbeConfig(types.HealthCheckerConfig{})
	assert.Equal(t, DefaultProbeConfig(), def)

	got := ResolveProbeConfig(types.HealthCheckerConfig{
		Type:            types.HealthCheckHTTP,
		Port:            8080,
		Path:            "/status",
		IntervalSeconds: 5,
		TimeoutSeconds:  1,
		Retries:         4,
	})
	assert.Equal(t, ProbeConfig{
		Type:     types.HealthCheckHTTP,
		Port:     8080,
		Path:     "/status",
		Interval: 5 * time.Second,
		Timeout:  time.Second,
		Retries:  4,
	}, got)
}
