// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusStarting, "starting"},
		{StatusHealthy, "healthy"},
		{StatusUnhealthy, "unhealthy"},
		{Status(999), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestNewServer_Defaults(t *testing.T) {
	s := NewServer(Config{})
	assert.Equal(t, 8090, s.cfg.Port)
	assert.Equal(t, 2*time.Second, s.cfg.ProbeTimeout)
	assert.Equal(t, StatusStarting, s.GetStatus())
}

func get(t *testing.T, s *Server, path string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, resp
}

func TestHandlers(t *testing.T) {
	s := NewServer(Config{})

	code, resp := get(t, s, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Healthy)

	code, _ = get(t, s, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = get(t, s, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code, "starting is not ready")

	s.SetStatus(StatusHealthy)
	code, _ = get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	code, resp = get(t, s, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Healthy)

	s.SetStatus(StatusUnhealthy)
	code, resp = get(t, s, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)
}

func TestProbes(t *testing.T) {
	s := NewServer(Config{ProbeTimeout: time.Second})
	s.SetStatus(StatusHealthy)

	var dbErr error
	s.AddProbe("settings", func(context.Context) error { return nil })
	s.AddProbe("database", func(context.Context) error { return dbErr })

	ready, checks := s.Check(context.Background())
	assert.True(t, ready)
	assert.Equal(t, map[string]string{"settings": "ok", "database": "ok"}, checks)

	dbErr = errors.New("connection refused")
	code, resp := get(t, s, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, resp.Healthy)
	assert.Equal(t, "connection refused", resp.Checks["database"])
	assert.Equal(t, "ok", resp.Checks["settings"])

	s.RemoveProbe("database")
	ready, _ = s.Check(context.Background())
	assert.True(t, ready)
}

func TestProbeTimeout(t *testing.T) {
	s := NewServer(Config{ProbeTimeout: 10 * time.Millisecond})
	s.SetStatus(StatusHealthy)
	s.AddProbe("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ready, checks := s.Check(context.Background())
	assert.False(t, ready)
	assert.Contains(t, checks["slow"], "deadline")
}

func TestStartStop(t *testing.T) {
	s := NewServer(Config{Port: 18090})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:18090/livez")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
