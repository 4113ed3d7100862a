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

// Package healthcheck serves liveness and readiness endpoints for the
// long-running commands.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type Status int32

const (
	StatusStarting Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Probe reports whether one dependency is ready. A nil error means ready.
type Probe func(ctx context.Context) error

type Config struct {
	Port         int           `mapstructure:"port"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

func DefaultConfig() Config {
	return Config{Port: 8090, ProbeTimeout: 2 * time.Second}
}

type Response struct {
	Healthy bool              `json:"healthy"`
	Status  string            `json:"status,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

type Server struct {
	cfg    Config
	status atomic.Int32

	mu     sync.RWMutex
	probes map[string]Probe

	server *http.Server
}

func NewServer(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	return &Server{cfg: cfg, probes: make(map[string]Probe)}
}

func (s *Server) SetStatus(status Status) {
	s.status.Store(int32(status))
	slog.Debug("Health check status updated", slog.String("status", status.String()))
}

func (s *Server) GetStatus() Status {
	return Status(s.status.Load())
}

// AddProbe registers a readiness probe under name, replacing any probe
// already registered with that name.
func (s *Server) AddProbe(name string, p Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[name] = p
}

func (s *Server) RemoveProbe(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.probes, name)
}

// Check runs every probe and returns the failures by name. The server is
// ready when it is healthy and no probe fails.
func (s *Server) Check(ctx context.Context) (bool, map[string]string) {
	s.mu.RLock()
	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	probes := make([]Probe, 0, len(names))
	slices.Sort(names)
	for _, name := range names {
		probes = append(probes, s.probes[name])
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	ready := s.GetStatus() == StatusHealthy
	checks := make(map[string]string, len(names))
	for i, p := range probes {
		if err := p(ctx); err != nil {
			ready = false
			checks[names[i]] = err.Error()
			continue
		}
		checks[names[i]] = "ok"
	}
	return ready, checks
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthzHandler)
	mux.HandleFunc("/readyz", s.readyzHandler)
	mux.HandleFunc("/livez", s.livezHandler)
	return mux
}

// Start serves until ctx is done, then shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("health check listener: %w", err)
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("Starting health check server", slog.Int("port", s.cfg.Port))
	errc := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errc:
		return err
	}
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	slog.Info("Stopping health check server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	if resp.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode health check response", slog.Any("error", err))
	}
}

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	status := s.GetStatus()
	writeResponse(w, Response{Healthy: status == StatusHealthy, Status: status.String()})
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ready, checks := s.Check(r.Context())
	writeResponse(w, Response{Healthy: ready, Status: s.GetStatus().String(), Checks: checks})
}

func (s *Server) livezHandler(w http.ResponseWriter, _ *http.Request) {
	status := s.GetStatus()
	writeResponse(w, Response{Healthy: status != StatusUnhealthy, Status: status.String()})
}
