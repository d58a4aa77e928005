// Package sfu runs the edge-node agent: it keeps one media node registered
// with the main server's fleet directory.
package sfu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/accord-chat/accord/internal/config"
)

// NodeSecretHeader matches the header the main server checks on fleet calls.
const NodeSecretHeader = "X-Accord-Node-Secret"

// LoadFunc reports the node's current participant count.
type LoadFunc func() int

// Agent registers the node at startup, heartbeats on an interval, re-registers
// when the main server has reaped it, and deregisters on shutdown.
type Agent struct {
	cfg    config.SfuConfig
	client *http.Client
	load   LoadFunc
}

func NewAgent(cfg config.SfuConfig, load LoadFunc) *Agent {
	if load == nil {
		load = func() int { return 0 }
	}
	return &Agent{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		load:   load,
	}
}

// Run blocks until ctx is cancelled, then deregisters best-effort.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.register(ctx); err != nil {
		return err
	}
	slog.Info("sfu: registered", "node_id", a.cfg.NodeID, "region", a.cfg.Region, "main_url", a.cfg.MainURL)

	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.deregister(shutdownCtx); err != nil {
				slog.Warn("sfu: deregister failed", "error", err)
			}
			return nil
		case <-ticker.C:
			err := a.heartbeat(ctx)
			if errors.Is(err, errUnknownNode) {
				// Reaped while we were unreachable; join the fleet again.
				slog.Warn("sfu: reaped by main server, re-registering", "node_id", a.cfg.NodeID)
				err = a.register(ctx)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("sfu: heartbeat failed", "error", err)
			}
		}
	}
}

var errUnknownNode = errors.New("node unknown to main server")

func (a *Agent) register(ctx context.Context) error {
	body := map[string]any{
		"id":       a.cfg.NodeID,
		"endpoint": a.cfg.Endpoint,
		"region":   a.cfg.Region,
		"capacity": a.cfg.Capacity,
	}
	return a.call(ctx, http.MethodPost, "/api/v1/sfu/nodes", body)
}

func (a *Agent) heartbeat(ctx context.Context) error {
	body := map[string]any{"current_load": a.load()}
	path := fmt.Sprintf("/api/v1/sfu/nodes/%s/heartbeat", a.cfg.NodeID)
	return a.call(ctx, http.MethodPost, path, body)
}

func (a *Agent) deregister(ctx context.Context) error {
	path := fmt.Sprintf("/api/v1/sfu/nodes/%s", a.cfg.NodeID)
	return a.call(ctx, http.MethodDelete, path, nil)
}

func (a *Agent) call(ctx context.Context, method, path string, body any) error {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	url := strings.TrimSuffix(a.cfg.MainURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, &payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.Secret != "" {
		req.Header.Set(NodeSecretHeader, a.cfg.Secret)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errUnknownNode
	case resp.StatusCode >= 300:
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return nil
}
