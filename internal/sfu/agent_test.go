package sfu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accord-chat/accord/internal/config"
)

type fakeMain struct {
	mu          sync.Mutex
	registers   int
	heartbeats  int
	deregisters int
	rejectNext  bool // answer the next heartbeat with 404
	lastSecret  string
	lastLoad    int
}

func (f *fakeMain) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sfu/nodes", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.registers++
		f.lastSecret = r.Header.Get(NodeSecretHeader)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/v1/sfu/nodes/{id}/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			CurrentLoad int `json:"current_load"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		reject := f.rejectNext
		f.rejectNext = false
		f.heartbeats++
		f.lastLoad = body.CurrentLoad
		f.mu.Unlock()

		if reject {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("DELETE /api/v1/sfu/nodes/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deregisters++
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (f *fakeMain) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registers, f.heartbeats, f.deregisters
}

func testAgent(mainURL string, load LoadFunc) *Agent {
	return NewAgent(config.SfuConfig{
		MainURL:           mainURL,
		NodeID:            "node-1",
		Region:            "eu-west",
		Capacity:          100,
		Endpoint:          "wss://sfu-1.example.com",
		HeartbeatInterval: 10 * time.Millisecond,
		Secret:            "fleet-secret",
	}, load)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestAgentLifecycle(t *testing.T) {
	main := &fakeMain{}
	srv := httptest.NewServer(main.handler())
	defer srv.Close()

	agent := testAgent(srv.URL, func() int { return 7 })
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	waitFor(t, func() bool {
		_, hb, _ := main.counts()
		return hb >= 3
	})

	cancel()
	require.NoError(t, <-done)

	registers, _, deregisters := main.counts()
	require.Equal(t, 1, registers)
	require.Equal(t, 1, deregisters)

	main.mu.Lock()
	defer main.mu.Unlock()
	require.Equal(t, "fleet-secret", main.lastSecret)
	require.Equal(t, 7, main.lastLoad)
}

func TestAgentReRegistersAfterReap(t *testing.T) {
	main := &fakeMain{}
	srv := httptest.NewServer(main.handler())
	defer srv.Close()

	agent := testAgent(srv.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	waitFor(t, func() bool {
		_, hb, _ := main.counts()
		return hb >= 1
	})

	main.mu.Lock()
	main.rejectNext = true
	main.mu.Unlock()

	waitFor(t, func() bool {
		reg, _, _ := main.counts()
		return reg >= 2
	})

	cancel()
	require.NoError(t, <-done)
}

func TestAgentRegisterFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	agent := testAgent(srv.URL, nil)
	err := agent.Run(context.Background())
	require.Error(t, err)
}
