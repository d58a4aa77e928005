package voice

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/metrics"
)

// NodeStore is the persistent copy of the directory; the in-memory map is
// authoritative while the process lives, the store lets a restart recover.
type NodeStore interface {
	UpsertSfuNode(ctx context.Context, node *domain.SfuNode) error
	SfuNodes(ctx context.Context) ([]domain.SfuNode, error)
}

// Directory tracks the SFU fleet for the custom voice backend.
type Directory struct {
	mu    sync.RWMutex
	nodes map[string]*domain.SfuNode
	store NodeStore // nil in tests
}

func NewDirectory(store NodeStore) *Directory {
	return &Directory{
		nodes: make(map[string]*domain.SfuNode),
		store: store,
	}
}

// Restore loads the persisted directory. Nodes come back with their stored
// status; stale online ones will be caught by the first reap.
func (d *Directory) Restore(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	nodes, err := d.store.SfuNodes(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range nodes {
		node := nodes[i]
		d.nodes[node.ID] = &node
	}
	d.updateGaugeLocked()
	return nil
}

// Register upserts a node, marking it online. A re-register keeps the
// last reported load; a first insert starts at zero.
func (d *Directory) Register(ctx context.Context, id, endpoint, region string, capacity int) (*domain.SfuNode, error) {
	d.mu.Lock()
	node, ok := d.nodes[id]
	if !ok {
		node = &domain.SfuNode{
			ID:        id,
			CreatedAt: time.Now(),
		}
		d.nodes[id] = node
	}
	node.Endpoint = endpoint
	node.Region = region
	node.Capacity = capacity
	node.Status = domain.NodeStatusOnline
	node.LastHeartbeat = time.Now()
	out := *node
	d.updateGaugeLocked()
	d.mu.Unlock()

	if err := d.persist(ctx, &out); err != nil {
		return nil, err
	}
	slog.Info("voice: sfu node registered", "node_id", id, "region", region, "endpoint", endpoint)
	return &out, nil
}

// Heartbeat refreshes a node's liveness and load. Unknown or offline nodes
// get NotFound so the edge agent knows to re-register.
func (d *Directory) Heartbeat(ctx context.Context, id string, currentLoad int) (*domain.SfuNode, error) {
	d.mu.Lock()
	node, ok := d.nodes[id]
	if !ok || node.Status != domain.NodeStatusOnline {
		d.mu.Unlock()
		return nil, domain.NotFound("node is not registered")
	}
	node.CurrentLoad = currentLoad
	node.LastHeartbeat = time.Now()
	out := *node
	d.mu.Unlock()

	if err := d.persist(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Deregister marks a node offline.
func (d *Directory) Deregister(ctx context.Context, id string) error {
	d.mu.Lock()
	node, ok := d.nodes[id]
	if !ok {
		d.mu.Unlock()
		return domain.NotFound("node is not registered")
	}
	node.Status = domain.NodeStatusOffline
	out := *node
	d.updateGaugeLocked()
	d.mu.Unlock()

	if err := d.persist(ctx, &out); err != nil {
		return err
	}
	slog.Info("voice: sfu node deregistered", "node_id", id)
	return nil
}

// Select picks the best online node: matching region with the lowest load,
// falling back to the globally least-loaded node. Nil when the fleet is
// empty.
func (d *Directory) Select(preferredRegion string) *domain.SfuNode {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var regional, global *domain.SfuNode
	for _, node := range d.nodes {
		if node.Status != domain.NodeStatusOnline {
			continue
		}
		if global == nil || node.CurrentLoad < global.CurrentLoad {
			global = node
		}
		if preferredRegion != "" && node.Region == preferredRegion {
			if regional == nil || node.CurrentLoad < regional.CurrentLoad {
				regional = node
			}
		}
	}
	pick := regional
	if pick == nil {
		pick = global
	}
	if pick == nil {
		return nil
	}
	out := *pick
	return &out
}

// Reap transitions online nodes with stale heartbeats to offline, returning
// the ids it flipped.
func (d *Directory) Reap(ctx context.Context, threshold time.Duration) []string {
	cutoff := time.Now().Add(-threshold)

	d.mu.Lock()
	var reaped []*domain.SfuNode
	for _, node := range d.nodes {
		if node.Status == domain.NodeStatusOnline && node.LastHeartbeat.Before(cutoff) {
			node.Status = domain.NodeStatusOffline
			out := *node
			reaped = append(reaped, &out)
		}
	}
	d.updateGaugeLocked()
	d.mu.Unlock()

	ids := make([]string, 0, len(reaped))
	for _, node := range reaped {
		ids = append(ids, node.ID)
		if err := d.persist(ctx, node); err != nil {
			slog.Warn("voice: persisting reaped node failed", "node_id", node.ID, "error", err)
		}
		slog.Info("voice: reaped stale sfu node", "node_id", node.ID, "last_heartbeat", node.LastHeartbeat)
	}
	return ids
}

// Online lists online nodes sorted by id.
func (d *Directory) Online() []domain.SfuNode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.SfuNode, 0, len(d.nodes))
	for _, node := range d.nodes {
		if node.Status == domain.NodeStatusOnline {
			out = append(out, *node)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of one node regardless of status.
func (d *Directory) Get(id string) *domain.SfuNode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	node, ok := d.nodes[id]
	if !ok {
		return nil
	}
	out := *node
	return &out
}

// RunReaper blocks until ctx is done, reaping at every tick.
func (d *Directory) RunReaper(ctx context.Context, tick, threshold time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Reap(ctx, threshold)
		}
	}
}

func (d *Directory) persist(ctx context.Context, node *domain.SfuNode) error {
	if d.store == nil {
		return nil
	}
	return d.store.UpsertSfuNode(ctx, node)
}

func (d *Directory) updateGaugeLocked() {
	online := 0
	for _, node := range d.nodes {
		if node.Status == domain.NodeStatusOnline {
			online++
		}
	}
	metrics.SfuNodesOnline.Set(float64(online))
}
