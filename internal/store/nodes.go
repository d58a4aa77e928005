package store

import (
	"context"

	"github.com/accord-chat/accord/internal/domain"
)

// UpsertSfuNode persists the directory's view of one node.
func (s *Store) UpsertSfuNode(ctx context.Context, node *domain.SfuNode) error {
	query := `
		INSERT INTO sfu_nodes (id, endpoint, region, capacity, current_load, status, last_heartbeat, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			endpoint = EXCLUDED.endpoint,
			region = EXCLUDED.region,
			capacity = EXCLUDED.capacity,
			current_load = EXCLUDED.current_load,
			status = EXCLUDED.status,
			last_heartbeat = EXCLUDED.last_heartbeat`

	_, err := s.conn(ctx).Exec(ctx, query,
		node.ID, node.Endpoint, node.Region, node.Capacity,
		node.CurrentLoad, node.Status, node.LastHeartbeat, node.CreatedAt)
	return translateError("upsert sfu node", err)
}

func (s *Store) SfuNodes(ctx context.Context) ([]domain.SfuNode, error) {
	query := `
		SELECT id, endpoint, region, capacity, current_load, status, last_heartbeat, created_at
		FROM sfu_nodes
		ORDER BY id`

	rows, err := s.conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, translateError("list sfu nodes", err)
	}
	defer rows.Close()

	var nodes []domain.SfuNode
	for rows.Next() {
		var node domain.SfuNode
		if err := rows.Scan(
			&node.ID, &node.Endpoint, &node.Region, &node.Capacity,
			&node.CurrentLoad, &node.Status, &node.LastHeartbeat, &node.CreatedAt); err != nil {
			return nil, translateError("scan sfu node", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}
