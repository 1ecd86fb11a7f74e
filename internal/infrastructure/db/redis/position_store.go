package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/trasealla/delivery-tracking/pkg/track"
)

// Key layout:
//
//	pos:agent:<agent_id>   hash {ts: unix millis, data: AgentPosition JSON}
//	pos:tenant:<tenant_id> set of agent IDs that have ever pinged
//
// The compare-and-set runs server-side as a Lua script so that events
// racing in from push and poll paths cannot interleave between the read
// and the write.
var applyScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'data', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[3])
return 1
`)

// PositionStore keeps the latest position per agent in Redis with
// latest-timestamp-wins semantics.
type PositionStore struct {
	client *redis.Client
}

// NewPositionStore creates a PositionStore wrapping the given client.
func NewPositionStore(client *redis.Client) *PositionStore {
	return &PositionStore{client: client}
}

// Apply stores pos unless an entry with an equal or newer timestamp is
// already present. It reports whether the write was accepted.
func (s *PositionStore) Apply(ctx context.Context, pos track.AgentPosition) (bool, error) {
	data, err := json.Marshal(pos)
	if err != nil {
		return false, fmt.Errorf("position store: marshal: %w", err)
	}

	keys := []string{agentKey(pos.AgentID), tenantKey(pos.TenantID)}
	res, err := applyScript.Run(ctx, s.client, keys,
		pos.Timestamp.UnixMilli(), data, pos.AgentID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("position store: apply: %w", err)
	}
	return res == 1, nil
}

// Current returns the latest position for an agent.
func (s *PositionStore) Current(ctx context.Context, agentID string) (*track.AgentPosition, error) {
	data, err := s.client.HGet(ctx, agentKey(agentID), "data").Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, track.ErrNotFound
		}
		return nil, fmt.Errorf("position store: current: %w", err)
	}

	var pos track.AgentPosition
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, fmt.Errorf("position store: decode: %w", err)
	}
	return &pos, nil
}

// ListByTenant returns the latest position of every agent of a tenant.
// Agents whose entry has expired or been removed are skipped.
func (s *PositionStore) ListByTenant(ctx context.Context, tenantID string) ([]track.AgentPosition, error) {
	agentIDs, err := s.client.SMembers(ctx, tenantKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("position store: members: %w", err)
	}
	if len(agentIDs) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(agentIDs))
	for i, id := range agentIDs {
		cmds[i] = pipe.HGet(ctx, agentKey(id), "data")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("position store: list: %w", err)
	}

	out := make([]track.AgentPosition, 0, len(agentIDs))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var pos track.AgentPosition
		if err := json.Unmarshal(data, &pos); err != nil {
			continue
		}
		out = append(out, pos)
	}
	return out, nil
}

func agentKey(agentID string) string   { return "pos:agent:" + agentID }
func tenantKey(tenantID string) string { return "pos:tenant:" + tenantID }
