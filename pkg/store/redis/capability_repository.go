package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
)

const (
	printerKeyPrefix = "printer:"     // capability record per device
	printerSetKey    = "printers:all" // registered device id set
)

// CapabilityRepository stores printer capability records in Redis. Records
// are semi-static and carry no TTL; removal is explicit.
type CapabilityRepository struct {
	redis *redis.Client
}

// NewCapabilityRepository creates the capability repository.
func NewCapabilityRepository(redisClient *RedisClient) *CapabilityRepository {
	return &CapabilityRepository{
		redis: redisClient.GetClient(),
	}
}

// Save upserts a capability record.
func (r *CapabilityRepository) Save(ctx context.Context, capability *model.PrinterCapability) error {
	capability.UpdatedAt = time.Now()
	data, err := json.Marshal(capability)
	if err != nil {
		return fmt.Errorf("failed to marshal capability: %w", err)
	}

	pipe := r.redis.Pipeline()
	pipe.Set(ctx, printerKeyPrefix+capability.ID, data, 0)
	pipe.SAdd(ctx, printerSetKey, capability.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save capability: %w", err)
	}
	return nil
}

// Get retrieves one capability record.
func (r *CapabilityRepository) Get(ctx context.Context, printerID string) (*model.PrinterCapability, error) {
	data, err := r.redis.Get(ctx, printerKeyPrefix+printerID).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("printer not found: %s", printerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capability: %w", err)
	}

	var capability model.PrinterCapability
	if err := json.Unmarshal([]byte(data), &capability); err != nil {
		return nil, fmt.Errorf("failed to unmarshal capability: %w", err)
	}
	return &capability, nil
}

// GetAll retrieves every registered capability record.
func (r *CapabilityRepository) GetAll(ctx context.Context) ([]*model.PrinterCapability, error) {
	printerIDs, err := r.redis.SMembers(ctx, printerSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get printer list: %w", err)
	}
	if len(printerIDs) == 0 {
		return []*model.PrinterCapability{}, nil
	}

	// Batch fetch in one round-trip.
	pipe := r.redis.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(printerIDs))
	for _, printerID := range printerIDs {
		cmds = append(cmds, pipe.Get(ctx, printerKeyPrefix+printerID))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		// Pipeline failed, fall back to individual gets.
		capabilities := make([]*model.PrinterCapability, 0, len(printerIDs))
		for _, printerID := range printerIDs {
			capability, err := r.Get(ctx, printerID)
			if err != nil {
				continue
			}
			capabilities = append(capabilities, capability)
		}
		return capabilities, nil
	}

	capabilities := make([]*model.PrinterCapability, 0, len(printerIDs))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			// Record removed between SMembers and Get, skip
			continue
		}
		var capability model.PrinterCapability
		if err := json.Unmarshal([]byte(data), &capability); err != nil {
			continue
		}
		capabilities = append(capabilities, &capability)
	}
	return capabilities, nil
}

// Delete removes a capability record and its set membership.
func (r *CapabilityRepository) Delete(ctx context.Context, printerID string) error {
	pipe := r.redis.Pipeline()
	pipe.Del(ctx, printerKeyPrefix+printerID)
	pipe.SRem(ctx, printerSetKey, printerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete capability: %w", err)
	}
	return nil
}
