package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/config"
)

func newTestRepository(t *testing.T) (*CapabilityRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()

	client, err := NewRedisClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return NewCapabilityRepository(client), mr
}

func TestCapabilitySaveAndGet(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	capability := &model.PrinterCapability{
		ID:            "printer-1",
		Type:          "FDM",
		MaxHotendTemp: 260,
		MaxBedTemp:    100,
	}
	require.NoError(t, repo.Save(ctx, capability))
	assert.False(t, capability.UpdatedAt.IsZero())

	got, err := repo.Get(ctx, "printer-1")
	require.NoError(t, err)
	assert.Equal(t, "printer-1", got.ID)
	assert.Equal(t, "FDM", got.Type)
	assert.Equal(t, 260.0, got.MaxHotendTemp)
}

func TestCapabilityGetMissing(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "printer not found")
}

func TestCapabilitySaveOverwrites(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &model.PrinterCapability{ID: "printer-1", MaxHotendTemp: 220}))
	require.NoError(t, repo.Save(ctx, &model.PrinterCapability{ID: "printer-1", MaxHotendTemp: 300}))

	got, err := repo.Get(ctx, "printer-1")
	require.NoError(t, err)
	assert.Equal(t, 300.0, got.MaxHotendTemp)

	// The membership set holds a single entry, not two.
	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCapabilityGetAll(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &model.PrinterCapability{ID: "printer-1", Type: "FDM"}))
	require.NoError(t, repo.Save(ctx, &model.PrinterCapability{ID: "printer-2", Type: "SLA"}))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	ids := map[string]string{}
	for _, c := range all {
		ids[c.ID] = c.Type
	}
	assert.Equal(t, map[string]string{"printer-1": "FDM", "printer-2": "SLA"}, ids)
}

func TestCapabilityGetAllEmpty(t *testing.T) {
	repo, _ := newTestRepository(t)

	all, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCapabilityGetAllSkipsDanglingMembers(t *testing.T) {
	repo, mr := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &model.PrinterCapability{ID: "printer-1"}))
	require.NoError(t, repo.Save(ctx, &model.PrinterCapability{ID: "printer-2"}))

	// Simulate a record removed between SMembers and the batched Get.
	mr.Del(printerKeyPrefix + "printer-2")

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "printer-1", all[0].ID)
}

func TestCapabilityDelete(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &model.PrinterCapability{ID: "printer-1"}))
	require.NoError(t, repo.Delete(ctx, "printer-1"))

	_, err := repo.Get(ctx, "printer-1")
	assert.Error(t, err)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
