package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/gamestate/internal/config"
	"github.com/aretw0/gamestate/internal/logging"
	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundtrip(t *testing.T, b *Backend) {
	t.Helper()
	ctx := context.Background()

	tx, err := b.Store.Begin(ctx, "write")
	require.NoError(t, err)
	require.NoError(t, tx.Write(domain.ScopeGameCycle, "Round", []byte("7")))
	require.NoError(t, tx.Commit(ctx))

	tx, err = b.Store.Begin(ctx, "read")
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	v, err := tx.Read(domain.ScopeGameCycle, "Round")
	require.NoError(t, err)
	assert.Equal(t, "7", string(v))
}

func TestOpenStore(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	tests := []struct {
		name       string
		cfg        config.StoreConfig
		wantLocker bool
	}{
		{name: "memory", cfg: config.StoreConfig{Kind: config.StoreMemory}},
		{name: "file", cfg: config.StoreConfig{Kind: config.StoreFile, Path: filepath.Join(dir, "file")}},
		{name: "sqlite", cfg: config.StoreConfig{Kind: config.StoreSQLite, Path: filepath.Join(dir, "state.db")}},
		{name: "redis", cfg: config.StoreConfig{Kind: config.StoreRedis, RedisURL: "redis://" + mr.Addr() + "/0", RedisPrefix: "test:"}, wantLocker: true},
		{name: "encrypted", cfg: config.StoreConfig{Kind: config.StoreMemory, EncryptionKey: strings.Repeat("0f", 32)}},
		{name: "masked", cfg: config.StoreConfig{Kind: config.StoreMemory, PIIPatterns: []string{"(?i)player"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := OpenStore(tt.cfg, logging.NewNop())
			require.NoError(t, err)
			defer b.Close()

			assert.Equal(t, tt.wantLocker, b.Locker != nil)
			roundtrip(t, b)
		})
	}

	assert.True(t, mr.Exists("test:game_cycle:Round"))
}

func TestOpenStore_Errors(t *testing.T) {
	_, err := OpenStore(config.StoreConfig{Kind: "etcd"}, logging.NewNop())
	assert.ErrorIs(t, err, config.ErrUnknownStore)

	_, err = OpenStore(config.StoreConfig{Kind: config.StoreRedis, RedisURL: "not a url"}, logging.NewNop())
	assert.Error(t, err)

	_, err = OpenStore(config.StoreConfig{Kind: config.StoreMemory, EncryptionKey: "abcd"}, logging.NewNop())
	assert.ErrorIs(t, err, config.ErrInvalidKey)
}
