package factory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/devsrv/internal/registry"
	fr "github.com/loykin/devsrv/internal/registry/file"
	sq "github.com/loykin/devsrv/internal/registry/sqlite"
)

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := Open(ctx, "  ")
	assert.Error(t, err)

	m, err := Open(ctx, "memory://")
	require.NoError(t, err)
	assert.IsType(t, &registry.Memory{}, m)

	s1, err := Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	assert.IsType(t, &sq.DB{}, s1)
	_ = s1.Close()

	s2, err := Open(ctx, filepath.Join(dir, "servers.db"))
	require.NoError(t, err)
	assert.IsType(t, &sq.DB{}, s2)
	_ = s2.Close()

	f1, err := Open(ctx, filepath.Join(dir, "servers.json"))
	require.NoError(t, err)
	assert.IsType(t, &fr.Store{}, f1)

	f2, err := Open(ctx, filepath.Join(dir, "servers.yml"))
	require.NoError(t, err)
	assert.IsType(t, &fr.Store{}, f2)
}

func TestOpenPostgresUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Open(ctx, "postgres://user@127.0.0.1:1/db?sslmode=disable&connect_timeout=1")
	assert.Error(t, err)
}
