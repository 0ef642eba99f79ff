// Package registrytest holds behaviour checks shared by every registry backend.
package registrytest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/devsrv/internal/registry"
)

// Run exercises ordering, upsert, delete, and validation against reg,
// which must start empty.
func Run(t *testing.T, reg registry.Registry) {
	t.Helper()
	ctx := context.Background()

	recs, err := reg.LoadAll(ctx)
	require.NoError(t, err)
	require.Empty(t, recs)

	a := registry.Record{Name: "api", Kind: "python", Path: "/srv/api/api.py", AutoRestart: true}
	b := registry.Record{Name: "web", Kind: "node", Path: "/srv/web/web.js", AutoRestart: false, Monitoring: true}
	c := registry.Record{Name: "jobs", Kind: "python", Path: "/srv/jobs/jobs.py", AutoRestart: true}
	for _, r := range []registry.Record{a, b, c} {
		require.NoError(t, reg.Save(ctx, r))
	}

	recs, err = reg.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []registry.Record{a, b, c}, recs)

	// Updating keeps the original position.
	a.Monitoring = true
	require.NoError(t, reg.Save(ctx, a))
	recs, err = reg.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "api", recs[0].Name)
	assert.True(t, recs[0].Monitoring)

	require.NoError(t, reg.Delete(ctx, "web"))
	assert.ErrorIs(t, reg.Delete(ctx, "web"), registry.ErrNotFound)
	recs, err = reg.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []registry.Record{a, c}, recs)

	assert.Error(t, reg.Save(ctx, registry.Record{Name: "", Path: "/x"}))
	assert.Error(t, reg.Save(ctx, registry.Record{Name: "x", Path: ""}))
}
