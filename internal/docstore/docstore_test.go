package docstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submind/internal/types"
)

func newTestDocStore(t *testing.T) *DocStore {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	d := newTestDocStore(t)

	doc, err := d.GetOrCreate(ctx, "owner-1", DefaultMind, "mind-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultMind, doc.Content)
	assert.Equal(t, "mind-1", doc.UUID)

	// Existing documents keep their content.
	require.NoError(t, d.Update(ctx, "mind-1", "knows things"))
	doc, err = d.GetOrCreate(ctx, "owner-1", DefaultMind, "mind-1")
	require.NoError(t, err)
	assert.Equal(t, "knows things", doc.Content)

	fresh, err := d.GetOrCreate(ctx, "owner-1", DefaultValues, "")
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.UUID)
	assert.NotEqual(t, "mind-1", fresh.UUID)
}

func TestGet_MissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	d := newTestDocStore(t)

	doc, err := d.Get(ctx, "nope", "owner-1")
	require.NoError(t, err)
	assert.Nil(t, doc)

	_, err = d.GetOrCreate(ctx, "owner-1", "x", "doc")
	require.NoError(t, err)
	doc, err = d.Get(ctx, "doc", "owner-2")
	require.NoError(t, err)
	assert.Nil(t, doc, "documents are scoped by owner")
}

func TestUpdate_ArchivesPrevious(t *testing.T) {
	ctx := context.Background()
	d := newTestDocStore(t)

	_, err := d.GetOrCreate(ctx, "owner-1", "v1", "doc")
	require.NoError(t, err)
	require.NoError(t, d.Update(ctx, "doc", "v2"))
	require.NoError(t, d.Update(ctx, "doc", "v3"))

	doc, err := d.Get(ctx, "doc", "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "v3", doc.Content)

	history, err := d.History(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "v1", history[0].Content)
	assert.Equal(t, "v2", history[1].Content)
}

func TestUpdate_Missing(t *testing.T) {
	d := newTestDocStore(t)
	err := d.Update(context.Background(), "ghost", "x")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestCreateReport(t *testing.T) {
	ctx := context.Background()
	d := newTestDocStore(t)

	_, err := d.GetOrCreate(ctx, "owner-1", DefaultFounder, "founder")
	require.NoError(t, err)
	report, err := d.CreateReport(ctx, "owner-1", "final findings")
	require.NoError(t, err)
	assert.NotEmpty(t, report.UUID)

	reports, err := d.Reports(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "final findings", reports[0].Content)
}
