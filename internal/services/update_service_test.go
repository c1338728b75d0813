package services

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peerDescriptor(t *testing.T, peer *fakePeer) models.Descriptor {
	t.Helper()
	srv := httptest.NewServer(peer)
	t.Cleanup(srv.Close)
	return models.Descriptor{
		ID:          peer.id,
		APITemplate: srv.URL + "/searsia/search?q={q}&r=" + peer.id,
		MimeType:    models.MimeType,
	}
}

func TestUpdatePutRegistersAfterTestQuery(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	svc := NewUpdateService(reg, nil)
	peer := &fakePeer{id: "wiki", hits: []map[string]any{{"title": "Searsia", "url": "http://wiki.example"}}}

	result, err := svc.Put(ctx, "wiki", peerDescriptor(t, peer))
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "wiki", result.Resource.ID)

	require.True(t, reg.Contains("wiki"))
	assert.Equal(t, "Mother v2", reg.Get("wiki").Name())
}

func TestUpdatePutRejectsWithoutResults(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	svc := NewUpdateService(reg, nil)

	empty := &fakePeer{id: "empty"}
	result, err := svc.Put(ctx, "empty", peerDescriptor(t, empty))
	assert.True(t, errors.Is(err, ErrTestQueryFailed))
	require.NotNil(t, result)
	assert.False(t, reg.Contains("empty"))

	untitled := &fakePeer{id: "untitled", hits: []map[string]any{{"url": "http://x.example"}}}
	_, err = svc.Put(ctx, "untitled", peerDescriptor(t, untitled))
	assert.True(t, errors.Is(err, ErrTestQueryFailed))
	assert.False(t, reg.Contains("untitled"))
}

func TestUpdatePutValidation(t *testing.T) {
	ctx := context.Background()
	peer := &fakePeer{id: "mother"}
	reg, _ := setupMother(t, peer)
	svc := NewUpdateService(reg, nil)

	_, err := svc.Put(ctx, "a", models.Descriptor{ID: "b"})
	assert.True(t, errors.Is(err, ErrInvalidDescriptor))

	_, err = svc.Put(ctx, "a", models.Descriptor{ID: "a", Prior: prior(-1)})
	assert.True(t, errors.Is(err, ErrInvalidDescriptor))

	_, err = svc.Put(ctx, "mother", models.Descriptor{ID: "mother"})
	assert.Equal(t, search.KindConfiguration, search.KindOf(err))

	_, err = svc.Put(ctx, "me", models.Descriptor{ID: "me"})
	assert.Equal(t, search.KindConfiguration, search.KindOf(err))
}

func TestUpdateDelete(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	r, err := reg.NewResource(models.Descriptor{ID: "old"})
	require.NoError(t, err)
	require.NoError(t, reg.Put(ctx, r))

	svc := NewUpdateService(reg, nil)
	require.NoError(t, svc.Delete(ctx, "old"))
	assert.False(t, reg.Contains("old"))
	assert.Equal(t, search.KindNotFound, search.KindOf(svc.Delete(ctx, "old")))
}
