package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prefeitura-rio/searsia-node/internal/config"
	"github.com/prefeitura-rio/searsia-node/internal/models"
	"github.com/prefeitura-rio/searsia-node/internal/search/archive"
	"github.com/prefeitura-rio/searsia-node/internal/search/registry"
	"github.com/prefeitura-rio/searsia-node/internal/storage"
)

func seed(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{IndexPath: t.TempDir(), MyURI: "http://node.example/searsia/", ArchiveBackend: config.ArchiveSQLite}
	db, err := storage.Open(cfg.IndexFile(".db"), registry.Schema, archive.Schema)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, registry.NewSQLiteStore(db).Save(ctx, models.StoredResource{
		Resource: models.Descriptor{ID: "wiki", PrivateParameters: map[string]string{"key": "secret"}},
		Searsia:  models.ProtocolVersion,
	}))
	require.NoError(t, archive.NewSQLiteArchive(db).Upsert(ctx, []archive.Document{
		{ID: "a", Title: "Rain", Terms: "rain", Stored: json.RawMessage(`{"title":"Rain"}`)},
		{ID: "b", Title: "Sun", Terms: "sun", Stored: json.RawMessage(`{"title":"Sun"}`)},
	}))
	return cfg
}

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimSpace(buf.String()), "\n")
}

func TestDumpArchive(t *testing.T) {
	cfg := seed(t)
	var buf bytes.Buffer
	d := NewDumper(&DumpConfig{What: WhatArchive}, cfg)

	require.NoError(t, d.Run(context.Background(), &buf))
	assert.Equal(t, []string{`{"title":"Rain"}`, `{"title":"Sun"}`}, lines(&buf))
	assert.EqualValues(t, 2, d.stats.Total)
}

func TestDumpResourcesHidesSecrets(t *testing.T) {
	cfg := seed(t)

	var buf bytes.Buffer
	require.NoError(t, NewDumper(&DumpConfig{What: WhatResources}, cfg).Run(context.Background(), &buf))
	require.Len(t, lines(&buf), 1)
	assert.NotContains(t, buf.String(), "secret")

	buf.Reset()
	require.NoError(t, NewDumper(&DumpConfig{What: WhatResources, Private: true}, cfg).Run(context.Background(), &buf))
	assert.Contains(t, buf.String(), "secret")
}

func TestDumpRejectsUnknownTarget(t *testing.T) {
	cfg := seed(t)
	err := NewDumper(&DumpConfig{What: "everything"}, cfg).Run(context.Background(), &bytes.Buffer{})
	assert.Error(t, err)
}
