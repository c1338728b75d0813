package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prefeitura-rio/searsia-node/internal/utils"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("MY_URI", "http://node.example/searsia/")
	t.Setenv("MOTHER_URL", "https://searsia.org/searsia/wiki.json?q={q}")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.CacheSize)
	assert.Equal(t, 120*time.Second, cfg.PollDuration())
	assert.Equal(t, ArchiveSQLite, cfg.ArchiveBackend)
	assert.Equal(t, 10*time.Minute, cfg.ExactCacheTTL)
	assert.Equal(t, utils.HashString("http://node.example/searsia/"), cfg.MyID)
	assert.Equal(t, filepath.Join("index", utils.HashString(cfg.MotherURL)+".json"), cfg.IndexFile(".json"))
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("MY_URI", "http://node.example/searsia/")
	t.Setenv("MY_ID", "node")
	t.Setenv("CACHE_SIZE", "64")
	t.Setenv("POLL_INTERVAL", "5")
	t.Setenv("OPEN_UPDATES", "true")
	t.Setenv("DONT_SHARE", "1")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "node", cfg.MyID)
	assert.Equal(t, 64, cfg.CacheSize)
	assert.True(t, cfg.OpenUpdates)
	assert.True(t, cfg.DontShare)
	assert.False(t, cfg.CensorQueryResourceID)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, utils.HashString(cfg.MyURI), cfg.IndexName())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"cache pequeno":       {"CACHE_SIZE": "29"},
		"intervalo curto":     {"POLL_INTERVAL": "4"},
		"backend":             {"ARCHIVE_BACKEND": "postgres"},
		"typesense sem chave": {"ARCHIVE_BACKEND": "typesense"},
		"uri":                 {"MY_URI": "not a uri"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
