package config

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func writeTempJSONConfig(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	f, err := os.CreateTemp(t.TempDir(), "config-*.json")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func noValidation(*StructuredConfig) error { return nil }

// ── build ─────────────────────────────────────────────────────────────────────

// TestBuild_EmptyBuilder verifies that building with no sources yields the
// defaults only.
func TestBuild_EmptyBuilder(t *testing.T) {
	cfg, err := newConfigBuilder().build(noValidation)
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, cfg.Sync.BatchSize)
	assert.Equal(t, defaultMaxRetries, cfg.Sync.MaxRetries)
	assert.Equal(t, defaultSyncInterval, cfg.Sync.Interval)
	assert.Equal(t, defaultProbeInterval, cfg.Sync.ProbeInterval)
}

// TestBuild_PropagatesBuilderError verifies that a pre-set b.err is wrapped
// and returned, with nil config.
func TestBuild_PropagatesBuilderError(t *testing.T) {
	b := newConfigBuilder()
	b.err = assert.AnError

	cfg, err := b.build(noValidation)
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

// TestBuild_MergesMultipleConfigs verifies that fields from multiple sources
// are merged into a single result.
func TestBuild_MergesMultipleConfigs(t *testing.T) {
	b := newConfigBuilder()
	b.configs = append(b.configs,
		&StructuredConfig{Server: Server{HTTPAddress: "0.0.0.0:8080"}},
		&StructuredConfig{Storage: Storage{ServerDB: ServerDB{DSN: "postgres://factory"}}},
	)

	cfg, err := b.build(noValidation)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.HTTPAddress)
	assert.Equal(t, "postgres://factory", cfg.Storage.ServerDB.DSN)
}

// TestBuild_EarlierSourceWins verifies the merge priority: a field set by an
// earlier source (env) is not overwritten by a later one (JSON file).
func TestBuild_EarlierSourceWins(t *testing.T) {
	b := newConfigBuilder()
	b.configs = append(b.configs,
		&StructuredConfig{Sync: Sync{ActorID: "cutter-3", BatchSize: 10}},
		&StructuredConfig{Sync: Sync{ActorID: "from-file", BatchSize: 50, MaxRetries: 5}},
	)

	cfg, err := b.build(noValidation)
	require.NoError(t, err)
	assert.Equal(t, "cutter-3", cfg.Sync.ActorID)
	assert.Equal(t, 10, cfg.Sync.BatchSize)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
}

func TestBuild_ValidationFailureSurfaces(t *testing.T) {
	b := newConfigBuilder()
	b.configs = append(b.configs, &StructuredConfig{Server: Server{HTTPAddress: ":8080"}})

	_, err := b.build(validateServer)
	assert.ErrorIs(t, err, errNoDatabaseDSN)
}

// ── withJSON ──────────────────────────────────────────────────────────────────

func TestWithJSON_MergedAfterOtherSources(t *testing.T) {
	path := writeTempJSONConfig(t, map[string]any{
		"sync": map[string]any{
			"server_url": "http://erp.factory.local:8080",
			"actor_id":   "from-file",
		},
	})

	b := newConfigBuilder()
	b.configs = append(b.configs, &StructuredConfig{
		JSONFilePath: path,
		Sync:         Sync{ActorID: "cutter-3"},
	})

	cfg, err := b.withJSON().build(noValidation)
	require.NoError(t, err)
	assert.Equal(t, "http://erp.factory.local:8080", cfg.Sync.ServerURL)
	assert.Equal(t, "cutter-3", cfg.Sync.ActorID, "env/flag value must win over the file")
}

func TestWithJSON_MissingFileFailsBuild(t *testing.T) {
	b := newConfigBuilder()
	b.configs = append(b.configs, &StructuredConfig{JSONFilePath: "/nonexistent/stitchline.json"})

	cfg, err := b.withJSON().build(noValidation)
	assert.Nil(t, cfg)
	assert.Error(t, err)
}

// ── validation ────────────────────────────────────────────────────────────────

func TestValidateServer(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StructuredConfig
		wantErr error
	}{
		{
			name: "complete",
			cfg: StructuredConfig{
				Server:  Server{HTTPAddress: ":8080"},
				Storage: Storage{ServerDB: ServerDB{DSN: "postgres://factory"}},
			},
		},
		{
			name:    "missing address",
			cfg:     StructuredConfig{Storage: Storage{ServerDB: ServerDB{DSN: "postgres://factory"}}},
			wantErr: errNoServerAddress,
		},
		{
			name:    "missing DSN",
			cfg:     StructuredConfig{Server: Server{HTTPAddress: ":8080"}},
			wantErr: errNoDatabaseDSN,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateServer(&tt.cfg)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateAgent(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StructuredConfig
		wantErr error
	}{
		{
			name: "complete",
			cfg: StructuredConfig{
				Sync:    Sync{ServerURL: "http://erp.factory.local:8080"},
				Storage: Storage{LocalDB: LocalDB{Path: "/var/lib/stitchline/agent.db"}},
			},
		},
		{
			name:    "missing server URL",
			cfg:     StructuredConfig{Storage: Storage{LocalDB: LocalDB{Path: "agent.db"}}},
			wantErr: errNoSyncServerURL,
		},
		{
			name:    "missing local path",
			cfg:     StructuredConfig{Sync: Sync{ServerURL: "http://erp.factory.local:8080"}},
			wantErr: errNoLocalDBPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAgent(&tt.cfg)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// ── defaults ──────────────────────────────────────────────────────────────────

func TestApplyDefaults_FillsOnlyUnsetFields(t *testing.T) {
	cfg := &StructuredConfig{Sync: Sync{Interval: time.Minute, BatchSize: 100}}

	applyDefaults(cfg)

	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 100, cfg.Sync.BatchSize)
	assert.Equal(t, defaultMaxRetries, cfg.Sync.MaxRetries)
	assert.Equal(t, defaultProbeInterval, cfg.Sync.ProbeInterval)
	assert.Equal(t, defaultRequestTimeout, cfg.Sync.RequestTimeout)
	assert.Equal(t, defaultAdminAddress, cfg.Sync.AdminAddress)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
}
