package filecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigYAML(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(`
directory: /var/cache/app
maxFiles: 1000
maxSize: 1 GB
checkIntervalMinutes: 2.5
shardingLevel: 2
compression: zstd
deleteRate: 50
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/app", cfg.Directory)
	assert.Equal(t, 1000, cfg.MaxFiles)
	assert.Equal(t, Size(1_000_000_000), cfg.MaxSize)
	require.NotNil(t, cfg.CheckIntervalMinutes)
	assert.InDelta(t, 2.5, *cfg.CheckIntervalMinutes, 0)
	assert.Equal(t, 2, cfg.ShardingLevel)
	assert.Equal(t, "zstd", cfg.Compression)
	assert.InDelta(t, 50.0, cfg.DeleteRate, 0)
}

func TestParseConfigJSON(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(`{"maxFiles": 3, "maxSize": "512 MiB", "checkIntervalMinutes": 0}`))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxFiles)
	assert.Equal(t, Size(512<<20), cfg.MaxSize)
	require.NotNil(t, cfg.CheckIntervalMinutes)
	assert.Zero(t, *cfg.CheckIntervalMinutes)
}

func TestParseConfigSizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Size
	}{
		{"maxSize: 4096", 4096},
		{"maxSize: 10kB", 10_000},
		{"maxSize: 2 MiB", 2 << 20},
		{"maxSize: 1.5 GiB", 3 << 29},
		{`maxSize: "12"`, 12},
	}
	for _, tt := range tests {
		cfg, err := ParseConfig([]byte(tt.in))
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, cfg.MaxSize, tt.in)
	}
}

func TestParseConfigErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"maxFile: 3",
		"maxSize: -1",
		"maxSize: lots",
		"maxSize: [1, 2]",
		"maxFiles: many",
	} {
		_, err := ParseConfig([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestParseConfigEmpty(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestSizeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512MiB", Size(512<<20).String())
}

func TestConfigOptionsInvalid(t *testing.T) {
	t.Parallel()

	neg := -1.0
	_, err := Config{CheckIntervalMinutes: &neg}.Options()
	require.Error(t, err)

	_, err = Config{Compression: "brotli"}.Options()
	require.Error(t, err)

	_, err = NewFromConfig(Config{Directory: t.TempDir(), ShardingLevel: 5})
	require.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(`
maxFiles: 2
maxSize: 1 KiB
checkIntervalMinutes: 0
shardingLevel: 2
compression: snappy
`))
	require.NoError(t, err)
	cfg.Directory = t.TempDir()

	c, err := NewFromConfig(cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, cfg.Directory, c.Dir())
	assert.Equal(t, 2, c.Limits().MaxFiles)
	assert.Equal(t, int64(1024), c.Limits().MaxBytes)

	keys := []string{"k1", "k2", "k3"}
	for _, key := range keys {
		_, err := c.SetBytes(key, []byte("value"))
		require.NoError(t, err)
	}
	age(t, c, keys...)

	res, err := c.RunEvictionSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evicted)

	got, ok, err := c.Get("k3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value", string(got))
}

func TestNewFromConfigExtraOptionsOverride(t *testing.T) {
	t.Parallel()

	minutes := 5.0
	c, err := NewFromConfig(Config{MaxFiles: 10, CheckIntervalMinutes: &minutes},
		WithDirectory(t.TempDir()), WithMaxFiles(4), WithCheckInterval(time.Hour))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, 4, c.Limits().MaxFiles)
}
