package filecache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meigma/filecache/internal/sizing"
)

// Config is the declarative form of the cache options, suitable for
// loading from a YAML or JSON file with ParseConfig.
//
//	directory: cache
//	maxFiles: 1000
//	maxSize: 1 GB
//	checkIntervalMinutes: 10
//	shardingLevel: 2
type Config struct {
	// Directory is the cache root. Relative paths are resolved against the
	// directory of the running executable. Empty selects DefaultDirectory.
	Directory string `yaml:"directory"`

	// MaxFiles is the entry-count ceiling. 0 disables it.
	MaxFiles int `yaml:"maxFiles"`

	// MaxSize is the cumulative byte ceiling. 0 disables it.
	MaxSize Size `yaml:"maxSize"`

	// CheckIntervalMinutes is the sweep period. nil selects the default of
	// 10 minutes; 0 disables periodic sweeps.
	CheckIntervalMinutes *float64 `yaml:"checkIntervalMinutes"`

	// ShardingLevel is 1 (flat) or 2 (two-character shards). 0 selects 1.
	ShardingLevel int `yaml:"shardingLevel"`

	// Compression is "none", "zstd", "lz4" or "snappy".
	Compression string `yaml:"compression"`

	// DeleteRate limits sweep deletions per second. 0 disables the limit.
	DeleteRate float64 `yaml:"deleteRate"`
}

// Size is a byte count that decodes from an integer or a human-readable
// string such as "1 GB" or "512 MiB".
type Size int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a number or string", node.Line)
	}
	var n int64
	if err := node.Decode(&n); err == nil {
		if n < 0 {
			return fmt.Errorf("line %d: size must be >= 0", node.Line)
		}
		*s = Size(n)
		return nil
	}
	n, err := sizing.Parse(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = Size(n)
	return nil
}

// String renders the size using binary units.
func (s Size) String() string {
	return sizing.Format(int64(s))
}

// ParseConfig decodes a YAML (or JSON) configuration document.
// Unknown fields are rejected. An empty document yields the zero Config.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse cache config: %w", err)
	}
	return cfg, nil
}

// Options converts the configuration into cache options.
func (c Config) Options() ([]Option, error) {
	var opts []Option
	if c.Directory != "" {
		opts = append(opts, WithDirectory(c.Directory))
	}
	opts = append(opts, WithMaxFiles(c.MaxFiles), WithMaxSize(int64(c.MaxSize)))
	if c.CheckIntervalMinutes != nil {
		m := *c.CheckIntervalMinutes
		if m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, fmt.Errorf("invalid check interval %v", m)
		}
		opts = append(opts, WithCheckInterval(time.Duration(m*float64(time.Minute))))
	}
	if c.ShardingLevel != 0 {
		opts = append(opts, WithShardingLevel(c.ShardingLevel))
	}
	comp, err := ParseCompression(c.Compression)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithCompression(comp), WithDeleteRate(c.DeleteRate))
	return opts, nil
}

// NewFromConfig creates a cache from cfg. Extra options are applied after
// the configuration and override it.
func NewFromConfig(cfg Config, extra ...Option) (*Cache, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return New(append(opts, extra...)...)
}
