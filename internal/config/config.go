// Package config centralizes every runtime tunable of the forensic search
// engine in one typed, TOML-backed struct, mirroring the lineage's own
// settings store.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

// Config holds the runtime tunables loaded from TOML. The command wiring
// passes StorageRoot, EmbeddingModelID, Device, EncodeBatchSize and
// NoiseRulesPath on to the components it builds. The windowing,
// search-default and over-retrieval fields are checked by Validate but are
// not passed to the Indexer or the Search Engine, which use their own
// built-in defaults and the values of each request.
type Config struct {
	// Embedding model configuration.
	EmbeddingModelID string `toml:"embedding_model_id"`
	Device           string `toml:"device"`
	EncodeBatchSize   int    `toml:"encode_batch_size"`

	// Chunker windowing.
	WindowSize int `toml:"window_size"`
	Overlap    int `toml:"overlap"`

	// Search defaults.
	RetrievalMode      domain.RetrievalMode `toml:"retrieval_mode"`
	DefaultK           int                  `toml:"default_k"`
	DefaultExcludeNoise bool                `toml:"default_exclude_noise"`
	DistanceCeiling    *float64             `toml:"distance_ceiling"`

	// Over-retrieval multipliers for OverRetrievalK, which sizes a vector
	// query ahead of a geographic post-filter, per §4.8.
	GeoOverRetrievalFactor int `toml:"geo_over_retrieval_factor"`
	GeoOverRetrievalFloor  int `toml:"geo_over_retrieval_floor"`

	// Storage.
	StorageRoot string `toml:"storage_root"`

	// NoiseRulesPath points at an external, hot-reloadable rule list for
	// the Noise Flagger. Empty means "use the built-in default rules".
	NoiseRulesPath string `toml:"noise_rules_path"`
}

// Default returns a Config with sensible defaults, filled in wherever a
// loaded file is absent or missing a field.
func Default() Config {
	return Config{
		EmbeddingModelID:       "nomic-embed-text",
		Device:                 "cpu",
		EncodeBatchSize:        64,
		WindowSize:             5,
		Overlap:                1,
		RetrievalMode:          domain.RetrievalANN,
		DefaultK:               10,
		DefaultExcludeNoise:    true,
		GeoOverRetrievalFactor: 2,
		GeoOverRetrievalFloor:  20,
		StorageRoot:            defaultStorageRoot(),
		NoiseRulesPath:         "",
	}
}

func defaultStorageRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sercha/data"
	}
	return filepath.Join(home, ".sercha", "data")
}

// Validate reports the first invariant violation found, mirroring the
// lineage's Validate()-on-config pattern.
func (c Config) Validate() error {
	if c.EmbeddingModelID == "" {
		return fmt.Errorf("%w: embedding_model_id must not be empty", domain.ErrInvalidInput)
	}
	if c.EncodeBatchSize <= 0 {
		return fmt.Errorf("%w: encode_batch_size must be positive", domain.ErrInvalidInput)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: window_size must be positive", domain.ErrInvalidInput)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative", domain.ErrInvalidInput)
	}
	if c.Overlap >= c.WindowSize {
		return fmt.Errorf("%w: overlap must be smaller than window_size", domain.ErrInvalidInput)
	}
	if c.RetrievalMode != domain.RetrievalANN && c.RetrievalMode != domain.RetrievalKNN {
		return fmt.Errorf("%w: retrieval_mode must be ANN or KNN", domain.ErrInvalidInput)
	}
	if c.DefaultK < 1 {
		return fmt.Errorf("%w: default_k must be >= 1", domain.ErrInvalidInput)
	}
	if c.DistanceCeiling != nil && (*c.DistanceCeiling < 0 || *c.DistanceCeiling > 1) {
		return fmt.Errorf("%w: distance_ceiling must be within [0, 1]", domain.ErrInvalidInput)
	}
	if c.GeoOverRetrievalFactor < 1 {
		return fmt.Errorf("%w: geo_over_retrieval_factor must be >= 1", domain.ErrInvalidInput)
	}
	if c.GeoOverRetrievalFloor < 0 {
		return fmt.Errorf("%w: geo_over_retrieval_floor must not be negative", domain.ErrInvalidInput)
	}
	if c.StorageRoot == "" {
		return fmt.Errorf("%w: storage_root must not be empty", domain.ErrInvalidInput)
	}
	return nil
}

// OverRetrievalK returns the number of candidates to request from the
// Vector Store ahead of a geographic post-filter, per §4.8:
// max(factor*k, k+floor).
func (c Config) OverRetrievalK(k int) int {
	byFactor := c.GeoOverRetrievalFactor * k
	byFloor := k + c.GeoOverRetrievalFloor
	if byFactor > byFloor {
		return byFactor
	}
	return byFloor
}

// Load reads a TOML config file at path, filling any field absent from the
// file (or the file itself, if missing) with Default()'s value. It does
// not call Validate; callers decide when to enforce invariants.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	// A bool's zero value cannot mark "unset", so DefaultExcludeNoise is
	// seeded with its default and only a key present in the file changes it.
	loaded := Config{DefaultExcludeNoise: cfg.DefaultExcludeNoise}
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return mergeDefaults(cfg, loaded), nil
}

// Save writes cfg to path as TOML, creating parent directories as needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// mergeDefaults overlays loaded onto defaults field by field, treating each
// zero value in loaded as "unset" so a partial file still yields a
// complete Config. DefaultExcludeNoise is taken from loaded as is; Load
// seeds it with the default before decoding.
func mergeDefaults(defaults, loaded Config) Config {
	out := defaults
	if loaded.EmbeddingModelID != "" {
		out.EmbeddingModelID = loaded.EmbeddingModelID
	}
	if loaded.Device != "" {
		out.Device = loaded.Device
	}
	if loaded.EncodeBatchSize != 0 {
		out.EncodeBatchSize = loaded.EncodeBatchSize
	}
	if loaded.WindowSize != 0 {
		out.WindowSize = loaded.WindowSize
	}
	if loaded.Overlap != 0 {
		out.Overlap = loaded.Overlap
	}
	if loaded.RetrievalMode != "" {
		out.RetrievalMode = loaded.RetrievalMode
	}
	if loaded.DefaultK != 0 {
		out.DefaultK = loaded.DefaultK
	}
	out.DefaultExcludeNoise = loaded.DefaultExcludeNoise
	if loaded.DistanceCeiling != nil {
		out.DistanceCeiling = loaded.DistanceCeiling
	}
	if loaded.GeoOverRetrievalFactor != 0 {
		out.GeoOverRetrievalFactor = loaded.GeoOverRetrievalFactor
	}
	if loaded.GeoOverRetrievalFloor != 0 {
		out.GeoOverRetrievalFloor = loaded.GeoOverRetrievalFloor
	}
	if loaded.StorageRoot != "" {
		out.StorageRoot = loaded.StorageRoot
	}
	if loaded.NoiseRulesPath != "" {
		out.NoiseRulesPath = loaded.NoiseRulesPath
	}
	return out
}
