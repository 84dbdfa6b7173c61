package config

import (
	"time"
)

// Config represents the complete segmenter configuration
type Config struct {
	Google        GoogleConfig        `yaml:"google"`
	Intersections IntersectionsConfig `yaml:"intersections"`
	Registry      RegistryConfig      `yaml:"registry"`
	Segmentation  SegmentationConfig  `yaml:"segmentation"`
}

// GoogleConfig holds Google Routes API settings
type GoogleConfig struct {
	APIKey string `yaml:"api_key"`
}

// IntersectionsConfig holds intersections service settings
type IntersectionsConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// RegistryConfig holds route registry settings
type RegistryConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SegmentationConfig holds session tuning knobs
type SegmentationConfig struct {
	Debounce             time.Duration `yaml:"debounce"`
	SnapPrecisionMeters  float64       `yaml:"snap_precision_meters"`
	CacheCleanupInterval time.Duration `yaml:"cache_cleanup_interval"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Intersections: IntersectionsConfig{
			BaseURL: "https://osm-intersections.ersn.net",
		},
		Registry: RegistryConfig{
			BaseURL: "https://routes.ersn.net",
		},
		Segmentation: SegmentationConfig{
			Debounce:             300 * time.Millisecond,
			SnapPrecisionMeters:  50,
			CacheCleanupInterval: 10 * time.Minute,
		},
	}
}
