// Package config provides configuration management for the tile selector.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/robert-malhotra/stac-tile-selector/internal/catalog"
	"github.com/robert-malhotra/stac-tile-selector/internal/geo"
	"github.com/robert-malhotra/stac-tile-selector/internal/spatial"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	// JobFile optionally points at a YAML job overriding search, period and grid settings.
	JobFile string `env:"JOB_FILE" envDefault:""`

	Catalog CatalogConfig `envPrefix:"CATALOG_"`
	Search  SearchConfig  `envPrefix:"SEARCH_"`
	Period  PeriodConfig  `envPrefix:"PERIOD_"`
	Grid    GridConfig    `envPrefix:"GRID_"`
	Input   InputConfig   `envPrefix:"INPUT_"`
	Output  OutputConfig  `envPrefix:"OUTPUT_"`
	Server  ServerConfig  `envPrefix:"SERVER_"`
	Logging LoggingConfig `envPrefix:"LOG_"`
}

// CatalogConfig selects and tunes the STAC catalog client.
type CatalogConfig struct {
	// Name is "planetary-computer" or "earth-search".
	Name       string        `env:"NAME" envDefault:"planetary-computer"`
	BaseURL    string        `env:"BASE_URL" envDefault:""` // Overrides the catalog's default URL
	Collection string        `env:"COLLECTION" envDefault:"sentinel-2-l2a"`
	FilterMode string        `env:"FILTER_MODE" envDefault:"query"`
	Limit      int           `env:"LIMIT" envDefault:"100"`
	MaxItems   int           `env:"MAX_ITEMS" envDefault:"0"`
	MaxPages   int           `env:"MAX_PAGES" envDefault:"1000"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// SearchConfig contains the per tile search and retry settings.
type SearchConfig struct {
	MaxCloudCover float64       `env:"MAX_CLOUD_COVER" envDefault:"15"`
	MaxNoData     float64       `env:"MAX_NODATA" envDefault:"5"`
	MaxAttempts   int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay    time.Duration `env:"RETRY_DELAY" envDefault:"5s"`
	RetryBackoff  string        `env:"RETRY_BACKOFF" envDefault:"constant"`
	Concurrency   int           `env:"CONCURRENCY" envDefault:"4"`
	Deadline      time.Duration `env:"DEADLINE" envDefault:"0s"`
}

// PeriodConfig describes the yearly month window searched.
type PeriodConfig struct {
	StartYear  int `env:"START_YEAR" envDefault:"2020"`
	EndYear    int `env:"END_YEAR" envDefault:"2024"`
	StartMonth int `env:"START_MONTH" envDefault:"6"`
	EndMonth   int `env:"END_MONTH" envDefault:"7"`
}

// GridConfig contains the fine grid settings.
type GridConfig struct {
	CellSize float64 `env:"CELL_SIZE" envDefault:"800"`
	CRS      string  `env:"CRS" envDefault:"EPSG:5070"`
	// BBox overrides the region bounds as minx,miny,maxx,maxy.
	BBox      []float64 `env:"BBOX" envSeparator:"," envDefault:""`
	Workers   int       `env:"WORKERS" envDefault:"0"`
	Predicate string    `env:"PREDICATE" envDefault:"within"`
}

// InputConfig locates the input layers.
type InputConfig struct {
	TileGrid     string `env:"TILE_GRID" envDefault:""`
	TileProperty string `env:"TILE_PROPERTY" envDefault:"name"`
	Region       string `env:"REGION" envDefault:""`
}

// OutputConfig controls what a run writes.
type OutputConfig struct {
	Dir           string `env:"DIR" envDefault:"data"`
	WriteGrid     bool   `env:"WRITE_GRID" envDefault:"false"`
	TilesColumn   string `env:"TILES_COLUMN" envDefault:"s2_tiles"`
	ProductColumn string `env:"PRODUCT_COLUMN" envDefault:"best_s2_product_id"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables, applies the job file
// when one is set, and validates the result. A non-empty jobFile takes
// precedence over JOB_FILE.
func Load(jobFile string) (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if jobFile != "" {
		cfg.JobFile = jobFile
	}

	if cfg.JobFile != "" {
		job, err := LoadJob(cfg.JobFile)
		if err != nil {
			return nil, err
		}
		job.Apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	// Validate catalog config
	if _, err := catalog.ParseKind(c.Catalog.Name); err != nil {
		return err
	}

	if _, err := catalog.ParseFilterMode(c.Catalog.FilterMode); err != nil {
		return err
	}

	if c.Catalog.Collection == "" {
		return fmt.Errorf("catalog collection is required")
	}

	if c.Catalog.Limit < 1 {
		return fmt.Errorf("catalog limit must be at least 1, got %d", c.Catalog.Limit)
	}

	if c.Catalog.MaxItems < 0 {
		return fmt.Errorf("catalog max items must not be negative, got %d", c.Catalog.MaxItems)
	}
	if c.Catalog.MaxPages < 0 {
		return fmt.Errorf("catalog max pages must not be negative, got %d", c.Catalog.MaxPages)
	}

	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog timeout must be positive, got %s", c.Catalog.Timeout)
	}

	// Validate search config
	if c.Search.MaxCloudCover <= 0 || c.Search.MaxCloudCover > 100 {
		return fmt.Errorf("max cloud cover must be in (0, 100], got %v", c.Search.MaxCloudCover)
	}

	if c.Search.MaxNoData <= 0 || c.Search.MaxNoData > 100 {
		return fmt.Errorf("max no-data must be in (0, 100], got %v", c.Search.MaxNoData)
	}

	if c.Search.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.Search.MaxAttempts)
	}

	if c.Search.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %s", c.Search.RetryDelay)
	}

	if c.Search.RetryBackoff != "constant" && c.Search.RetryBackoff != "exponential" {
		return fmt.Errorf("retry backoff must be 'constant' or 'exponential', got %q", c.Search.RetryBackoff)
	}

	if c.Search.Concurrency < 1 {
		return fmt.Errorf("search concurrency must be at least 1, got %d", c.Search.Concurrency)
	}

	if c.Search.Deadline < 0 {
		return fmt.Errorf("search deadline must not be negative, got %s", c.Search.Deadline)
	}

	// Validate period config
	if c.Period.StartMonth < 1 || c.Period.StartMonth > 12 || c.Period.EndMonth < 1 || c.Period.EndMonth > 12 {
		return fmt.Errorf("period months must be between 1 and 12, got %d and %d", c.Period.StartMonth, c.Period.EndMonth)
	}

	if c.Period.EndYear < c.Period.StartYear {
		return fmt.Errorf("period end year (%d) must be >= start year (%d)", c.Period.EndYear, c.Period.StartYear)
	}

	// Validate grid config
	if c.Grid.CellSize <= 0 {
		return fmt.Errorf("grid cell size must be positive, got %v", c.Grid.CellSize)
	}

	if len(c.Grid.BBox) > 0 {
		b, err := geo.BBoxFromSlice(c.Grid.BBox)
		if err != nil {
			return fmt.Errorf("grid bbox: %w", err)
		}
		if !b.Valid() {
			return fmt.Errorf("grid bbox %v is empty or not finite", c.Grid.BBox)
		}
	}

	if c.Grid.Workers < 0 {
		return fmt.Errorf("grid workers must not be negative, got %d", c.Grid.Workers)
	}

	if _, err := spatial.ParsePredicate(c.Grid.Predicate); err != nil {
		return err
	}

	// Validate input config
	if c.Input.TileProperty == "" {
		return fmt.Errorf("tile property is required")
	}

	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"text":    true,
		"console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text, console", c.Logging.Format)
	}

	return nil
}

// ValidateInputs checks the settings a selection run needs on top of Validate.
func (c *Config) ValidateInputs() error {
	if c.Input.TileGrid == "" {
		return fmt.Errorf("tile grid file is required (INPUT_TILE_GRID)")
	}
	if c.Input.Region == "" && len(c.Grid.BBox) == 0 {
		return fmt.Errorf("either a region file (INPUT_REGION) or a grid bbox (GRID_BBOX) is required")
	}
	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
