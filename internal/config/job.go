package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Job is a YAML run description. Every field is optional; set fields override
// the environment.
type Job struct {
	Catalog *JobCatalog `yaml:"catalog,omitempty"`
	Search  *JobSearch  `yaml:"search,omitempty"`
	Period  *JobPeriod  `yaml:"period,omitempty"`
	Grid    *JobGrid    `yaml:"grid,omitempty"`
	Input   *JobInput   `yaml:"input,omitempty"`
	Output  *JobOutput  `yaml:"output,omitempty"`
}

// JobCatalog overrides CatalogConfig.
type JobCatalog struct {
	Name       *string `yaml:"name,omitempty"`
	BaseURL    *string `yaml:"base_url,omitempty"`
	Collection *string `yaml:"collection,omitempty"`
	FilterMode *string `yaml:"filter_mode,omitempty"`
}

// JobSearch overrides SearchConfig.
type JobSearch struct {
	MaxCloudCover *float64 `yaml:"max_cloud_cover,omitempty"`
	MaxNoData     *float64 `yaml:"max_nodata,omitempty"`
	MaxAttempts   *int     `yaml:"max_attempts,omitempty"`
	Concurrency   *int     `yaml:"concurrency,omitempty"`
}

// JobPeriod overrides PeriodConfig.
type JobPeriod struct {
	StartYear  *int `yaml:"start_year,omitempty"`
	EndYear    *int `yaml:"end_year,omitempty"`
	StartMonth *int `yaml:"start_month,omitempty"`
	EndMonth   *int `yaml:"end_month,omitempty"`
}

// JobGrid overrides GridConfig.
type JobGrid struct {
	CellSize  *float64  `yaml:"cell_size,omitempty"`
	CRS       *string   `yaml:"crs,omitempty"`
	BBox      []float64 `yaml:"bbox,omitempty"`
	Predicate *string   `yaml:"predicate,omitempty"`
}

// JobInput overrides InputConfig.
type JobInput struct {
	TileGrid     *string `yaml:"tile_grid,omitempty"`
	TileProperty *string `yaml:"tile_property,omitempty"`
	Region       *string `yaml:"region,omitempty"`
}

// JobOutput overrides OutputConfig.
type JobOutput struct {
	Dir       *string `yaml:"dir,omitempty"`
	WriteGrid *bool   `yaml:"write_grid,omitempty"`
}

// ParseJob decodes a YAML job. Unknown keys are rejected.
func ParseJob(data []byte) (*Job, error) {
	var job Job
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if job.Grid != nil && job.Grid.BBox != nil && len(job.Grid.BBox) != 4 {
		return nil, fmt.Errorf("grid bbox must have 4 values, got %d", len(job.Grid.BBox))
	}
	return &job, nil
}

// LoadJob reads and parses a job file.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file %q: %w", path, err)
	}
	job, err := ParseJob(data)
	if err != nil {
		return nil, fmt.Errorf("invalid job file %q: %w", path, err)
	}
	return job, nil
}

// Apply copies the set fields of j onto cfg.
func (j *Job) Apply(cfg *Config) {
	if c := j.Catalog; c != nil {
		set(&cfg.Catalog.Name, c.Name)
		set(&cfg.Catalog.BaseURL, c.BaseURL)
		set(&cfg.Catalog.Collection, c.Collection)
		set(&cfg.Catalog.FilterMode, c.FilterMode)
	}
	if s := j.Search; s != nil {
		set(&cfg.Search.MaxCloudCover, s.MaxCloudCover)
		set(&cfg.Search.MaxNoData, s.MaxNoData)
		set(&cfg.Search.MaxAttempts, s.MaxAttempts)
		set(&cfg.Search.Concurrency, s.Concurrency)
	}
	if p := j.Period; p != nil {
		set(&cfg.Period.StartYear, p.StartYear)
		set(&cfg.Period.EndYear, p.EndYear)
		set(&cfg.Period.StartMonth, p.StartMonth)
		set(&cfg.Period.EndMonth, p.EndMonth)
	}
	if g := j.Grid; g != nil {
		set(&cfg.Grid.CellSize, g.CellSize)
		set(&cfg.Grid.CRS, g.CRS)
		set(&cfg.Grid.Predicate, g.Predicate)
		if g.BBox != nil {
			cfg.Grid.BBox = append([]float64(nil), g.BBox...)
		}
	}
	if in := j.Input; in != nil {
		set(&cfg.Input.TileGrid, in.TileGrid)
		set(&cfg.Input.TileProperty, in.TileProperty)
		set(&cfg.Input.Region, in.Region)
	}
	if o := j.Output; o != nil {
		set(&cfg.Output.Dir, o.Dir)
		set(&cfg.Output.WriteGrid, o.WriteGrid)
	}
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
