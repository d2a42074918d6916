package engine

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-replay/internal/replay/engine_v1/venue"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
	"github.com/rxtech-lab/argo-replay/pkg/marketdata/provider"
)

// ReplayEngineV1Config configures one replay run end to end: the cache,
// the data provider, the replayed range and the simulated venue.
type ReplayEngineV1Config struct {
	CacheRoot string        `yaml:"cache_root" json:"cache_root" jsonschema:"title=Cache Root,description=Directory holding the day-partitioned historical cache"`
	CacheTTL  time.Duration `yaml:"cache_ttl" json:"cache_ttl" jsonschema:"title=Cache TTL,description=Maximum age of a cached day before it is refetched"`

	Provider       provider.ProviderType `yaml:"provider" json:"provider" jsonschema:"title=Provider,description=External market data provider"`
	ProviderAPIKey string                `yaml:"provider_api_key" json:"provider_api_key" jsonschema:"title=Provider API Key"`

	Symbols       []string          `yaml:"symbols" json:"symbols" jsonschema:"title=Symbols,description=Instruments to replay"`
	Mode          venue.ReplayMode  `yaml:"mode" json:"mode" jsonschema:"title=Replay Mode,description=bars or ticks"`
	BaseTimeframe types.Timeframe   `yaml:"base_timeframe" json:"base_timeframe" jsonschema:"title=Base Timeframe,description=Clock period in bar mode"`
	Timeframes    []types.Timeframe `yaml:"timeframes" json:"timeframes" jsonschema:"title=Timeframes,description=Aggregated candle timeframes"`

	StartTime optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time"`
	EndTime   optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time"`

	// WarmupBars is how many cached bars before StartTime are seeded into
	// the aggregators so indicators have history at step zero.
	WarmupBars int `yaml:"warmup_bars" json:"warmup_bars" jsonschema:"title=Warmup Bars,minimum=0"`

	// Workers is the number of concurrent symbol workers. Zero picks one
	// worker per symbol, capped at four.
	Workers int `yaml:"workers" json:"workers" jsonschema:"title=Workers,minimum=0"`

	Venue venue.Config `yaml:"venue" json:"venue" jsonschema:"title=Venue,description=Simulated venue parameters"`
}

// UnmarshalYAML implements custom unmarshaling for ReplayEngineV1Config.
func (c *ReplayEngineV1Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type Config struct {
		CacheRoot      string                `yaml:"cache_root"`
		CacheTTL       string                `yaml:"cache_ttl"`
		Provider       provider.ProviderType `yaml:"provider"`
		ProviderAPIKey string                `yaml:"provider_api_key"`
		Symbols        []string              `yaml:"symbols"`
		Mode           venue.ReplayMode      `yaml:"mode"`
		BaseTimeframe  string                `yaml:"base_timeframe"`
		Timeframes     []string              `yaml:"timeframes"`
		StartTime      *time.Time            `yaml:"start_time"`
		EndTime        *time.Time            `yaml:"end_time"`
		WarmupBars     int                   `yaml:"warmup_bars"`
		Workers        int                   `yaml:"workers"`
		Venue          venue.Config          `yaml:"venue"`
	}

	var config Config
	if err := unmarshal(&config); err != nil {
		return err
	}

	c.CacheRoot = config.CacheRoot
	c.Provider = config.Provider
	c.ProviderAPIKey = config.ProviderAPIKey
	c.Symbols = config.Symbols
	c.Mode = config.Mode
	c.WarmupBars = config.WarmupBars
	c.Workers = config.Workers
	c.Venue = config.Venue

	if config.CacheTTL != "" {
		ttl, err := time.ParseDuration(config.CacheTTL)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid cache_ttl %q", config.CacheTTL)
		}

		c.CacheTTL = ttl
	}

	if config.BaseTimeframe != "" {
		tf, err := types.ParseTimeframe(config.BaseTimeframe)
		if err != nil {
			return err
		}

		c.BaseTimeframe = tf
	}

	for _, raw := range config.Timeframes {
		tf, err := types.ParseTimeframe(raw)
		if err != nil {
			return err
		}

		c.Timeframes = append(c.Timeframes, tf)
	}

	if config.StartTime != nil {
		c.StartTime = optional.Some(*config.StartTime)
	}

	if config.EndTime != nil {
		c.EndTime = optional.Some(*config.EndTime)
	}

	return nil
}

// Validate checks the config is complete enough to run a replay.
func (c *ReplayEngineV1Config) Validate() error {
	if c.CacheRoot == "" {
		return errors.New(errors.ErrCodeInvalidConfiguration, "cache_root is required")
	}

	if len(c.Symbols) == 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "at least one symbol is required")
	}

	if c.StartTime.IsNone() || c.EndTime.IsNone() {
		return errors.New(errors.ErrCodeInvalidConfiguration, "start_time and end_time are required")
	}

	if !c.StartTime.Unwrap().Before(c.EndTime.Unwrap()) {
		return errors.New(errors.ErrCodeInvalidDateRange, "start_time must precede end_time")
	}

	if c.BaseTimeframe == "" {
		return errors.New(errors.ErrCodeInvalidConfiguration, "base_timeframe is required")
	}

	return nil
}

// GenerateSchema generates a JSON schema for the ReplayEngineV1Config.
func (c *ReplayEngineV1Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}

			if strings.Contains(t.String(), "types.Timeframe") {
				enum := make([]any, 0, len(types.AllTimeframes))
				for _, tf := range types.AllTimeframes {
					enum = append(enum, string(tf))
				}

				return &jsonschema.Schema{
					Type: "string",
					Enum: enum,
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "replay-engine-v1-config"
	schema.Description = "Configuration schema for ReplayEngineV1"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the
// ReplayEngineV1Config.
func (c *ReplayEngineV1Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
