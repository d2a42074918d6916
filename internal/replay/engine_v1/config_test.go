package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v2"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) TestUnmarshalYAML() {
	raw := `
cache_root: /tmp/replay-cache
cache_ttl: 168h
provider: binance
symbols:
  - EURUSD
  - BTCUSDT
mode: bars
base_timeframe: M1
timeframes:
  - M1
  - M5
start_time: 2024-01-02T00:00:00Z
end_time: 2024-01-05T00:00:00Z
warmup_bars: 120
workers: 2
venue:
  initial_balance: 25000
  leverage: 50
  margin_use_limit: 0.9
`

	var cfg ReplayEngineV1Config
	s.Require().NoError(yaml.Unmarshal([]byte(raw), &cfg))

	s.Equal("/tmp/replay-cache", cfg.CacheRoot)
	s.Equal(168*time.Hour, cfg.CacheTTL)
	s.Equal([]string{"EURUSD", "BTCUSDT"}, cfg.Symbols)
	s.Equal(types.TimeframeM1, cfg.BaseTimeframe)
	s.Equal([]types.Timeframe{types.TimeframeM1, types.TimeframeM5}, cfg.Timeframes)
	s.Equal(120, cfg.WarmupBars)
	s.Equal(2, cfg.Workers)
	s.Equal(25000.0, cfg.Venue.InitialBalance)

	s.Require().True(cfg.StartTime.IsSome())
	s.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), cfg.StartTime.Unwrap().UTC())

	s.Require().True(cfg.EndTime.IsSome())
	s.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), cfg.EndTime.Unwrap().UTC())

	s.NoError(cfg.Validate())
}

func (s *ConfigTestSuite) TestUnmarshalBadTTL() {
	var cfg ReplayEngineV1Config

	err := yaml.Unmarshal([]byte("cache_ttl: never"), &cfg)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (s *ConfigTestSuite) TestUnmarshalBadTimeframe() {
	var cfg ReplayEngineV1Config

	err := yaml.Unmarshal([]byte("base_timeframe: M7"), &cfg)
	s.Require().Error(err)
}

func (s *ConfigTestSuite) TestValidateRejectsInvertedRange() {
	cfg := ReplayEngineV1Config{
		CacheRoot:     "/tmp/replay-cache",
		Symbols:       []string{"EURUSD"},
		BaseTimeframe: types.TimeframeM1,
		StartTime:     optional.Some(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)),
		EndTime:       optional.Some(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
	}

	err := cfg.Validate()
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidDateRange))
}

func (s *ConfigTestSuite) TestValidateRequiresSymbols() {
	cfg := ReplayEngineV1Config{
		CacheRoot:     "/tmp/replay-cache",
		BaseTimeframe: types.TimeframeM1,
		StartTime:     optional.Some(time.Now()),
		EndTime:       optional.Some(time.Now().Add(time.Hour)),
	}

	err := cfg.Validate()
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (s *ConfigTestSuite) TestGenerateSchemaJSON() {
	cfg := ReplayEngineV1Config{}

	schema, err := cfg.GenerateSchemaJSON()
	s.Require().NoError(err)

	s.True(strings.Contains(schema, "cache_root"))
	s.True(strings.Contains(schema, "date-time"))
	s.True(strings.Contains(schema, "replay-engine-v1-config"))
}
