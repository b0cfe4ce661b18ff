package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/eta/core/dataset"
	"github.com/kilianp07/eta/core/metrics"
	"github.com/kilianp07/eta/core/model"
	"github.com/kilianp07/eta/core/pipeline"
	"github.com/kilianp07/eta/core/predlog"
	"github.com/kilianp07/eta/core/regression"
	"github.com/kilianp07/eta/infra/mqtt"
)

type Config struct {
	Data          DataConfig     `json:"data"`
	Model         ModelConfig    `json:"model"`
	Features      FeaturesConfig `json:"features"`
	Server        ServerConfig   `json:"server"`
	MQTT          mqtt.Config    `json:"mqtt"`
	Metrics       metrics.Config `json:"metrics"`
	PredictionLog predlog.Config `json:"prediction_log"`
	Logging       LoggingConfig  `json:"logging"`
	Sentry        SentryConfig   `json:"sentry"`
}

// DataConfig locates the training dataset.
type DataConfig struct {
	Path string `json:"path"`
	// Delimiter is the single character separating fields.
	Delimiter         string `json:"delimiter"`
	DisableImputation bool   `json:"disable_imputation"`
}

// SetDefaults applies the dataset defaults.
func (c *DataConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "data/Food_Delivery_Times.csv"
	}
	if c.Delimiter == "" {
		c.Delimiter = ";"
	}
}

// Validate checks the delimiter.
func (c DataConfig) Validate() error {
	if utf8.RuneCountInString(c.Delimiter) != 1 {
		return fmt.Errorf("data.delimiter must be a single character, got %q", c.Delimiter)
	}
	return nil
}

// LoadOptions converts the section into dataset options.
func (c DataConfig) LoadOptions() dataset.LoadOptions {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return dataset.LoadOptions{Delimiter: r, DisableImputation: c.DisableImputation}
}

// ModelConfig controls training and the artifact location.
type ModelConfig struct {
	Path       string             `json:"path"`
	TestRatio  float64            `json:"test_ratio"`
	Seed       int64              `json:"seed"`
	Regression regression.Options `json:"regression"`
}

// SetDefaults applies the training defaults.
func (c *ModelConfig) SetDefaults() {
	d := pipeline.DefaultTrainOptions()
	if c.Path == "" {
		c.Path = pipeline.DefaultPath
	}
	if c.TestRatio == 0 {
		c.TestRatio = d.TestRatio
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	c.Regression.SetDefaults()
}

// Validate checks the split ratio and the regression options.
func (c ModelConfig) Validate() error {
	if c.TestRatio < 0 || c.TestRatio >= 1 {
		return fmt.Errorf("model.test_ratio must be in [0, 1), got %v", c.TestRatio)
	}
	return c.Regression.Validate()
}

// FeaturesConfig lists the accepted categorical levels and the numeric input
// ranges offered to clients.
type FeaturesConfig struct {
	Enumerations model.Enumerations `json:"enumerations"`
	Ranges       model.Ranges       `json:"ranges"`
	// AllowUnknownLevels accepts categorical levels outside Enumerations at
	// prediction time. They contribute nothing to the estimate.
	AllowUnknownLevels bool `json:"allow_unknown_levels"`
}

// SetDefaults fills empty enumerations and ranges.
func (c *FeaturesConfig) SetDefaults() {
	c.Enumerations.SetDefaults()
	d := model.DefaultRanges()
	if c.Ranges.DistanceKm == (model.Range{}) {
		c.Ranges.DistanceKm = d.DistanceKm
	}
	if c.Ranges.PreparationTimeMin == (model.Range{}) {
		c.Ranges.PreparationTimeMin = d.PreparationTimeMin
	}
	if c.Ranges.CourierExperienceYrs == (model.Range{}) {
		c.Ranges.CourierExperienceYrs = d.CourierExperienceYrs
	}
}

// Validate checks the ranges are well formed.
func (c FeaturesConfig) Validate() error {
	for name, r := range map[string]model.Range{
		"distance_km":            c.Ranges.DistanceKm,
		"preparation_time_min":   c.Ranges.PreparationTimeMin,
		"courier_experience_yrs": c.Ranges.CourierExperienceYrs,
	} {
		if r.Min < 0 || r.Max <= r.Min {
			return fmt.Errorf("features.ranges.%s: invalid bounds [%v, %v]", name, r.Min, r.Max)
		}
	}
	return nil
}

// PredictEnumerations returns the enumerations enforced on prediction
// inputs. It is empty when unknown levels are allowed.
func (c FeaturesConfig) PredictEnumerations() model.Enumerations {
	if c.AllowUnknownLevels {
		return model.Enumerations{}
	}
	return c.Enumerations
}

// Schema returns the pipeline schema built from the configured enumerations.
func (c FeaturesConfig) Schema() pipeline.Schema {
	return pipeline.DefaultSchema(c.Enumerations)
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr"`
	// APIToken protects the prediction log listing when set.
	APIToken string `json:"api_token"`
	// Dashboard enables the HTML chart page.
	Dashboard *bool `json:"dashboard"`
}

// SetDefaults applies the listen address.
func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Dashboard == nil {
		on := true
		c.Dashboard = &on
	}
}

// DashboardEnabled reports whether GET /dashboard is served.
func (c ServerConfig) DashboardEnabled() bool { return c.Dashboard == nil || *c.Dashboard }

// Default returns a configuration with every section defaulted.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (c *Config) setDefaults() {
	c.Data.SetDefaults()
	c.Model.SetDefaults()
	c.Features.SetDefaults()
	c.Server.SetDefaults()
	c.MQTT.SetDefaults()
	c.PredictionLog.SetDefaults()
	c.Logging.SetDefaults()
	c.Sentry.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"data", c.Data.Validate},
		{"model", c.Model.Validate},
		{"features", c.Features.Validate},
		{"mqtt", c.MQTT.Validate},
		{"prediction_log", c.PredictionLog.Validate},
		{"logging", c.Logging.Validate},
		{"metrics", c.Metrics.Validate},
		{"sentry", c.Sentry.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.name, err)
		}
	}
	return nil
}

// Load reads the configuration file at path. An empty path loads only the
// defaults and environment overrides. Environment variables prefixed with
// K_ override file values, with __ separating nested keys.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
