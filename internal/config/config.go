// Package config loads application configuration and initialises logging.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log          LogConfig        `yaml:"log" mapstructure:"log"`
	Pipeline     PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Criteria     CriteriaConfig   `yaml:"criteria" mapstructure:"criteria"`
	ProfilesPath string           `yaml:"profiles_path" mapstructure:"profiles_path"`
	Zones        ZonesConfig      `yaml:"zones" mapstructure:"zones"`
	Store        StoreConfig      `yaml:"store" mapstructure:"store"`
	Server       ServerConfig     `yaml:"server" mapstructure:"server"`
	Export       ExportConfig     `yaml:"export" mapstructure:"export"`
	Monitoring   MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PipelineConfig configures how runs are executed.
type PipelineConfig struct {
	// Workers bounds row-band parallelism per stage; 0 means GOMAXPROCS.
	Workers int `yaml:"workers" mapstructure:"workers"`
	// Concurrency bounds how many species profiles run at once.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// AreaModel is auto, geodesic, or planar.
	AreaModel   string  `yaml:"area_model" mapstructure:"area_model"`
	PlanarUnitM float64 `yaml:"planar_unit_m" mapstructure:"planar_unit_m"`
	// CRS is assigned to grids read from files that carry none.
	CRS string `yaml:"crs" mapstructure:"crs"`
	// MaxGridCells rejects input grids whose header declares more cells.
	MaxGridCells int `yaml:"max_grid_cells" mapstructure:"max_grid_cells"`
}

// CriteriaConfig holds the default thresholds for a single-species run.
type CriteriaConfig struct {
	SpeciesLabel string  `yaml:"species_label" mapstructure:"species_label"`
	MinTemp      float64 `yaml:"min_temp" mapstructure:"min_temp"`
	MaxTemp      float64 `yaml:"max_temp" mapstructure:"max_temp"`
	MinDepth     float64 `yaml:"min_depth" mapstructure:"min_depth"`
	MaxDepth     float64 `yaml:"max_depth" mapstructure:"max_depth"`
}

// ZonesConfig names the shapefile attributes zones are read from.
type ZonesConfig struct {
	IDField   string `yaml:"id_field" mapstructure:"id_field"`
	AreaField string `yaml:"area_field" mapstructure:"area_field"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// ExportConfig configures result table output.
type ExportConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures run health alerting in serve mode.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ZonesSkippedThreshold float64 `yaml:"zones_skipped_threshold" mapstructure:"zones_skipped_threshold"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SUITABILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.workers", 0)
	v.SetDefault("pipeline.concurrency", 2)
	v.SetDefault("pipeline.area_model", "auto")
	v.SetDefault("pipeline.planar_unit_m", 1.0)
	v.SetDefault("pipeline.crs", "EPSG:4326")
	v.SetDefault("pipeline.max_grid_cells", 1<<28)
	v.SetDefault("criteria.species_label", "default")
	v.SetDefault("criteria.min_temp", 0.0)
	v.SetDefault("criteria.max_temp", 0.0)
	v.SetDefault("criteria.min_depth", 0.0)
	v.SetDefault("criteria.max_depth", 0.0)
	v.SetDefault("profiles_path", "profiles.yaml")
	v.SetDefault("zones.id_field", "ZONE_ID")
	v.SetDefault("zones.area_field", "AREA_KM2")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "suitability.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("export.format", "csv")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.zones_skipped_threshold", 0.10)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Known modes are
// run, batch, and serve.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		add("log.format must be json or console, got %q", c.Log.Format)
	}
	switch c.Pipeline.AreaModel {
	case "auto", "geodesic", "planar":
	default:
		add("pipeline.area_model must be auto, geodesic, or planar, got %q", c.Pipeline.AreaModel)
	}
	if c.Pipeline.Workers < 0 {
		add("pipeline.workers must be >= 0")
	}
	if c.Pipeline.MaxGridCells < 0 {
		add("pipeline.max_grid_cells must be >= 0")
	}
	if c.Pipeline.AreaModel == "planar" && c.Pipeline.PlanarUnitM <= 0 {
		add("pipeline.planar_unit_m must be > 0")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		add("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}

	switch mode {
	case "run":
		if c.Criteria.MinTemp > c.Criteria.MaxTemp {
			add("criteria.min_temp %g exceeds criteria.max_temp %g", c.Criteria.MinTemp, c.Criteria.MaxTemp)
		}
		if c.Criteria.MinDepth > c.Criteria.MaxDepth {
			add("criteria.min_depth %g exceeds criteria.max_depth %g", c.Criteria.MinDepth, c.Criteria.MaxDepth)
		}
		c.validateExport(add)
	case "batch":
		if c.ProfilesPath == "" {
			add("profiles_path is required")
		}
		if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 32 {
			add("pipeline.concurrency must be between 1 and 32")
		}
		c.validateExport(add)
	case "serve":
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
		for name, v := range map[string]float64{
			"monitoring.failure_rate_threshold":  c.Monitoring.FailureRateThreshold,
			"monitoring.zones_skipped_threshold": c.Monitoring.ZonesSkippedThreshold,
		} {
			if v < 0 || v > 1 {
				add("%s must be between 0 and 1", name)
			}
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateExport(add func(string, ...any)) {
	switch c.Export.Format {
	case "csv", "xlsx", "json":
	default:
		add("export.format must be csv, xlsx, or json, got %q", c.Export.Format)
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
