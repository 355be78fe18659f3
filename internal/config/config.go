package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CPYSELECT_ANALYSIS_RECORD_NAME.
const EnvPrefix = "CPYSELECT"

// Config holds all application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Output   OutputConfig   `mapstructure:"output"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// AnalysisConfig controls record selection.
type AnalysisConfig struct {
	// RecordName is the default explicit-name hint. Per-run flags override it.
	RecordName string `mapstructure:"record_name"`
	// Concurrency bounds parallel analyses in batch mode; 0 means one per CPU.
	Concurrency int `mapstructure:"concurrency"`
	// IncludeDirs are searched for COPY members. Setting any enables expansion.
	IncludeDirs []string `mapstructure:"include_dirs"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
}

var (
	validLevels  = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFmt  = map[string]bool{"": true, "text": true, "json": true}
	validOutputs = map[string]bool{"": true, "text": true, "json": true, "yaml": true}
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{ServiceName: "cpyselect", Environment: "development", SampleRate: 1.0},
		Output:  OutputConfig{Format: "text"},
	}
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if !validLevels[strings.ToLower(c.Log.Level)] {
		warnings = append(warnings, fmt.Sprintf("log level '%s' is not recognized, using info", c.Log.Level))
	}
	if !validLogFmt[strings.ToLower(c.Log.Format)] {
		warnings = append(warnings, fmt.Sprintf("log format '%s' is not recognized, using text", c.Log.Format))
	}
	if !validOutputs[strings.ToLower(c.Output.Format)] {
		warnings = append(warnings, fmt.Sprintf("output format '%s' is not one of text, json, yaml", c.Output.Format))
	}
	if c.Analysis.Concurrency < 0 {
		warnings = append(warnings, fmt.Sprintf("analysis concurrency %d is negative", c.Analysis.Concurrency))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Load reads configuration from file and environment. Values missing from
// the file keep their Default() value.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("analysis.record_name", d.Analysis.RecordName)
	v.SetDefault("analysis.concurrency", d.Analysis.Concurrency)
	v.SetDefault("analysis.include_dirs", d.Analysis.IncludeDirs)
	v.SetDefault("output.format", d.Output.Format)
}
