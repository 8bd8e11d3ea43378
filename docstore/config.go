package docstore

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"github.com/jrife/roost/storage/kv"
)

// Config is the file form of an engine configuration
type Config struct {
	Plugin            string                 `yaml:"plugin"`
	PluginOptions     map[string]interface{} `yaml:"plugin_options"`
	RevsLimit         int                    `yaml:"revs_limit"`
	CompressibleTypes []string               `yaml:"compressible_types"`
	LogLevel          string                 `yaml:"log_level"`
}

// ParseConfig parses a YAML configuration and fills in defaults
func ParseConfig(data []byte) (Config, error) {
	var config Config

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("could not parse config: %s", err)
	}

	if config.Plugin == "" {
		config.Plugin = DefaultPlugin
	}

	if config.RevsLimit == 0 {
		config.RevsLimit = DefaultRevsLimit
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	return config, nil
}

// LoadConfig reads and parses a YAML configuration file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)

	if err != nil {
		return Config{}, fmt.Errorf("could not read config: %s", err)
	}

	return ParseConfig(data)
}

// DatabaseOptions returns the options databases
// should be opened with
func (config Config) DatabaseOptions() DatabaseOptions {
	return DatabaseOptions{RevsLimit: config.RevsLimit}
}

// Logger builds a JSON logger writing to stderr at the configured level
func (config Config) Logger() (*zap.Logger, error) {
	atom := zap.NewAtomicLevel()

	if config.LogLevel != "" {
		if err := atom.UnmarshalText([]byte(config.LogLevel)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %s", config.LogLevel, err)
		}
	}

	return zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.Lock(os.Stderr),
		atom,
	)), nil
}

// NewEngineFromConfig creates an engine from a configuration.
// Metrics are registered with registerer unless it is nil.
func NewEngineFromConfig(config Config, registerer prometheus.Registerer) (Engine, error) {
	logger, err := config.Logger()

	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(registerer)

	if err != nil {
		return nil, fmt.Errorf("could not register metrics: %s", err)
	}

	return NewEngine(EngineConfig{
		Logger:            logger,
		Plugin:            config.Plugin,
		PluginOptions:     kv.PluginOptions(config.PluginOptions),
		Metrics:           metrics,
		CompressibleTypes: config.CompressibleTypes,
	})
}
