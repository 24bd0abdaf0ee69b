package application

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/answerdist/infrastructure/sinks"
)

// ConfigLoader parses and validates pipeline configuration from YAML
// sources, applying defaults before validation so that minimal
// configurations stay minimal.
type ConfigLoader struct {
	validate *validator.Validate
}

// NewConfigLoader creates a loader with the standard validation rules.
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{validate: validator.New()}
}

// LoadFile reads a pipeline configuration from the YAML file at path.
func (cl *ConfigLoader) LoadFile(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return cl.load(data)
}

// LoadReader reads a pipeline configuration from r.
func (cl *ConfigLoader) LoadReader(r io.Reader) (*PipelineConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return cl.load(data)
}

func (cl *ConfigLoader) load(data []byte) (*PipelineConfig, error) {
	var config PipelineConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	applyDefaults(&config)

	if err := cl.validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := validateSemantics(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyDefaults(config *PipelineConfig) {
	if config.Source.Glob == "" {
		config.Source.Glob = "*.log"
	}
	if config.Aggregator.ExcludedResponseTypes == nil {
		config.Aggregator.ExcludedResponseTypes = []string{"customresponse"}
	}
	defaults := sinks.DefaultTableConfig()
	if len(config.Table.Columns) == 0 {
		config.Table.Columns = defaults.Columns
	}
	if config.Table.Delimiter == "" {
		config.Table.Delimiter = defaults.Delimiter
	}
	if config.Table.FilenameSuffix == "" {
		config.Table.FilenameSuffix = defaults.FilenameSuffix
	}
}

// validateSemantics enforces the cross-field rules struct tags cannot
// express: each destination kind requires its own settings.
func validateSemantics(config *PipelineConfig) error {
	switch config.Output.Kind {
	case "local":
		if config.Output.Root == "" {
			return fmt.Errorf("output kind %q requires output.root", config.Output.Kind)
		}
	case "s3":
		if config.Output.S3 == nil {
			return fmt.Errorf("output kind %q requires output.s3 settings", config.Output.Kind)
		}
	}
	return nil
}
