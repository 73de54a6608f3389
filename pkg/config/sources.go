package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Source loads configuration from one origin. Higher-priority sources
// override lower ones.
type Source interface {
	// Load merges the source's settings into config
	Load(config *Config, paths []string) error

	// Name returns the name of the source
	Name() string

	// Priority returns the priority of the source (higher overrides lower)
	Priority() int
}

// FileSource loads configuration from YAML files.
type FileSource struct {
	priority int
}

// NewFileSource creates a file source with the default priority.
func NewFileSource() *FileSource {
	return &FileSource{priority: 100}
}

// Name returns the name of the file source.
func (fs *FileSource) Name() string {
	return "file"
}

// Priority returns the priority of the file source.
func (fs *FileSource) Priority() int {
	return fs.priority
}

// Load merges every existing file in paths into config, later files winning.
func (fs *FileSource) Load(config *Config, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	return nil
}

// EnvSource overrides selected settings from EVO_-prefixed environment
// variables.
type EnvSource struct {
	priority int
}

// NewEnvSource creates an environment source that overrides file settings.
func NewEnvSource() *EnvSource {
	return &EnvSource{priority: 200}
}

// Name returns the name of the environment source.
func (es *EnvSource) Name() string {
	return "env"
}

// Priority returns the priority of the environment source.
func (es *EnvSource) Priority() int {
	return es.priority
}

// Load applies environment overrides. Unset variables leave the current
// values untouched.
func (es *EnvSource) Load(config *Config, _ []string) error {
	if v, ok := os.LookupEnv("EVO_LOG_LEVEL"); ok {
		config.Logging.Level = v
	}
	if v, ok := os.LookupEnv("EVO_LOG_FILE"); ok {
		config.Logging.File = v
	}
	if v, ok := os.LookupEnv("EVO_ARCHIVE_PATH"); ok {
		config.Archive.Path = v
		config.Archive.Enabled = true
	}
	if v, ok := os.LookupEnv("EVO_SEED"); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid EVO_SEED %q: %w", v, err)
		}
		config.Evolution.Seed = seed
	}
	if v, ok := os.LookupEnv("EVO_MAX_POPULATION"); ok {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid EVO_MAX_POPULATION %q: %w", v, err)
		}
		config.Evolution.Population.MaxSize = size
	}
	return nil
}

// Load builds the configuration from defaults, then the given YAML paths,
// then environment overrides, and validates the result.
func Load(paths ...string) (*Config, error) {
	config := DefaultConfig()

	sources := []Source{NewFileSource(), NewEnvSource()}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Priority() < sources[j].Priority()
	})

	for _, src := range sources {
		if err := src.Load(config, paths); err != nil {
			return nil, fmt.Errorf("config source %s: %w", src.Name(), err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
