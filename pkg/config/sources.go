package config

import (
	"fmt"
	"os"
	"strings"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Source is one layer in the configuration chain. Sources with lower
// priority load first; higher-priority sources override their values.
type Source interface {
	Name() string
	Priority() int
	Load(k *koanf.Koanf) error
}

// Source priorities, lowest loads first.
const (
	priorityDefaults = 0
	priorityFile     = 10
	priorityEnv      = 20
	priorityFlags    = 30
)

// envPrefix is the prefix for environment overrides. A double underscore
// separates sections so that keys containing underscores stay addressable,
// e.g. HOSTGUARD_FILTER__MIN_SEVERITY -> filter.min_severity.
const envPrefix = "HOSTGUARD_"

// DefaultSources builds the standard chain: defaults, optional YAML config
// file, environment variables, command-line flags. A nil flag set and an
// empty file path each simply drop that layer.
func DefaultSources(configFilePath string, flags *pflag.FlagSet) []Source {
	sources := []Source{defaultsSource{}}
	if configFilePath != "" {
		sources = append(sources, fileSource{path: configFilePath})
	}
	sources = append(sources, envSource{})
	if flags != nil {
		sources = append(sources, flagSource{flags: flags})
	}
	return sources
}

type defaultsSource struct{}

func (defaultsSource) Name() string  { return "defaults" }
func (defaultsSource) Priority() int { return priorityDefaults }

func (defaultsSource) Load(k *koanf.Koanf) error {
	return k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil)
}

type fileSource struct {
	path string
}

func (s fileSource) Name() string  { return fmt.Sprintf("file %s", s.path) }
func (s fileSource) Priority() int { return priorityFile }

func (s fileSource) Load(k *koanf.Koanf) error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("config file %s: %w", s.path, err)
	}
	return k.Load(file.Provider(s.path), kyaml.Parser())
}

type envSource struct{}

func (envSource) Name() string  { return "environment" }
func (envSource) Priority() int { return priorityEnv }

func (envSource) Load(k *koanf.Koanf) error {
	return k.Load(env.Provider(envPrefix, ".", func(key string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "__", ".")
	}), nil)
}

type flagSource struct {
	flags *pflag.FlagSet
}

func (flagSource) Name() string  { return "flags" }
func (flagSource) Priority() int { return priorityFlags }

func (s flagSource) Load(k *koanf.Koanf) error {
	// Only flags the user actually changed override lower layers.
	return k.Load(posflag.ProviderWithFlag(s.flags, ".", k, func(f *pflag.Flag) (string, any) {
		if !f.Changed {
			return "", nil
		}
		return f.Name, posflag.FlagVal(s.flags, f)
	}), nil)
}
