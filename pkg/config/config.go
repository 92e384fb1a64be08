package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ModelCapability tags what a configured model endpoint is good for. Session
// constructors pick a profile by capability instead of hardcoding a name, so
// that e.g. tool-call resolution can run on a cheaper model than the main
// conversation.
type ModelCapability string

const (
	CapabilityChat        ModelCapability = "chat"
	CapabilityToolUse     ModelCapability = "tool-use"
	CapabilityLongContext ModelCapability = "long-context"
	CapabilityCheap       ModelCapability = "cheap"
)

var ErrProfileNotFound = errors.New("api profile not found")

// APIProfile is one named model endpoint: which model to request, where, and
// with which credentials.
type APIProfile struct {
	Name         string            `yaml:"name" mapstructure:"name"`
	Model        string            `yaml:"model" mapstructure:"model"`
	BaseURL      string            `yaml:"base_url" mapstructure:"base_url"`
	APIKey       string            `yaml:"api_key" mapstructure:"api_key"`
	Capabilities []ModelCapability `yaml:"capabilities" mapstructure:"capabilities"`
}

type Settings struct {
	Profiles []APIProfile `yaml:"profiles" mapstructure:"profiles"`
}

// Load reads settings from the given yaml file. Environment variables with
// the RHINE_ prefix override file values, and ${VAR} references inside api
// keys are expanded so that credentials can stay out of the file.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RHINE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal settings")
	}

	for i := range settings.Profiles {
		settings.Profiles[i].APIKey = os.ExpandEnv(settings.Profiles[i].APIKey)
	}

	log.Debug().
		Str("path", path).
		Int("profiles", len(settings.Profiles)).
		Msg("loaded settings")

	return settings, nil
}

// Save writes the settings to a yaml file. Expanded api keys are written
// as-is, so saving a loaded config bakes in the credentials; save templates,
// not loaded settings, when the file is meant to be shared.
func (s *Settings) Save(path string) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "failed to marshal settings")
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}
	return nil
}

// ProfileByName returns the profile with the given name.
func (s *Settings) ProfileByName(name string) (*APIProfile, error) {
	for i := range s.Profiles {
		if s.Profiles[i].Name == name {
			return &s.Profiles[i], nil
		}
	}
	return nil, errors.Wrapf(ErrProfileNotFound, "name %s", name)
}

// ProfileByCapability returns the first profile carrying the given
// capability, in file order.
func (s *Settings) ProfileByCapability(capability ModelCapability) (*APIProfile, error) {
	for i := range s.Profiles {
		for _, c := range s.Profiles[i].Capabilities {
			if c == capability {
				return &s.Profiles[i], nil
			}
		}
	}
	return nil, errors.Wrapf(ErrProfileNotFound, "capability %s", capability)
}
