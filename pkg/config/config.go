// Package config loads station connection settings from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Station describes how to reach one console: either a local serial device
// or a hostname+port serial bridge.
type Station struct {
	Name               string `yaml:"name"`
	SerialDevice       string `yaml:"serialdevice,omitempty"`
	Baud               int    `yaml:"baud,omitempty"`
	Hostname           string `yaml:"hostname,omitempty"`
	Port               string `yaml:"port,omitempty"`
	ReadTimeoutSeconds int    `yaml:"read-timeout-seconds,omitempty"`
}

// Config is the top-level configuration document.
type Config struct {
	Stations []Station `yaml:"stations"`
}

// Load reads and validates a YAML configuration file.
func Load(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", filename, err)
	}

	for _, s := range cfg.Stations {
		if s.Name == "" {
			return nil, fmt.Errorf("station without a name in %s", filename)
		}
		if s.SerialDevice == "" && (s.Hostname == "" || s.Port == "") {
			return nil, fmt.Errorf("station [%s] must define either a serial device or hostname+port", s.Name)
		}
	}
	return &cfg, nil
}

// Station returns the named station, or the only station when name is
// empty and exactly one is configured.
func (c *Config) Station(name string) (*Station, error) {
	if name == "" {
		if len(c.Stations) == 1 {
			return &c.Stations[0], nil
		}
		return nil, fmt.Errorf("multiple stations configured, pick one by name")
	}
	for i := range c.Stations {
		if c.Stations[i].Name == name {
			return &c.Stations[i], nil
		}
	}
	return nil, fmt.Errorf("no station named %q", name)
}
