package main

import (
	"flag"
	"os"
	"path"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

type configs struct {
	Repository string `yaml:"repository"`
	LogLevel   string `yaml:"log_level"`
	Store      struct {
		Kind string `yaml:"kind"`
		Path string `yaml:"path"`
	} `yaml:"store"`
	AI struct {
		Enabled bool   `yaml:"enabled"`
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
	} `yaml:"ai"`
}

// readConfig loads config.yaml from dir. A missing file is an empty config.
func readConfig(dir string) (*configs, error) {
	c := &configs{}
	configPath := path.Join(dir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %v", configPath)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "unable to unmarshal yaml config at %v", configPath)
	}
	return c, nil
}

// flagValues maps flag names to the config values that back them.
func (c *configs) flagValues() map[string]string {
	vals := map[string]string{
		"repo":      c.Repository,
		"log-level": c.LogLevel,
		"store":     c.Store.Kind,
		"path":      c.Store.Path,
		"model":     c.AI.Model,
	}
	if c.AI.Enabled {
		vals["ai"] = strconv.FormatBool(c.AI.Enabled)
	}
	return vals
}

// applyConfig fills every flag of fs that was not set on the command line and
// has a non-empty config value.
func applyConfig(fs *flag.FlagSet, c *configs) error {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for name, v := range c.flagValues() {
		if v == "" || set[name] || fs.Lookup(name) == nil {
			continue
		}
		if err := fs.Set(name, v); err != nil {
			return errors.Wrapf(err, "config value for -%s", name)
		}
	}
	return nil
}

// apiKey prefers the environment (and .env) over config.yaml.
func apiKey(c *configs) string {
	if k := os.Getenv("ANTHROPIC_API_KEY"); k != "" {
		return k
	}
	return c.AI.APIKey
}

// loadDotEnv reads .env from the working directory if there is one. Variables
// already in the environment win.
func loadDotEnv(file string) error {
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(godotenv.Load(file), "load %s", file)
}
