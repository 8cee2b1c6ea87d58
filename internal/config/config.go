// Package config loads the application configuration from a YAML file with
// ${VAR} environment substitution, so secrets stay out of the file itself.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fieldsync/internal/remote"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "config.yaml"

// Duration is a time.Duration that unmarshals from YAML strings like "5m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full application configuration.
type Config struct {
	Queue struct {
		Path string `yaml:"path"`
	} `yaml:"queue"`

	Database remote.ConnConfig    `yaml:"database"`
	Storage  remote.StorageConfig `yaml:"storage"`

	ZoneService struct {
		URL string `yaml:"url"`
	} `yaml:"zone_service"`

	Sync struct {
		Interval Duration `yaml:"interval"`
	} `yaml:"sync"`
}

// SyncInterval returns the configured sync cadence as a time.Duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.Interval)
}

// placeholderPattern matches ${VAR} environment placeholders.
var placeholderPattern = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}`)

// Load reads and parses the configuration file at path. Every ${VAR}
// placeholder in the file is replaced with the value of the VAR environment
// variable before parsing. A placeholder whose variable is unset is an error,
// not a literal value - a missing secret must never silently become the
// string "${VAR}".
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	content := string(data)
	for _, env := range os.Environ() {
		pair := strings.SplitN(env, "=", 2)
		if len(pair) != 2 {
			continue
		}
		placeholder := "${" + pair[0] + "}"
		content = strings.ReplaceAll(content, placeholder, pair[1])
	}

	if leftover := placeholderPattern.FindAllString(content, -1); len(leftover) > 0 {
		return nil, fmt.Errorf("config references unset environment variables: %s",
			strings.Join(leftover, ", "))
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Queue.Path == "" {
		c.Queue.Path = "fieldsync.db"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "require"
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = Duration(5 * time.Minute)
	}
}

func (c *Config) validate() error {
	var missing []string
	if c.Database.Host == "" {
		missing = append(missing, "database.host")
	}
	if c.Database.User == "" {
		missing = append(missing, "database.user")
	}
	if c.Database.DBName == "" {
		missing = append(missing, "database.dbname")
	}
	if c.Storage.Endpoint == "" {
		missing = append(missing, "storage.endpoint")
	}
	if c.ZoneService.URL == "" {
		missing = append(missing, "zone_service.url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
