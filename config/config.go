package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"flagftp/ftpfs"
)

const (
	TargetLocal = "local"
	TargetSFTP  = "sftp"
)

type Config struct {
	Credentials Credentials `toml:"credentials"`
	Transport   Transport   `toml:"transport"`
	Tasks       []Task      `toml:"tasks"`
}

// Credentials are used for every FTP request. An empty user logs in
// anonymously.
type Credentials struct {
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type Transport struct {
	TimeoutSeconds int  `toml:"timeout_seconds"`
	DisableEPSV    bool `toml:"disable_epsv"`
}

// Timeout returns the dial timeout as a duration.
func (t Transport) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// Task mirrors the files below an FTP directory into a local or SFTP target.
type Task struct {
	Name            string `toml:"name"`
	Cron            string `toml:"cron"`
	Source          string `toml:"source"` // ftp:// directory URI
	SourceRegex     string `toml:"source_regex"`
	SourceNewerDays int    `toml:"source_newer_days"` // only files modified within this many days
	TargetType      string `toml:"target_type"`       // local, sftp
	TargetPath      string `toml:"target_path"`
	RetentionDays   int    `toml:"retention_days"` // remove mirrored files older than this
	TargetAuth      *Auth  `toml:"target_auth,omitempty"`
}

type Auth struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	User       string `toml:"user"`
	Password   string `toml:"password"`
	KnownHosts string `toml:"known_hosts"`
}

const (
	defaultTimeoutSeconds = 30
	defaultSourceRegex    = ".*"
	defaultSFTPPort       = 22
)

// LoadConfig reads a TOML file, applies defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WithDefaults returns a copy of c with unset values filled in.
func (c Config) WithDefaults() Config {
	if c.Transport.TimeoutSeconds <= 0 {
		c.Transport.TimeoutSeconds = defaultTimeoutSeconds
	}
	tasks := make([]Task, len(c.Tasks))
	for i, task := range c.Tasks {
		if task.SourceRegex == "" {
			task.SourceRegex = defaultSourceRegex
		}
		if task.TargetType == "" {
			task.TargetType = TargetLocal
		}
		if task.TargetAuth != nil && task.TargetAuth.Port == 0 {
			auth := *task.TargetAuth
			auth.Port = defaultSFTPPort
			task.TargetAuth = &auth
		}
		tasks[i] = task
	}
	c.Tasks = tasks
	return c
}

// Validate reports every problem found in the configuration.
func (c Config) Validate() error {
	var result *multierror.Error
	seen := make(map[string]bool, len(c.Tasks))
	for i, task := range c.Tasks {
		if err := task.Validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("task %d: %w", i, err))
		}
		if task.Name != "" && seen[task.Name] {
			result = multierror.Append(result, fmt.Errorf("task %d: duplicate name %q", i, task.Name))
		}
		seen[task.Name] = true
	}
	return result.ErrorOrNil()
}

func (t Task) Validate() error {
	if t.Name == "" {
		return errors.New("missing name")
	}
	if t.Cron == "" {
		return fmt.Errorf("%s: missing cron schedule", t.Name)
	}
	if _, err := cron.ParseStandard(t.Cron); err != nil {
		return fmt.Errorf("%s: invalid cron schedule: %w", t.Name, err)
	}
	if _, err := ftpfs.NormalizeString(t.Source); err != nil {
		return fmt.Errorf("%s: source: %w", t.Name, err)
	}
	if _, err := regexp.Compile(t.SourceRegex); err != nil {
		return fmt.Errorf("%s: invalid source_regex: %w", t.Name, err)
	}
	if t.SourceNewerDays < 0 || t.RetentionDays < 0 {
		return fmt.Errorf("%s: day counts must not be negative", t.Name)
	}
	if t.TargetPath == "" {
		return fmt.Errorf("%s: missing target_path", t.Name)
	}
	switch t.TargetType {
	case TargetLocal:
	case TargetSFTP:
		if t.TargetAuth == nil || t.TargetAuth.Host == "" {
			return fmt.Errorf("%s: target_auth with a host is required for sftp", t.Name)
		}
	default:
		return fmt.Errorf("%s: unknown target_type %q", t.Name, t.TargetType)
	}
	return nil
}
