package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mchmarny/overunder/pkg/analyzer"
	"github.com/mchmarny/overunder/pkg/gate"
	"gopkg.in/yaml.v3"
)

const (
	FileName = "config.yaml"
	dirMode  = 0700
	fileMode = 0600

	serverPortDefault = 8080
	maxPort           = 65535
)

// Config represents app config object.
type Config struct {
	AccessKeys []string      `yaml:"access_keys"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	BatchLimit int           `yaml:"batch_limit"`
	BatchPace  time.Duration `yaml:"batch_pace"`
	LogLevel   string        `yaml:"log_level"`
	Server     Server        `yaml:"server"`
}

type Server struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the config written on first run.
func Default() *Config {
	return &Config{
		AccessKeys: append([]string(nil), gate.DefaultKeys...),
		SessionTTL: gate.SessionTTLDefault,
		BatchLimit: analyzer.BatchLimitDefault,
		LogLevel:   "info",
		Server: Server{
			Port:           serverPortDefault,
			AllowedOrigins: LocalOrigins(serverPortDefault),
		},
	}
}

// LocalOrigins are the browser origins of the local server on port.
func LocalOrigins(port int) []string {
	return []string{
		fmt.Sprintf("http://127.0.0.1:%d", port),
		fmt.Sprintf("http://localhost:%d", port),
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
	}
	if c.BatchLimit < 1 || c.BatchLimit > analyzer.BatchLimitDefault {
		return fmt.Errorf("batch_limit must be between 1 and %d, got %d", analyzer.BatchLimitDefault, c.BatchLimit)
	}
	if c.BatchPace < 0 {
		return fmt.Errorf("batch_pace must not be negative, got %s", c.BatchPace)
	}
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d, got %d", maxPort, c.Server.Port)
	}
	return nil
}

// Save writes c into dirPath.
func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(dirPath, FileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
// Fields missing from the file keep their default values.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("creating dir %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default()); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("unmarshaling config file %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

// GetOrCreateHomeDir returns the app directory under the user home.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("getting user home dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("creating dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
