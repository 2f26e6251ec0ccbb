package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
)

//go:embed etc/csemshell.yaml
var embeddedConfig []byte

// Config is the shell configuration. The embedded defaults reproduce the
// fixed values the shell has always used: the csemInsight sidecar, port 3354
// and SIGKILL.
type Config struct {
	Sidecar struct {
		Name         string        `json:",default=csemInsight"`
		Dir          string        `json:",optional"`
		Args         []string      `json:",optional"`
		HealthURL    string        `json:",optional"`
		ReadyTimeout time.Duration `json:",default=15s"`
	}
	Cleanup struct {
		Port   int    `json:",default=3354"`
		Signal string `json:",default=SIGKILL"`
		Mode   string `json:",default=auto"`
	}
	Window struct {
		Title  string `json:",default=CSEM Insight"`
		Width  int    `json:",default=1280"`
		Height int    `json:",default=860"`
		URL    string `json:",default=/"`
		// AssetDir serves a built frontend from disk when set
		AssetDir string `json:",optional"`
	}
	Log logx.LogConf
}

// LoadConfig reads the config file at path, or the embedded defaults when
// path is empty. Environment variables in the file are expanded first.
func LoadConfig(path string) (Config, error) {
	data := embeddedConfig
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		data = b
	}
	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes loads configuration from YAML bytes with environment
// variable expansion
func LoadConfigFromBytes(data []byte) (Config, error) {
	var c Config
	expanded := os.ExpandEnv(string(data))
	if err := conf.LoadFromYamlBytes([]byte(expanded), &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks the values the shell cannot run without
func (c Config) Validate() error {
	var errs []error
	if c.Sidecar.Name == "" {
		errs = append(errs, errors.New("Sidecar.Name is required"))
	}
	if c.Cleanup.Port <= 0 || c.Cleanup.Port > 65535 {
		errs = append(errs, fmt.Errorf("Cleanup.Port %d out of range", c.Cleanup.Port))
	}
	if _, err := ParseSignal(c.Cleanup.Signal); err != nil {
		errs = append(errs, fmt.Errorf("Cleanup.Signal: %w", err))
	}
	if _, err := ParseMode(c.Cleanup.Mode); err != nil {
		errs = append(errs, fmt.Errorf("Cleanup.Mode: %w", err))
	}
	return errors.Join(errs...)
}
