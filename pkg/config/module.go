package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DEFAULT []byte

const MIN_SECRET_LENGTH = 16

func decode(data []byte, config *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err := decoder.Decode(config)
	if errors.Is(err, io.EOF) {
		// Empty file
		return nil
	}
	return err
}

func readFile(path string, config *Config) error {
	// Check if this is a valid file
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("does not exist")
	}

	extension := filepath.Ext(path)
	switch extension {
	// JSON is a subset of YAML
	case ".json", ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return decode(data, config)
	}

	return fmt.Errorf(
		"not in a valid format",
	)
}

func (c *Config) Validate() error {
	port := c.Server.Ingress.Web.Port
	if port < 0 || port > 65535 {
		return fmt.Errorf("server.ingress.web.port %d is out of range", port)
	}

	if c.Server.Ingress.CommandsPerSecond <= 0 {
		return fmt.Errorf("server.ingress.commandsPerSecond must be positive")
	}

	if c.Server.Ingress.Burst < 1 {
		return fmt.Errorf("server.ingress.burst must be at least 1")
	}

	secret := c.Server.Ingress.Secret
	if secret != "" && len(secret) < MIN_SECRET_LENGTH {
		return fmt.Errorf("server.ingress.secret must be at least %d characters", MIN_SECRET_LENGTH)
	}

	if c.Server.Ingress.TokenHours < 1 {
		return fmt.Errorf("server.ingress.tokenHours must be at least 1")
	}

	if c.Database.TimeoutSeconds < 1 {
		return fmt.Errorf("database.timeoutSeconds must be at least 1")
	}

	if c.Redis.TimeoutMillis < 1 {
		return fmt.Errorf("redis.timeoutMillis must be at least 1")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}

	if c.Game.TimeoutSeconds < 1 {
		return fmt.Errorf("game.timeoutSeconds must be at least 1")
	}

	if c.Reconciler.IntervalSeconds < 1 {
		return fmt.Errorf("reconciler.intervalSeconds must be at least 1")
	}

	janitor := c.Janitor
	for name, value := range map[string]int{
		"intervalMinutes":     janitor.IntervalMinutes,
		"endedHours":          janitor.EndedHours,
		"waitingEmptyHours":   janitor.WaitingEmptyHours,
		"waitingStalledHours": janitor.WaitingStalledHours,
		"playingStalledHours": janitor.PlayingStalledHours,
	} {
		if value < 1 {
			return fmt.Errorf("janitor.%s must be at least 1", name)
		}
	}

	return nil
}

// Process reads the provided configuration files in order on top of the
// default configuration. Later files override earlier ones key by key.
func Process(configPaths []string) (*Config, error) {
	config := Config{}

	err := decode(DEFAULT, &config)
	if err != nil {
		return nil, fmt.Errorf(
			"invalid default config file: %v",
			err,
		)
	}

	for _, path := range configPaths {
		err := readFile(path, &config)
		if err != nil {
			return nil, fmt.Errorf(
				"could not process config file %s: %v",
				path,
				err,
			)
		}

		// Check if the config file is valid
		err = config.Validate()
		if err != nil {
			return nil, fmt.Errorf(
				"config file %s is not valid: %v",
				path,
				err,
			)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
