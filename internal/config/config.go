package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load загружает конфигурацию из TOML файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse разбирает конфигурацию из TOML, применяет значения по умолчанию и раскрывает переменные окружения
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	expandEnvVars(&cfg)

	return &cfg, nil
}

// Validate проверяет валидность конфигурации
func (c *Config) Validate() []error {
	var errors []error

	if !c.Discord.Enabled && !c.Telegram.Enabled {
		errors = append(errors, fmt.Errorf("at least one of discord.enabled or telegram.enabled must be true"))
	}

	if c.Discord.Enabled {
		if c.Discord.Token == "" {
			errors = append(errors, fmt.Errorf("discord.token is required when discord is enabled"))
		} else if err := validateDiscordToken(c.Discord.Token); err != nil {
			errors = append(errors, err)
		}
		if err := validatePrefix(c.Discord.CommandPrefix, "discord.command_prefix"); err != nil {
			errors = append(errors, err)
		}
	}

	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			errors = append(errors, fmt.Errorf("telegram.token is required when telegram is enabled"))
		} else if err := validateTelegramToken(c.Telegram.Token); err != nil {
			errors = append(errors, err)
		}
		if err := validatePrefix(c.Telegram.CommandPrefix, "telegram.command_prefix"); err != nil {
			errors = append(errors, err)
		}
	}

	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.AutoDelete.validate()...)

	if c.Workers.PoolSize < 1 {
		errors = append(errors, fmt.Errorf("workers.pool_size must be >= 1"))
	}
	if c.Workers.QueueSize < 1 {
		errors = append(errors, fmt.Errorf("workers.queue_size must be >= 1"))
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errors = append(errors, fmt.Errorf("metrics.listen is required when metrics are enabled"))
	}

	return errors
}

func (c *Config) validateLogging() []error {
	var errors []error

	if c.Logging.Level == "" {
		errors = append(errors, fmt.Errorf("logging.level is required"))
	} else {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[strings.ToLower(c.Logging.Level)] {
			errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
		}
	}

	if c.Logging.Format == "" {
		errors = append(errors, fmt.Errorf("logging.format is required"))
	} else {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[strings.ToLower(c.Logging.Format)] {
			errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
		}
	}

	if c.Logging.Output == "" {
		errors = append(errors, fmt.Errorf("logging.output is required"))
	}

	return errors
}

// expandEnvVars расширяет переменные окружения в конфигурации
func expandEnvVars(c *Config) {
	c.Discord.Token = expandEnv(c.Discord.Token)
	c.Telegram.Token = expandEnv(c.Telegram.Token)

	c.AutoDelete.RulesPath = expandHome(expandEnv(c.AutoDelete.RulesPath))
	c.Logging.Output = expandHome(expandEnv(c.Logging.Output))
}

// expandEnv расширяет переменную окружения формата ${VAR:default}
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		if val := os.Getenv(parts[0]); val != "" {
			return val
		}
		return parts[1]
	}

	return os.Getenv(content)
}

// expandHome расширяет ~ в пути
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
