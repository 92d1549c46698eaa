// Package config provides configuration loading and validation for modbot.
// It reads a TOML file, expands environment variables, applies defaults and
// validates the result.
//
// Configuration structure:
//   - [logging]: Logging level, format, and output
//   - [discord]: Discord connector (token, admin users, command prefix)
//   - [telegram]: Telegram connector (token, admin users, command prefix)
//   - [autodelete]: Retention pipeline tuning (sweep interval, backlog cap, delays)
//   - [workers]: Worker pool running sweeps and bootstraps
//   - [message_bus]: Message bus capacity settings
//   - [metrics]: Prometheus endpoint
//
// Environment variables:
// Tokens and paths can reference environment variables using ${VAR} or
// ${VAR:default} syntax. For example: token = "${DISCORD_TOKEN}"
package config

import "time"

// Config represents the main application configuration.
type Config struct {
	Logging    LoggingConfig    `toml:"logging"`
	Discord    DiscordConfig    `toml:"discord"`
	Telegram   TelegramConfig   `toml:"telegram"`
	AutoDelete AutoDeleteConfig `toml:"autodelete"`
	Workers    WorkersConfig    `toml:"workers"`
	MessageBus MessageBusConfig `toml:"message_bus"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// LoggingConfig представляет конфигурацию логирования
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// DiscordConfig представляет конфигурацию Discord коннектора
type DiscordConfig struct {
	Enabled               bool     `toml:"enabled"`
	Token                 string   `toml:"token"`
	AdminUsers            []string `toml:"admin_users"`
	CommandPrefix         string   `toml:"command_prefix"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
}

// TelegramConfig представляет конфигурацию Telegram коннектора
type TelegramConfig struct {
	Enabled            bool     `toml:"enabled"`
	Token              string   `toml:"token"`
	AdminUsers         []string `toml:"admin_users"`
	CommandPrefix      string   `toml:"command_prefix"`
	PollTimeoutSeconds int      `toml:"poll_timeout_seconds"`
}

// AutoDeleteConfig представляет настройки конвейера автоудаления
type AutoDeleteConfig struct {
	RulesPath            string `toml:"rules_path"`
	SweepIntervalSeconds int    `toml:"sweep_interval_seconds"`
	BacklogCap           int    `toml:"backlog_cap"`
	HistoryMin           int    `toml:"history_min"`
	HistoryCeiling       int    `toml:"history_ceiling"`
	DeleteDelayFloorMs   int    `toml:"delete_delay_floor_ms"`
	DeleteDelayCeilingMs int    `toml:"delete_delay_ceiling_ms"`
	DelayDecayAfter      int    `toml:"delay_decay_after"`
	CooldownSeconds      int    `toml:"cooldown_seconds"`
	MaxAttempts          int    `toml:"max_attempts"`
	WatchdogMinutes      int    `toml:"watchdog_minutes"`
}

// SweepInterval возвращает период между проходами sweeper
func (c AutoDeleteConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// DelayFloor возвращает минимальную паузу между одиночными удалениями
func (c AutoDeleteConfig) DelayFloor() time.Duration {
	return time.Duration(c.DeleteDelayFloorMs) * time.Millisecond
}

// DelayCeiling возвращает максимальную паузу между одиночными удалениями
func (c AutoDeleteConfig) DelayCeiling() time.Duration {
	return time.Duration(c.DeleteDelayCeilingMs) * time.Millisecond
}

// Cooldown возвращает время, на которое канал откладывается после rate limit
func (c AutoDeleteConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// WorkersConfig представляет конфигурацию worker pool
type WorkersConfig struct {
	PoolSize  int `toml:"pool_size"`
	QueueSize int `toml:"queue_size"`
}

// MessageBusConfig представляет конфигурацию message bus
type MessageBusConfig struct {
	Capacity int `toml:"capacity"`
}

// MetricsConfig представляет конфигурацию Prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Listen    string `toml:"listen"`
	Namespace string `toml:"namespace"`
}
