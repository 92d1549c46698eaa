package config

// applyDefaults применяет значения по умолчанию
func applyDefaults(c *Config) {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Discord.CommandPrefix == "" {
		c.Discord.CommandPrefix = "~"
	}
	if c.Discord.RequestTimeoutSeconds == 0 {
		c.Discord.RequestTimeoutSeconds = 30
	}

	if c.Telegram.CommandPrefix == "" {
		c.Telegram.CommandPrefix = "/"
	}
	if c.Telegram.PollTimeoutSeconds == 0 {
		c.Telegram.PollTimeoutSeconds = 30
	}

	ad := &c.AutoDelete
	if ad.RulesPath == "" {
		ad.RulesPath = "./autodelete.json"
	}
	if ad.SweepIntervalSeconds == 0 {
		ad.SweepIntervalSeconds = 15
	}
	if ad.BacklogCap == 0 {
		ad.BacklogCap = 1000
	}
	if ad.HistoryMin == 0 {
		ad.HistoryMin = 100
	}
	if ad.HistoryCeiling == 0 {
		ad.HistoryCeiling = 1000
	}
	if ad.DeleteDelayFloorMs == 0 {
		ad.DeleteDelayFloorMs = 250
	}
	if ad.DeleteDelayCeilingMs == 0 {
		ad.DeleteDelayCeilingMs = 30000
	}
	if ad.DelayDecayAfter == 0 {
		ad.DelayDecayAfter = 3
	}
	if ad.CooldownSeconds == 0 {
		ad.CooldownSeconds = 600
	}
	if ad.MaxAttempts == 0 {
		ad.MaxAttempts = 3
	}
	if ad.WatchdogMinutes == 0 {
		ad.WatchdogMinutes = 5
	}

	if c.Workers.PoolSize == 0 {
		c.Workers.PoolSize = 4
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = 256
	}

	if c.MessageBus.Capacity == 0 {
		c.MessageBus.Capacity = 1000
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "modbot"
	}
}

// DefaultConfig возвращает конфигурацию со значениями по умолчанию
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
