package config

import (
	"fmt"
	"strings"
	"unicode"
)

func (c AutoDeleteConfig) validate() []error {
	var errors []error

	if c.RulesPath == "" {
		errors = append(errors, fmt.Errorf("autodelete.rules_path is required"))
	} else if strings.Contains(c.RulesPath, "..") {
		errors = append(errors, fmt.Errorf("autodelete.rules_path contains potentially dangerous path traversal sequence"))
	}

	if c.SweepIntervalSeconds < 1 {
		errors = append(errors, fmt.Errorf("autodelete.sweep_interval_seconds must be >= 1"))
	}
	if c.BacklogCap < 1 {
		errors = append(errors, fmt.Errorf("autodelete.backlog_cap must be >= 1"))
	}
	if c.HistoryMin < 1 || c.HistoryCeiling < c.HistoryMin {
		errors = append(errors, fmt.Errorf("autodelete.history_min must be >= 1 and <= history_ceiling (got %d, %d)", c.HistoryMin, c.HistoryCeiling))
	}
	if c.DeleteDelayFloorMs < 1 {
		errors = append(errors, fmt.Errorf("autodelete.delete_delay_floor_ms must be >= 1"))
	}
	if c.DeleteDelayCeilingMs < c.DeleteDelayFloorMs {
		errors = append(errors, fmt.Errorf("autodelete.delete_delay_ceiling_ms must be >= delete_delay_floor_ms (got %d < %d)", c.DeleteDelayCeilingMs, c.DeleteDelayFloorMs))
	}
	if c.DelayDecayAfter < 1 {
		errors = append(errors, fmt.Errorf("autodelete.delay_decay_after must be >= 1"))
	}
	if c.CooldownSeconds < 0 {
		errors = append(errors, fmt.Errorf("autodelete.cooldown_seconds must be >= 0"))
	}
	if c.MaxAttempts < 1 {
		errors = append(errors, fmt.Errorf("autodelete.max_attempts must be >= 1"))
	}

	return errors
}

func validatePrefix(prefix, fieldName string) error {
	if prefix == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	for _, r := range prefix {
		if unicode.IsSpace(r) {
			return fmt.Errorf("%s cannot contain whitespace", fieldName)
		}
	}
	return nil
}

// validateDiscordToken проверяет формат токена бота: три части, разделённые точками
func validateDiscordToken(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return formatValidationError("discord.token", "invalid format (expected three dot-separated parts)", token)
	}
	for _, p := range parts {
		if p == "" {
			return formatValidationError("discord.token", "contains an empty part", token)
		}
	}
	return nil
}

func validateTelegramToken(token string) error {
	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return fmt.Errorf("telegram token has invalid format (expected format: <bot_id>:<token>, got: %s)", maskTelegramToken(token))
	}

	botID := parts[0]
	botToken := parts[1]

	if len(botID) < 3 || len(botID) > 15 {
		return fmt.Errorf("telegram token has invalid bot ID length (expected 3-15 digits, got %d digits)", len(botID))
	}

	for _, r := range botID {
		if r < '0' || r > '9' {
			return fmt.Errorf("telegram token has invalid bot ID (expected digits only, got: %s)", botID)
		}
	}

	if len(botToken) < 10 || len(botToken) > 50 {
		return fmt.Errorf("telegram token has invalid token length (expected 10-50 characters, got %d)", len(botToken))
	}

	return nil
}
