package constants

// Тексты ответов на команды администратора.

// Autodelete command
const (
	// MsgRuleSet подтверждает установку правила: лимит и возраст в секундах.
	MsgRuleSet = "✅ Auto-delete enabled: keeping the last %d messages, deleting messages older than %s."

	// MsgRuleSetCountOnly подтверждает правило только по количеству.
	MsgRuleSetCountOnly = "✅ Auto-delete enabled: keeping the last %d messages."

	// MsgRuleSetAgeOnly подтверждает правило только по возрасту.
	MsgRuleSetAgeOnly = "✅ Auto-delete enabled: deleting messages older than %s."

	// MsgRuleRemoved подтверждает снятие правила.
	MsgRuleRemoved = "🗑 Auto-delete disabled for this channel."

	// MsgRuleNotFound сообщает, что для канала нет правила.
	MsgRuleNotFound = "ℹ️ Auto-delete is not enabled for this channel."

	// MsgAutoDeleteUsage описывает синтаксис команды autodelete.
	MsgAutoDeleteUsage = "Usage: %sautodelete <limit> <time> [seconds|minutes|hours|days] or %sautodelete off"
)

// Clear commands
const (
	// MsgClearDone сообщает число удалённых сообщений.
	MsgClearDone = "🧹 Deleted %d messages."

	// MsgClearUsage описывает синтаксис clear и clearold.
	MsgClearUsage = "Usage: %s%s [count], count between 1 and %d"
)

// Status
const (
	// MsgStatusSweeper описывает состояние sweeper.
	MsgStatusSweeper = "Sweeper: %s, last tick: %s, channels: %d"

	// MsgStatusChannel описывает правило и размеры окна и очереди канала.
	MsgStatusChannel = "This channel: limit %d, max age %s, window %d, pending %d"

	// MsgStatusNoRule - строка статуса для канала без правила.
	MsgStatusNoRule = "This channel: no auto-delete rule"
)

// Errors
const (
	// MsgErrorFormat is the prefix for formatting error messages.
	MsgErrorFormat = "❌ Error: %v"

	// MsgUnknownCommand отвечает на неизвестную команду.
	MsgUnknownCommand = "❓ Unknown command: %s"
)
