package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wasilibs/go-re2"
	"golang.org/x/text/unicode/norm"

	"github.com/aatumaykin/modbot/internal/constants"
)

// maxAgeSeconds ограничивает возраст в правиле десятью годами.
const maxAgeSeconds = 10 * 365 * 24 * 3600

var (
	fieldsPattern   = re2.MustCompile(`\s+`)
	botNamePattern  = re2.MustCompile(`^([a-z]+)@[a-z0-9_]+$`)
	durationPattern = re2.MustCompile(`^(\d+)([a-z]*)$`)
)

var (
	// ErrUsage - аргументы команды не разобраны; в ответ отправляется подсказка.
	ErrUsage = errors.New("invalid command arguments")
	// ErrInertRule - правило без лимита и без возраста ничего не удаляет.
	ErrInertRule = errors.New("limit and time cannot both be zero, use off to disable")
)

var unitSeconds = map[string]uint{
	"":        1,
	"s":       1,
	"sec":     1,
	"secs":    1,
	"second":  1,
	"seconds": 1,
	"m":       60,
	"min":     60,
	"mins":    60,
	"minute":  60,
	"minutes": 60,
	"h":       3600,
	"hr":      3600,
	"hrs":     3600,
	"hour":    3600,
	"hours":   3600,
	"d":       86400,
	"day":     86400,
	"days":    86400,
}

// Command - разобранная команда администратора.
type Command struct {
	Name string
	Args []string
}

// Parse выделяет команду из текста сообщения. Текст приводится к NFKC,
// поэтому полноширинные префиксы и цифры распознаются так же, как обычные.
// Суффикс "@botname" у имени команды (Telegram) отбрасывается.
func Parse(prefix, text string) (Command, bool) {
	if prefix == "" {
		return Command{}, false
	}

	text = strings.TrimSpace(norm.NFKC.String(text))
	if !strings.HasPrefix(text, prefix) {
		return Command{}, false
	}

	body := strings.TrimSpace(text[len(prefix):])
	if body == "" {
		return Command{}, false
	}

	fields := fieldsPattern.Split(body, -1)
	name := strings.ToLower(fields[0])
	if m := botNamePattern.FindStringSubmatch(name); m != nil {
		name = m[1]
	}

	return Command{Name: name, Args: fields[1:]}, true
}

// AutoDeleteArgs - аргументы команды autodelete.
type AutoDeleteArgs struct {
	Off           bool
	Limit         uint
	MaxAgeSeconds uint
}

// ParseAutoDelete разбирает "<limit> <time> [unit]" или "off".
// Единица может идти отдельным словом или слитно с числом: "5 hours", "5h".
func ParseAutoDelete(args []string) (AutoDeleteArgs, error) {
	if len(args) == 1 && strings.EqualFold(args[0], constants.AutoDeleteOffArg) {
		return AutoDeleteArgs{Off: true}, nil
	}
	if len(args) < 2 || len(args) > 3 {
		return AutoDeleteArgs{}, ErrUsage
	}

	limit, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return AutoDeleteArgs{}, fmt.Errorf("%w: limit %q is not a number", ErrUsage, args[0])
	}

	m := durationPattern.FindStringSubmatch(strings.ToLower(args[1]))
	if m == nil {
		return AutoDeleteArgs{}, fmt.Errorf("%w: time %q is not a number", ErrUsage, args[1])
	}
	unit := m[2]
	if len(args) == 3 {
		if unit != "" {
			return AutoDeleteArgs{}, fmt.Errorf("%w: unit given twice", ErrUsage)
		}
		unit = strings.ToLower(args[2])
	}

	mult, ok := unitSeconds[unit]
	if !ok {
		return AutoDeleteArgs{}, fmt.Errorf("%w: unknown unit %q", ErrUsage, unit)
	}

	value, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil || value > maxAgeSeconds/uint64(mult) {
		return AutoDeleteArgs{}, fmt.Errorf("%w: time %q is too large", ErrUsage, args[1])
	}

	parsed := AutoDeleteArgs{Limit: uint(limit), MaxAgeSeconds: uint(value) * mult}
	if parsed.Limit == 0 && parsed.MaxAgeSeconds == 0 {
		return AutoDeleteArgs{}, ErrInertRule
	}
	return parsed, nil
}

// ParseCount разбирает необязательное число сообщений для clear и clearold.
// Без аргумента возвращается limit, большее значение урезается до limit.
func ParseCount(args []string, limit int) (int, error) {
	if len(args) == 0 {
		return limit, nil
	}
	if len(args) > 1 {
		return 0, ErrUsage
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: count %q", ErrUsage, args[0])
	}
	return min(n, limit), nil
}
