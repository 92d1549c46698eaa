package autodelete

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aatumaykin/modbot/internal/logger"
)

// RuleStore хранит правила в JSON-файле вида {"<channel>": {"limit": N, "time": S}}.
// Каждое изменение сразу записывается на диск через временный файл и rename,
// так что команда подтверждается только после сохранения.
type RuleStore struct {
	mu     sync.RWMutex
	path   string
	rules  map[string]RetentionRule
	logger *logger.Logger
}

// NewRuleStore создаёт пустое хранилище. Правила читаются через Load.
func NewRuleStore(path string, log *logger.Logger) *RuleStore {
	return &RuleStore{
		path:   path,
		rules:  make(map[string]RetentionRule),
		logger: log.Component("rulestore"),
	}
}

// Path возвращает путь к файлу правил.
func (s *RuleStore) Path() string {
	return s.path
}

// Load читает файл правил. Отсутствующий файл - пустой набор без ошибки.
// Повреждённый файл тоже даёт пустой набор, а ошибка с ErrConfigCorrupt
// возвращается только для логов: запуск продолжается.
func (s *RuleStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = make(map[string]RetentionRule)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("rule file not found, starting with no rules",
			logger.Field{Key: "file", Value: s.path})
		return nil
	}
	if err != nil {
		s.logger.Error("failed to read rule file, starting with no rules", err,
			logger.Field{Key: "file", Value: s.path})
		return fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}

	var raw map[string]RetentionRule
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Error("rule file is corrupt, starting with no rules", err,
			logger.Field{Key: "file", Value: s.path})
		return fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}

	for key, rule := range raw {
		normalized, err := NormalizeChannelKey(key)
		if err != nil {
			s.logger.Warn("skipping rule with invalid channel key",
				logger.Field{Key: "channel", Value: key})
			continue
		}
		rule.ChannelID = normalized
		s.rules[normalized] = rule
	}

	s.logger.Info("rules loaded",
		logger.Field{Key: "file", Value: s.path},
		logger.Field{Key: "count", Value: len(s.rules)})
	return nil
}

// Get возвращает правило канала.
func (s *RuleStore) Get(key string) (RetentionRule, bool) {
	key = normalizeOrKeep(key)

	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[key]
	return rule, ok
}

// Set сохраняет правило и записывает файл. При ошибке записи
// набор в памяти откатывается.
func (s *RuleStore) Set(rule RetentionRule) error {
	key, err := NormalizeChannelKey(rule.ChannelID)
	if err != nil {
		return err
	}
	rule.ChannelID = key

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.rules[key]
	s.rules[key] = rule
	if err := s.flushLocked(); err != nil {
		if existed {
			s.rules[key] = prev
		} else {
			delete(s.rules, key)
		}
		return err
	}

	s.logger.Info("rule saved",
		logger.Field{Key: "channel", Value: key},
		logger.Field{Key: "limit", Value: rule.MessageLimit},
		logger.Field{Key: "max_age_seconds", Value: rule.MaxAgeSeconds})
	return nil
}

// Remove удаляет правило. Возвращает false, если правила не было.
func (s *RuleStore) Remove(key string) (bool, error) {
	key = normalizeOrKeep(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.rules[key]
	if !existed {
		return false, nil
	}

	delete(s.rules, key)
	if err := s.flushLocked(); err != nil {
		s.rules[key] = prev
		return false, err
	}

	s.logger.Info("rule removed", logger.Field{Key: "channel", Value: key})
	return true, nil
}

// All возвращает все правила, отсортированные по ключу канала.
func (s *RuleStore) All() []RetentionRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]RetentionRule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ChannelID < rules[j].ChannelID })
	return rules
}

// flushLocked atomically rewrites the rule file. Caller holds s.mu.
func (s *RuleStore) flushLocked() error {
	data, err := json.MarshalIndent(s.rules, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.Error("failed to create rule directory", err, logger.Field{Key: "dir", Value: dir})
		return fmt.Errorf("failed to create rule directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary rule file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary rule file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temporary rule file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary rule file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		s.logger.Error("failed to replace rule file", err, logger.Field{Key: "file", Value: s.path})
		return fmt.Errorf("failed to replace rule file: %w", err)
	}
	return nil
}

func normalizeOrKeep(key string) string {
	if normalized, err := NormalizeChannelKey(key); err == nil {
		return normalized
	}
	return key
}
