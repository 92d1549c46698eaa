package autodelete

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/modbot/internal/config"
	"github.com/aatumaykin/modbot/internal/logger"
	"github.com/aatumaykin/modbot/internal/retry"
	"github.com/aatumaykin/modbot/internal/workers"
)

// Options - настройки конвейера.
type Options struct {
	SweepInterval    time.Duration
	BacklogCap       int
	HistoryMin       int
	HistoryCeiling   int
	DelayFloor       time.Duration
	DelayCeiling     time.Duration
	DelayDecayAfter  int
	Cooldown         time.Duration
	MaxAttempts      int
	WatchdogInterval time.Duration
}

// OptionsFromConfig переводит секцию [autodelete] в Options.
func OptionsFromConfig(cfg config.AutoDeleteConfig) Options {
	return Options{
		SweepInterval:    cfg.SweepInterval(),
		BacklogCap:       cfg.BacklogCap,
		HistoryMin:       cfg.HistoryMin,
		HistoryCeiling:   cfg.HistoryCeiling,
		DelayFloor:       cfg.DelayFloor(),
		DelayCeiling:     cfg.DelayCeiling(),
		DelayDecayAfter:  cfg.DelayDecayAfter,
		Cooldown:         cfg.Cooldown(),
		MaxAttempts:      cfg.MaxAttempts,
		WatchdogInterval: time.Duration(cfg.WatchdogMinutes) * time.Minute,
	}
}

func (o *Options) applyDefaults() {
	if o.SweepInterval <= 0 {
		o.SweepInterval = 15 * time.Second
	}
	if o.BacklogCap <= 0 {
		o.BacklogCap = 1000
	}
	if o.HistoryMin <= 0 {
		o.HistoryMin = 100
	}
	if o.HistoryCeiling < o.HistoryMin {
		o.HistoryCeiling = max(1000, o.HistoryMin)
	}
	if o.DelayFloor <= 0 {
		o.DelayFloor = 250 * time.Millisecond
	}
	if o.DelayCeiling < o.DelayFloor {
		o.DelayCeiling = max(30*time.Second, o.DelayFloor)
	}
	if o.DelayDecayAfter <= 0 {
		o.DelayDecayAfter = 3
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.WatchdogInterval <= 0 {
		o.WatchdogInterval = 5 * time.Minute
	}
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет часы.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithMetrics включает запись метрик.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRetrySleep подменяет ожидание между повторами загрузки истории.
func WithRetrySleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.retrySleep = fn }
}

// Status - состояние конвейера для команды autodeletestatus.
type Status struct {
	Running  bool
	LastTick time.Time
	Channels int
	Rule     *RetentionRule
	Window   int
	Pending  int
}

// Service связывает хранилище правил, состояния каналов, исполнитель и sweeper.
type Service struct {
	store      *RuleStore
	registry   *registry
	sink       Sink
	pool       *workers.WorkerPool
	executor   *Executor
	opts       Options
	clock      Clock
	metrics    *Metrics
	logger     *logger.Logger
	retrySleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	running  atomic.Bool
	lastTick atomic.Int64
}

// NewService создаёт сервис. Правила из store регистрируются сразу,
// загрузка истории начинается после Start.
func NewService(store *RuleStore, sink Sink, pool *workers.WorkerPool, opts Options, log *logger.Logger, options ...Option) *Service {
	opts.applyDefaults()

	s := &Service{
		store:    store,
		registry: newRegistry(),
		sink:     sink,
		pool:     pool,
		opts:     opts,
		clock:    realClock{},
		logger:   log.Component("autodelete"),
	}
	for _, o := range options {
		o(s)
	}

	delay := retry.NewAdaptive(opts.DelayFloor, opts.DelayCeiling, opts.DelayDecayAfter)
	s.executor = newExecutor(sink, delay, s.clock, s.metrics, s.logger, opts.MaxAttempts, opts.Cooldown)
	s.metrics.setDelay(delay.Delay())

	for _, rule := range store.All() {
		if rule.Inert() {
			continue
		}
		s.registry.upsert(rule)
	}
	return s
}

// Start запускает sweeper и watchdog на robfig/cron и ставит загрузку истории
// всех каналов с правилами.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("autodelete service already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	c := cron.New(cron.WithLogger(cron.PrintfLogger(s.logger)))

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.opts.SweepInterval), s.tick); err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.opts.WatchdogInterval), s.watchdog); err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule watchdog: %w", err)
	}

	s.cron = c
	s.lastTick.Store(s.clock.Now().UnixNano())
	s.running.Store(true)
	c.Start()

	s.logger.Info("autodelete sweeper started",
		logger.Field{Key: "interval", Value: s.opts.SweepInterval.String()},
		logger.Field{Key: "channels", Value: s.registry.len()})

	s.tick()
	return nil
}

// Stop останавливает расписание и ждёт завершения запущенных cron-функций.
// Проходы в пуле прерываются через контекст.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	cancel := s.cancel
	s.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()
	cancel()
	s.running.Store(false)
	s.logger.Info("autodelete sweeper stopped")
}

// tick ставит в пул проходы по всем каналам.
func (s *Service) tick() {
	s.lastTick.Store(s.clock.Now().UnixNano())

	for _, key := range s.registry.keys() {
		st, ok := s.registry.get(key)
		if !ok {
			continue
		}
		s.schedule(st)
	}
}

// schedule ставит загрузку истории, если канал ещё не загружен, иначе проход.
func (s *Service) schedule(st *channelState) {
	st.mu.Lock()
	needBootstrap := !st.bootstrapped
	if needBootstrap && st.bootstrapping || !needBootstrap && st.sweepQueued {
		st.mu.Unlock()
		return
	}
	if needBootstrap {
		st.bootstrapping = true
	} else {
		st.sweepQueued = true
	}
	st.mu.Unlock()

	task := workers.Task{
		ID:      newTaskID(),
		Key:     st.key,
		Context: s.ctx,
	}
	if needBootstrap {
		task.Type = workers.TaskTypeBootstrap
		task.Run = func(ctx context.Context) error {
			defer st.clearFlag(&st.bootstrapping)
			err := s.bootstrap(ctx, st)
			if err != nil && ctx.Err() == nil {
				// живые сообщения канала обслуживаются и без истории
				s.pass(ctx, st)
			}
			return err
		}
	} else {
		task.Type = workers.TaskTypeSweep
		task.Run = func(ctx context.Context) error {
			st.clearFlag(&st.sweepQueued)
			s.pass(ctx, st)
			return nil
		}
	}

	if err := s.pool.TrySubmit(task); err != nil {
		if needBootstrap {
			st.clearFlag(&st.bootstrapping)
		} else {
			st.clearFlag(&st.sweepQueued)
		}
		s.metrics.recordSkip("queue_full")
		s.logger.Warn("could not schedule channel task",
			logger.Field{Key: "channel", Value: st.key},
			logger.Field{Key: "task_type", Value: task.Type},
			logger.Field{Key: "error", Value: err.Error()})
	}
}

func (st *channelState) clearFlag(flag *bool) {
	st.mu.Lock()
	*flag = false
	st.mu.Unlock()
}

// watchdog предупреждает, если тики sweeper давно не приходили.
func (s *Service) watchdog() {
	last := time.Unix(0, s.lastTick.Load())
	silence := s.clock.Now().Sub(last)
	if silence > 3*s.opts.SweepInterval {
		s.logger.Warn("sweeper has not ticked recently",
			logger.Field{Key: "since_last_tick", Value: silence.String()},
			logger.Field{Key: "interval", Value: s.opts.SweepInterval.String()})
		return
	}
	window, pending := 0, 0
	for _, key := range s.registry.keys() {
		if st, ok := s.registry.get(key); ok {
			w, p := st.sizes()
			window += w
			pending += p
		}
	}
	s.logger.Debug("sweeper healthy",
		logger.Field{Key: "channels", Value: s.registry.len()},
		logger.Field{Key: "window", Value: window},
		logger.Field{Key: "pending", Value: pending})
}

// HandleMessage учитывает новое сообщение. ChannelID сообщения - ключ канала.
// Каналы без правила игнорируются.
func (s *Service) HandleMessage(msg TrackedMessage) {
	st, ok := s.registry.get(msg.ChannelID)
	if !ok {
		return
	}
	if queued := st.ingest(msg); queued > 0 {
		s.logger.Debug("window overflow",
			logger.Field{Key: "channel", Value: msg.ChannelID},
			logger.Field{Key: "queued", Value: queued})
	}
	w, p := st.sizes()
	s.metrics.setSizes(st.key, w, p)
}

// HandlePinUpdate отмечает закрепление сообщения. Открепление не возвращает
// сообщение под наблюдение.
func (s *Service) HandlePinUpdate(key, messageID string, pinned bool) {
	if !pinned {
		return
	}
	if st, ok := s.registry.get(key); ok {
		st.markPinned(messageID)
	}
}

// HandleDelete забывает сообщение, удалённое на платформе.
func (s *Service) HandleDelete(key, messageID string) {
	if st, ok := s.registry.get(key); ok {
		st.forget(messageID)
	}
}

// SetRule сохраняет правило и перезагружает состояние канала из истории.
// Ошибка возвращается, только если правило не удалось сохранить.
func (s *Service) SetRule(rule RetentionRule) error {
	if err := s.store.Set(rule); err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}

	key, _ := NormalizeChannelKey(rule.ChannelID)
	rule.ChannelID = key

	if rule.Inert() {
		s.dropChannel(key)
		return nil
	}

	st := s.registry.upsert(rule)
	if s.running.Load() {
		s.schedule(st)
	}
	return nil
}

// RemoveRule удаляет правило и состояние канала.
func (s *Service) RemoveRule(key string) (bool, error) {
	key = normalizeOrKeep(key)
	removed, err := s.store.Remove(key)
	if err != nil {
		return false, fmt.Errorf("failed to remove rule: %w", err)
	}
	s.dropChannel(key)
	return removed, nil
}

func (s *Service) dropChannel(key string) {
	if s.registry.remove(key) {
		s.metrics.forgetChannel(key)
	}
}

// Rule возвращает правило канала.
func (s *Service) Rule(key string) (RetentionRule, bool) {
	return s.store.Get(key)
}

// Rules возвращает все правила.
func (s *Service) Rules() []RetentionRule {
	return s.store.All()
}

// Status возвращает состояние sweeper и, если key не пуст, канала.
func (s *Service) Status(key string) Status {
	status := Status{
		Running:  s.running.Load(),
		Channels: s.registry.len(),
	}
	if ns := s.lastTick.Load(); ns != 0 {
		status.LastTick = time.Unix(0, ns)
	}
	if key == "" {
		return status
	}
	key = normalizeOrKeep(key)
	if rule, ok := s.store.Get(key); ok {
		status.Rule = &rule
	}
	if st, ok := s.registry.get(key); ok {
		status.Window, status.Pending = st.sizes()
	}
	return status
}

// Sweep синхронно выполняет один проход по каналу.
func (s *Service) Sweep(ctx context.Context, key string) error {
	st, ok := s.registry.get(normalizeOrKeep(key))
	if !ok {
		return fmt.Errorf("no auto-delete rule for channel %s", key)
	}
	s.pass(ctx, st)
	return nil
}

// Bootstrap синхронно загружает историю канала.
func (s *Service) Bootstrap(ctx context.Context, key string) error {
	st, ok := s.registry.get(normalizeOrKeep(key))
	if !ok {
		return fmt.Errorf("no auto-delete rule for channel %s", key)
	}
	return s.bootstrap(ctx, st)
}

// channelCapabilities возвращает кэшированные возможности канала,
// при первом обращении запрашивая их у платформы.
func (s *Service) channelCapabilities(ctx context.Context, st *channelState) (Capabilities, error) {
	if caps := st.capabilities(); caps != nil {
		return *caps, nil
	}
	caps, err := s.sink.Capabilities(ctx, st.key)
	if err != nil {
		return Capabilities{}, err
	}
	st.setCapabilities(caps)
	return caps, nil
}
