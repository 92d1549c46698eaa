package autodelete

import (
	"sort"
	"sync"
	"time"
)

// ageOnlyWindowCap ограничивает окно правила без лимита по количеству.
// Вытесненные сверх него сообщения перестают отслеживаться, но не удаляются.
const ageOnlyWindowCap = 5000

// pendingEntry - сообщение в очереди на удаление. Запись живёт в queued,
// пока исполнитель не закончит с ней, даже если уже снята с очереди проходом.
type pendingEntry struct {
	msg      TrackedMessage
	attempts int
	pinned   bool
	gone     bool
}

// channelState - окно, очередь и блокировка одного канала.
type channelState struct {
	key string

	// sweepMu - блокировка прохода sweeper. Берётся через TryLock.
	sweepMu sync.Mutex

	mu            sync.Mutex
	rule          RetentionRule
	window        deque[TrackedMessage]
	pending       deque[*pendingEntry]
	queued        map[string]*pendingEntry
	caps          *Capabilities
	cooldownUntil time.Time
	bootstrapped  bool
	bootstrapping bool
	sweepQueued   bool
	generation    uint64
}

func newChannelState(rule RetentionRule) *channelState {
	return &channelState{
		key:    rule.ChannelID,
		rule:   rule,
		queued: make(map[string]*pendingEntry),
	}
}

// ingest добавляет новое сообщение и переносит вытесненные в очередь.
// Возвращает число сообщений, поставленных в очередь.
func (st *channelState) ingest(msg TrackedMessage) int {
	if msg.Pinned || msg.AuthorIsBot {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, dup := st.queued[msg.ID]; dup {
		return 0
	}
	st.window.PushBack(msg)
	return st.trimLocked()
}

func (st *channelState) trimLocked() int {
	queued := 0
	limit := int(st.rule.MessageLimit)
	if limit == 0 {
		for st.window.Len() > ageOnlyWindowCap {
			st.window.PopFront()
		}
		return 0
	}
	for st.window.Len() > limit {
		msg, _ := st.window.PopFront()
		if st.enqueueLocked(msg) {
			queued++
		}
	}
	return queued
}

// expire переносит в очередь сообщения из начала окна старше maxAge.
// Окно упорядочено по приходу событий, это считается и порядком создания.
func (st *channelState) expire(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.expireLocked(now)
}

func (st *channelState) expireLocked(now time.Time) int {
	maxAge := st.rule.MaxAge()
	if maxAge <= 0 {
		return 0
	}
	queued := 0
	for {
		front, ok := st.window.Front()
		if !ok || front.Age(now) <= maxAge {
			return queued
		}
		st.window.PopFront()
		if st.enqueueLocked(front) {
			queued++
		}
	}
}

func (st *channelState) enqueueLocked(msg TrackedMessage) bool {
	if msg.Pinned {
		return false
	}
	if _, dup := st.queued[msg.ID]; dup {
		return false
	}
	entry := &pendingEntry{msg: msg}
	st.queued[msg.ID] = entry
	st.pending.PushBack(entry)
	return true
}

// markPinned убирает закреплённое сообщение из окна. Если оно уже в очереди,
// запись помечается и будет пропущена при удалении.
func (st *channelState) markPinned(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.window.RemoveFunc(func(m TrackedMessage) bool { return m.ID == id })
	if entry, ok := st.queued[id]; ok {
		entry.pinned = true
	}
}

// forget убирает удалённое на платформе сообщение из окна и очереди.
func (st *channelState) forget(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.window.RemoveFunc(func(m TrackedMessage) bool { return m.ID == id })
	if entry, ok := st.queued[id]; ok {
		entry.gone = true
		removed := st.pending.RemoveFunc(func(e *pendingEntry) bool { return e == entry })
		if removed > 0 {
			delete(st.queued, id)
		}
	}
}

// skip сообщает, что запись не нужно отправлять на удаление.
func (st *channelState) skip(entry *pendingEntry) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return entry.pinned || entry.gone
}

// takePending снимает до n записей с начала очереди для прохода.
func (st *channelState) takePending(n int) []*pendingEntry {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.pending.Take(n)
}

// settle завершает проход: обработанные записи забываются,
// retry возвращаются в начало очереди в исходном порядке.
func (st *channelState) settle(done, retry []*pendingEntry) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, entry := range done {
		if st.queued[entry.msg.ID] == entry {
			delete(st.queued, entry.msg.ID)
		}
	}

	keep := retry[:0:0]
	for _, entry := range retry {
		if entry.gone {
			delete(st.queued, entry.msg.ID)
			continue
		}
		keep = append(keep, entry)
	}
	st.pending.PushFront(keep...)
}

func (st *channelState) setCooldown(until time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if until.After(st.cooldownUntil) {
		st.cooldownUntil = until
	}
}

func (st *channelState) coolingDown(now time.Time) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return now.Before(st.cooldownUntil)
}

func (st *channelState) capabilities() *Capabilities {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.caps == nil {
		return nil
	}
	c := *st.caps
	return &c
}

func (st *channelState) setCapabilities(c Capabilities) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.caps = &c
}

// downgradeBulk запоминает, что массовое удаление в канале не работает.
func (st *channelState) downgradeBulk() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.caps != nil {
		st.caps.BulkDelete = false
	}
}

func (st *channelState) currentRule() RetentionRule {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.rule
}

// sizes возвращает длины окна и очереди.
func (st *channelState) sizes() (window, pending int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.window.Len(), st.pending.Len()
}

func (st *channelState) windowItems() []TrackedMessage {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.window.Items()
}

func (st *channelState) pendingItems() []TrackedMessage {
	st.mu.Lock()
	defer st.mu.Unlock()
	entries := st.pending.Items()
	out := make([]TrackedMessage, len(entries))
	for i, e := range entries {
		out[i] = e.msg
	}
	return out
}

// seed применяет результат загрузки истории. history - отфильтрованные
// сообщения от старых к новым. Сообщения, пришедшие во время загрузки,
// сливаются с историей, уже стоящие в очереди не трогаются.
// Возвращает false, если правило сменилось и результат устарел.
func (st *channelState) seed(generation uint64, history []TrackedMessage, now time.Time) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.generation != generation {
		return false
	}

	fromHistory := make(map[string]bool, len(history))
	merged := make([]TrackedMessage, 0, len(history)+st.window.Len())
	for _, m := range history {
		if _, queued := st.queued[m.ID]; queued || fromHistory[m.ID] {
			continue
		}
		fromHistory[m.ID] = true
		merged = append(merged, m)
	}
	for _, m := range st.window.Items() {
		if fromHistory[m.ID] {
			continue
		}
		merged = append(merged, m)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].CreatedAt.Before(merged[j].CreatedAt) })

	limit := int(st.rule.MessageLimit)
	if limit == 0 {
		limit = ageOnlyWindowCap
	}
	if len(merged) > limit {
		// старые сообщения из истории отбрасываются без удаления,
		// а живые, вытесненные слиянием, уходят в очередь как обычное переполнение
		for _, m := range merged[:len(merged)-limit] {
			if !fromHistory[m.ID] && st.rule.MessageLimit > 0 {
				st.enqueueLocked(m)
			}
		}
		merged = merged[len(merged)-limit:]
	}

	st.window.Reset(merged)
	st.expireAllLocked(now)
	st.bootstrapped = true
	return true
}

// expireAllLocked переносит в очередь все сообщения окна старше maxAge,
// а не только идущие подряд с начала.
func (st *channelState) expireAllLocked(now time.Time) {
	maxAge := st.rule.MaxAge()
	if maxAge <= 0 {
		return
	}
	var expired []TrackedMessage
	st.window.RemoveFunc(func(m TrackedMessage) bool {
		if m.Age(now) > maxAge {
			expired = append(expired, m)
			return true
		}
		return false
	})
	for _, m := range expired {
		st.enqueueLocked(m)
	}
}

// registry - состояния каналов с правилами. Состояние создаётся при
// регистрации правила и удаляется вместе с ним.
type registry struct {
	mu       sync.RWMutex
	channels map[string]*channelState
}

func newRegistry() *registry {
	return &registry{channels: make(map[string]*channelState)}
}

func (r *registry) get(key string) (*channelState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.channels[key]
	return st, ok
}

// upsert регистрирует правило. Для существующего канала правило заменяется,
// окно пересобирается при следующей загрузке истории.
func (r *registry) upsert(rule RetentionRule) *channelState {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.channels[rule.ChannelID]
	if !ok {
		st = newChannelState(rule)
		r.channels[rule.ChannelID] = st
		return st
	}

	st.mu.Lock()
	st.rule = rule
	st.generation++
	st.bootstrapped = false
	st.mu.Unlock()
	return st
}

func (r *registry) remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.channels[key]
	delete(r.channels, key)
	return ok
}

func (r *registry) keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.channels))
	for k := range r.channels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
