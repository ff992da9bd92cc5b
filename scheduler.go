package personaquiz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ItemStore is where the scheduler reads and writes generated items. Writes
// carry the epoch observed at dispatch; a store that was reset since then
// rejects them with ErrStaleEpoch.
type ItemStore interface {
	Epoch() uint64
	Item(index int) *GeneratedItem
	SetItem(epoch uint64, index int, item GeneratedItem) error
}

// ErrStaleEpoch is returned when a write targets a session that was reset
var ErrStaleEpoch = errors.New("session was reset since the call was dispatched")

// SchedulerOptions bounds the scheduler
type SchedulerOptions struct {
	Limit    int
	Debounce time.Duration
}

// DefaultSchedulerOptions returns 3 slots and a 50ms refill debounce
func DefaultSchedulerOptions() SchedulerOptions {
	return SchedulerOptions{Limit: ConcurrentLimit, Debounce: RefillDebounce}
}

// TriggerKey identifies the inputs of a generation run
func TriggerKey(step FlowStep, profile UserProfile) string {
	data, _ := json.Marshal(struct {
		Step    FlowStep    `json:"step"`
		Profile UserProfile `json:"profile"`
	}{step, profile})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SchedulerStats is a snapshot of the scheduler's bookkeeping
type SchedulerStats struct {
	InFlight   int
	Peak       int
	Running    bool
	Dispatched int
	Completed  int
}

// Scheduler generates personalized content for every template with bounded
// parallelism. Starting new calls and writing results are independent:
// Cancel stops the former only, so dispatched calls still land in the store.
type Scheduler struct {
	maker      Personalizer
	exec       *Executor
	items      ItemStore
	logger     *zap.Logger
	transcript *LLMLogger
	debounce   time.Duration
	base       context.Context

	pool *SlotPool

	mu        sync.Mutex
	current   *run
	completed map[string]bool
	pending   int
	drained   chan struct{}
}

// run is the bookkeeping of one Start invocation
type run struct {
	key        string
	profile    UserProfile
	templates  []QuizItemTemplate
	epoch      uint64
	stop       chan struct{}
	done       chan struct{}
	wake       chan struct{}
	stopped    bool
	dispatched int
}

// NewScheduler creates a scheduler writing into items
func NewScheduler(maker Personalizer, exec *Executor, items ItemStore, opts SchedulerOptions, logger *zap.Logger) *Scheduler {
	if opts.Limit < 1 {
		opts.Limit = ConcurrentLimit
	}
	return &Scheduler{
		maker:     maker,
		exec:      exec,
		items:     items,
		logger:    orNop(logger),
		debounce:  opts.Debounce,
		base:      context.Background(),
		pool:      NewSlotPool(opts.Limit),
		completed: make(map[string]bool),
	}
}

// SetTranscript attaches a transcript logger
func (s *Scheduler) SetTranscript(t *LLMLogger) {
	s.transcript = t
}

// Start begins generating every template that has no item yet. It returns
// immediately; progress is observed through the item store. Starting with the
// key of a run that already completed, or of the run in progress, does nothing.
func (s *Scheduler) Start(step FlowStep, profile UserProfile, templates []QuizItemTemplate) {
	key := TriggerKey(step, profile)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completed[key] {
		s.logger.Debug("generation already completed for these inputs", zap.String("key", key[:12]))
		return
	}
	if r := s.current; r != nil && !r.stopped {
		if r.key == key {
			return
		}
		s.logger.Info("generation inputs changed, restarting", zap.String("old_key", r.key[:12]), zap.String("new_key", key[:12]))
		s.stopLocked(r)
	}

	profile.Interests = append([]string(nil), profile.Interests...)
	r := &run{
		key:       key,
		profile:   profile,
		templates: append([]QuizItemTemplate(nil), templates...),
		epoch:     s.items.Epoch(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		wake:      make(chan struct{}, 1),
	}
	s.current = r
	s.logger.Info("starting question generation",
		zap.Int("templates", len(templates)),
		zap.Int("limit", s.pool.Limit()),
		zap.String("key", key[:12]))
	// first round runs here so the calls are visible to Drain on return
	s.fillLocked(r)
	go s.loop(r)
}

// Cancel stops scheduling new calls. Calls already dispatched keep running
// and still write their results. Their slots stay taken until they settle, so
// an index still in flight is not re-dispatched by a later Start, even for a
// different profile.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && !s.current.stopped {
		s.stopLocked(s.current)
		s.logger.Debug("question generation cancelled", zap.Ints("still_in_flight", s.pool.InFlight()))
	}
}

func (s *Scheduler) stopLocked(r *run) {
	r.stopped = true
	close(r.stop)
}

// Wait blocks until the current run has completed or been cancelled
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain blocks until every dispatched call has settled, including calls of
// cancelled runs
func (s *Scheduler) Drain(ctx context.Context) error {
	s.mu.Lock()
	if s.pending == 0 {
		s.mu.Unlock()
		return nil
	}
	done := s.drained
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Completed reports whether a run with these inputs finished
func (s *Scheduler) Completed(step FlowStep, profile UserProfile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[TriggerKey(step, profile)]
}

// Forget drops the completed-run memory, used after the session is reset
func (s *Scheduler) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = make(map[string]bool)
}

// State returns the slot state of the template at index
func (s *Scheduler) State(index int) SlotState {
	if s.pool.Has(index) {
		return SlotInFlight
	}
	if s.items.Item(index) != nil {
		return SlotSettled
	}
	return SlotNotStarted
}

// Stats returns a snapshot of the scheduler's bookkeeping
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SchedulerStats{
		InFlight:  s.pool.Size(),
		Peak:      s.pool.Peak(),
		Completed: len(s.completed),
	}
	if s.current != nil {
		st.Running = !s.current.stopped
		st.Dispatched = s.current.dispatched
	}
	return st
}

func (s *Scheduler) loop(r *run) {
	defer close(r.done)

	for {
		if s.fill(r) {
			s.mu.Lock()
			s.completed[r.key] = true
			if !r.stopped {
				s.stopLocked(r)
			}
			s.mu.Unlock()
			s.logger.Info("question generation completed", zap.Int("dispatched", r.dispatched))
			return
		}

		select {
		case <-r.stop:
			return
		case <-r.wake:
		}

		if s.debounce > 0 {
			t := time.NewTimer(s.debounce)
			select {
			case <-r.stop:
				t.Stop()
				return
			case <-t.C:
			}
		}
	}
}

// fill dispatches missing items in index order until the pool is full. It
// reports whether every index already holds an item.
func (s *Scheduler) fill(r *run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fillLocked(r)
}

func (s *Scheduler) fillLocked(r *run) bool {
	if !r.stopped && s.items.Epoch() != r.epoch {
		s.logger.Info("session was reset, stopping generation run", zap.String("key", r.key[:12]))
		s.stopLocked(r)
		return false
	}

	complete := true
	for i, tpl := range r.templates {
		if s.items.Item(i) != nil {
			continue
		}
		complete = false
		if r.stopped {
			return false
		}
		if s.pool.Has(i) {
			continue
		}
		if !s.pool.TryAcquire(i) {
			break
		}
		r.dispatched++
		s.dispatch(r, i, tpl)
	}
	return complete
}

// settlement carries a result and whether it came from the model
type settlement struct {
	item      GeneratedItem
	generated bool
}

// dispatch starts the call for index. The caller holds s.mu.
func (s *Scheduler) dispatch(r *run, index int, tpl QuizItemTemplate) {
	if s.pending == 0 {
		s.drained = make(chan struct{})
	}
	s.pending++
	generationInFlight.Inc()
	s.logger.Debug("dispatching question generation",
		zap.Int("index", index),
		zap.Int("template", tpl.ID),
		zap.Int("in_flight", s.pool.Size()))

	profile, epoch := r.profile, r.epoch
	go func() {
		started := time.Now()
		result := Run(s.base, s.exec, "question", func(ctx context.Context) (settlement, error) {
			item, err := s.maker.Personalize(ctx, profile, tpl)
			if err != nil {
				return settlement{}, err
			}
			return settlement{item: item, generated: true}, nil
		}, settlement{item: FromTemplate(tpl)})

		s.settle(index, tpl, epoch, result, time.Since(started))
	}()
}

func (s *Scheduler) settle(index int, tpl QuizItemTemplate, epoch uint64, result settlement, took time.Duration) {
	source := "template"
	if result.generated {
		source = "generated"
	}

	if err := s.items.SetItem(epoch, index, result.item); err != nil {
		if errors.Is(err, ErrStaleEpoch) {
			s.logger.Debug("dropping result for a reset session", zap.Int("index", index))
		} else {
			s.logger.Warn("failed to store generated item", zap.Int("index", index), zap.Error(err))
		}
	} else {
		itemsSettled.WithLabelValues(source).Inc()
		if s.transcript != nil {
			s.transcript.LogItemSettled(index, tpl.ID, source)
		}
	}

	s.mu.Lock()
	s.pool.Release(index)
	s.pending--
	if s.pending == 0 {
		close(s.drained)
	}
	cur := s.current
	s.mu.Unlock()
	generationInFlight.Dec()

	s.logger.Debug("question settled",
		zap.Int("index", index),
		zap.String("source", source),
		zap.Duration("took", took))

	if cur != nil {
		select {
		case cur.wake <- struct{}{}:
		default:
		}
	}
}
