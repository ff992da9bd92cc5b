package personaquiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionStore persists the session snapshot under a fixed key. Load returns
// (nil, nil) when nothing usable is stored.
type SessionStore interface {
	Load(ctx context.Context) (*SessionState, error)
	Save(ctx context.Context, state *SessionState) error
	Clear(ctx context.Context) error
}

const saveTimeout = 5 * time.Second

// EncodeState serializes a snapshot for storage
func EncodeState(state *SessionState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}
	return data, nil
}

// DecodeState parses a stored snapshot. Malformed data is reported as absent.
func DecodeState(data []byte, logger *zap.Logger) *SessionState {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		orNop(logger).Warn("ignoring malformed session state", zap.Error(err))
		return nil
	}
	return &state
}

// UnmarshalJSON accepts older snapshots where interests were a single
// comma-separated string and age could be a string
func (p *UserProfile) UnmarshalJSON(data []byte) error {
	var raw struct {
		Age         json.RawMessage `json:"age"`
		Occupation  string          `json:"occupation"`
		Gender      string          `json:"gender"`
		Interests   json.RawMessage `json:"interests"`
		DisplayName string          `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Occupation = raw.Occupation
	p.Gender = raw.Gender
	p.DisplayName = raw.DisplayName
	p.Age = DefaultAge
	p.Interests = nil

	if len(raw.Age) > 0 && string(raw.Age) != "null" {
		var n json.Number
		if err := json.Unmarshal(raw.Age, &n); err == nil {
			if v, err := strconv.Atoi(n.String()); err == nil {
				p.Age = v
			}
		} else {
			var s string
			if err := json.Unmarshal(raw.Age, &s); err == nil {
				if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
					p.Age = v
				}
			}
		}
	}

	if len(raw.Interests) > 0 && string(raw.Interests) != "null" {
		var tags []string
		if err := json.Unmarshal(raw.Interests, &tags); err == nil {
			p.Interests = NormalizeTags(tags)
		} else {
			var s string
			if err := json.Unmarshal(raw.Interests, &s); err == nil {
				p.Interests = SplitTags(s)
			}
		}
	}
	return nil
}

// SplitTags turns "Hiking, Gaming" into a tag list
func SplitTags(s string) []string {
	return NormalizeTags(strings.Split(s, ","))
}

// NormalizeTags trims, drops empty and duplicate tags, and keeps order
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// normalizeState repairs a loaded snapshot against the current question bank
func normalizeState(state *SessionState, templates []QuizItemTemplate, logger *zap.Logger) *SessionState {
	n := len(templates)
	if !state.FlowStep.Valid() {
		logger.Warn("unknown flow step in stored session, starting over", zap.String("step", string(state.FlowStep)))
		fresh := NewSessionState(n)
		return fresh
	}

	if state.ProfileStep < 0 || state.ProfileStep >= len(ProfileFields) {
		state.ProfileStep = 0
	}

	items := make([]*GeneratedItem, n)
	for i := 0; i < n && i < len(state.Items); i++ {
		if item := state.Items[i]; item != nil && itemComplete(*item, templates[i]) {
			items[i] = item
		}
	}
	state.Items = items

	known := make(map[int]bool, n)
	for _, t := range templates {
		known[t.ID] = true
	}
	if state.Answers == nil {
		state.Answers = make(map[int]string)
	}
	for id := range state.Answers {
		if !known[id] {
			delete(state.Answers, id)
		}
	}

	if state.CurrentIndex < 0 {
		state.CurrentIndex = 0
	}
	if state.CurrentIndex > n {
		state.CurrentIndex = n
	}
	if state.FlowStep == StepQuiz {
		// answers beyond the current question cannot exist in a shorter bank
		for i := state.CurrentIndex; i < n; i++ {
			delete(state.Answers, templates[i].ID)
		}
		if state.CurrentIndex == n {
			logger.Info("every question of the stored quiz is answered, moving to naming")
			state.FlowStep = StepNaming
		}
	}
	if state.Profile.Age == 0 {
		state.Profile.Age = DefaultAge
	}
	return state
}

// itemComplete reports whether a stored item is fully formed for tpl
func itemComplete(item GeneratedItem, tpl QuizItemTemplate) bool {
	return item.ID == tpl.ID &&
		item.Text != "" &&
		item.Dimension == tpl.Dimension &&
		item.ChoiceA.Text != "" && item.ChoiceB.Text != "" &&
		item.HasChoice(tpl.ChoiceA.Value) && item.HasChoice(tpl.ChoiceB.Value)
}

// Session is the in-memory session state backed by a store. Every mutation
// is written through as a full snapshot.
type Session struct {
	mu        sync.Mutex
	store     SessionStore
	templates []QuizItemTemplate
	state     *SessionState
	epoch     uint64
	logger    *zap.Logger
}

// OpenSession loads the stored session, or starts a fresh one
func OpenSession(ctx context.Context, store SessionStore, templates []QuizItemTemplate, logger *zap.Logger) (*Session, error) {
	logger = orNop(logger)
	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if state == nil {
		state = NewSessionState(len(templates))
	} else {
		state = normalizeState(state, templates, logger)
		logger.Info("resumed stored session",
			zap.String("step", string(state.FlowStep)),
			zap.Int("ready_items", state.ReadyCount()),
			zap.Int("answers", len(state.Answers)))
	}
	return &Session{
		store:     store,
		templates: templates,
		state:     state,
		logger:    logger,
	}, nil
}

// Templates returns the question bank the session was opened with
func (s *Session) Templates() []QuizItemTemplate {
	return s.templates
}

// Snapshot returns a deep copy of the current state
func (s *Session) Snapshot() *SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Update applies fn to the state and persists the result
func (s *Session) Update(fn func(state *SessionState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.state); err != nil {
		return err
	}
	s.persistLocked()
	return nil
}

// Epoch returns the reset counter of the session
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Item returns a copy of the item at index, or nil when it is not ready
func (s *Session) Item(index int) *GeneratedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.state.Items) || s.state.Items[index] == nil {
		return nil
	}
	item := *s.state.Items[index]
	return &item
}

// SetItem stores a generated item at index and persists the snapshot
func (s *Session) SetItem(epoch uint64, index int, item GeneratedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return ErrStaleEpoch
	}
	if index < 0 || index >= len(s.state.Items) {
		return fmt.Errorf("item index %d out of range [0,%d)", index, len(s.state.Items))
	}
	s.state.Items[index] = &item
	s.persistLocked()
	return nil
}

// Reset clears the store and starts a fresh state. Results of calls
// dispatched before the reset are dropped.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.state = NewSessionState(len(s.templates))
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// persistLocked writes the snapshot. A failed write is logged and not
// returned; the in-memory state stays authoritative.
func (s *Session) persistLocked() {
	s.state.UpdatedAt = time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.store.Save(ctx, s.state); err != nil {
		s.logger.Warn("failed to persist session", zap.Error(err))
	}
}
