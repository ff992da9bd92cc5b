package personaquiz

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProfileField is one sub-step of profile collection
type ProfileField string

const (
	FieldAge        ProfileField = "age"
	FieldOccupation ProfileField = "occupation"
	FieldGender     ProfileField = "gender"
	FieldInterests  ProfileField = "interests"
)

// ProfileFields lists the profile sub-steps in order
var ProfileFields = []ProfileField{FieldAge, FieldOccupation, FieldGender, FieldInterests}

// GenderOptions are the accepted gender answers
var GenderOptions = []string{"Male", "Female", "Non-binary", "Prefer not to say"}

const (
	MinAge       = 10
	MaxAge       = 80
	MaxInterests = 5
)

var (
	// ErrWrongStep is returned when an operation does not apply to the current step
	ErrWrongStep = errors.New("operation not allowed in the current step")
	// ErrItemNotReady is returned when answering an item that is still generating
	ErrItemNotReady = errors.New("question is not ready yet")
	// ErrInvalidInput is wrapped by every rejected user input
	ErrInvalidInput = errors.New("invalid input")
)

// Generator is the part of the scheduler the flow drives
type Generator interface {
	Start(step FlowStep, profile UserProfile, templates []QuizItemTemplate)
	Cancel()
	Forget()
}

// ControllerOptions configures a Controller. Zero values select defaults.
type ControllerOptions struct {
	IdleTimeout time.Duration
	Logger      *zap.Logger
	Recorder    ResultRecorder
	Analyst     *Analyst
	Now         func() time.Time
}

// Controller drives the quiz through its steps. Every transition is written
// to the session store before the method returns.
type Controller struct {
	session  *Session
	gen      Generator
	recorder ResultRecorder
	analyst  *Analyst
	idle     time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu        sync.Mutex
	lastInput time.Time
}

// NewController creates a controller over session and gen
func NewController(session *Session, gen Generator, opts ControllerOptions) *Controller {
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = DefaultIdleLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{
		session:  session,
		gen:      gen,
		recorder: opts.Recorder,
		analyst:  opts.Analyst,
		idle:     opts.IdleTimeout,
		now:      opts.Now,
		logger:   orNop(opts.Logger),
	}
	c.lastInput = c.now()
	return c
}

// State returns a copy of the session state
func (c *Controller) State() *SessionState {
	return c.session.Snapshot()
}

// Resume restarts generation for a session that was persisted mid-quiz. Only
// indices without an item are dispatched.
func (c *Controller) Resume() {
	c.touch()
	st := c.session.Snapshot()
	if st.FlowStep != StepQuiz {
		return
	}
	c.logger.Info("resuming quiz",
		zap.Int("index", st.CurrentIndex),
		zap.Int("ready_items", st.ReadyCount()))
	c.gen.Start(StepQuiz, st.Profile, c.session.Templates())
}

// Begin leaves the welcome screen
func (c *Controller) Begin() error {
	c.touch()
	return c.session.Update(func(st *SessionState) error {
		if st.FlowStep != StepWelcome {
			return fmt.Errorf("%w: begin from %s", ErrWrongStep, st.FlowStep)
		}
		st.FlowStep = StepProfileCollection
		st.ProfileStep = 0
		return nil
	})
}

// CurrentField returns the profile sub-step waiting for input
func (c *Controller) CurrentField() (ProfileField, bool) {
	st := c.session.Snapshot()
	if st.FlowStep != StepProfileCollection {
		return "", false
	}
	return ProfileFields[st.ProfileStep], true
}

// SubmitProfileField validates and stores the value of the current sub-step
// and advances. Completing the last sub-step enters the quiz and starts
// generation.
func (c *Controller) SubmitProfileField(value string) error {
	c.touch()
	var enteredQuiz bool
	var profile UserProfile
	err := c.session.Update(func(st *SessionState) error {
		if st.FlowStep != StepProfileCollection {
			return fmt.Errorf("%w: profile input in %s", ErrWrongStep, st.FlowStep)
		}
		if err := st.Profile.SetField(ProfileFields[st.ProfileStep], value); err != nil {
			return err
		}
		if st.ProfileStep < len(ProfileFields)-1 {
			st.ProfileStep++
			return nil
		}
		st.FlowStep = StepQuiz
		st.CurrentIndex = 0
		enteredQuiz = true
		profile = st.Profile
		return nil
	})
	if err != nil {
		return err
	}
	if enteredQuiz {
		c.logger.Info("profile complete, entering quiz", zap.String("occupation", profile.Occupation))
		c.gen.Start(StepQuiz, profile, c.session.Templates())
	}
	return nil
}

// SetField checks one profile answer and stores it
func (p *UserProfile) SetField(field ProfileField, value string) error {
	value = strings.TrimSpace(value)
	switch field {
	case FieldAge:
		if value == "" {
			if p.Age == 0 {
				p.Age = DefaultAge
			}
			return nil
		}
		age, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: age must be a number", ErrInvalidInput)
		}
		if err := validate.Var(age, fmt.Sprintf("min=%d,max=%d", MinAge, MaxAge)); err != nil {
			return fmt.Errorf("%w: age must be between %d and %d", ErrInvalidInput, MinAge, MaxAge)
		}
		p.Age = age
	case FieldOccupation:
		if err := validate.Var(value, "required,max=100"); err != nil {
			return fmt.Errorf("%w: occupation is required", ErrInvalidInput)
		}
		p.Occupation = value
	case FieldGender:
		if value == "" {
			p.Gender = GenderOptions[len(GenderOptions)-1]
			return nil
		}
		for _, opt := range GenderOptions {
			if strings.EqualFold(opt, value) {
				p.Gender = opt
				return nil
			}
		}
		return fmt.Errorf("%w: gender must be one of %s", ErrInvalidInput, strings.Join(GenderOptions, ", "))
	case FieldInterests:
		tags := SplitTags(value)
		if err := validate.Var(tags, fmt.Sprintf("max=%d,dive,max=40", MaxInterests)); err != nil {
			return fmt.Errorf("%w: at most %d interests of up to 40 characters", ErrInvalidInput, MaxInterests)
		}
		p.Interests = tags
	default:
		return fmt.Errorf("%w: unknown profile field %q", ErrInvalidInput, field)
	}
	return nil
}

// CurrentItem returns the item to answer. It returns false while the item is
// still generating.
func (c *Controller) CurrentItem() (*GeneratedItem, bool) {
	st := c.session.Snapshot()
	if st.FlowStep != StepQuiz || st.CurrentIndex >= len(st.Items) {
		return nil, false
	}
	item := st.Items[st.CurrentIndex]
	return item, item != nil
}

// Progress returns the current question number, the total and the number of
// items generated so far
func (c *Controller) Progress() (index, total, ready int) {
	st := c.session.Snapshot()
	return st.CurrentIndex, len(st.Items), st.ReadyCount()
}

// Answer records value for the current item and advances. Answering the last
// item moves to naming and stops generation.
func (c *Controller) Answer(value string) error {
	c.touch()
	var finished bool
	err := c.session.Update(func(st *SessionState) error {
		if st.FlowStep != StepQuiz {
			return fmt.Errorf("%w: answer in %s", ErrWrongStep, st.FlowStep)
		}
		if st.CurrentIndex >= len(st.Items) {
			return fmt.Errorf("%w: no question left", ErrWrongStep)
		}
		item := st.Items[st.CurrentIndex]
		if item == nil {
			return ErrItemNotReady
		}
		if !item.HasChoice(value) {
			return fmt.Errorf("%w: %q is not an option of question %d", ErrInvalidInput, value, item.ID)
		}
		st.Answers[item.ID] = value
		st.CurrentIndex++
		if st.CurrentIndex == len(st.Items) {
			st.FlowStep = StepNaming
			finished = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if finished {
		c.logger.Info("all questions answered")
		c.gen.Cancel()
	}
	return nil
}

// SubmitName stores the display name, derives the type and shows results
func (c *Controller) SubmitName(ctx context.Context, name string) error {
	c.touch()
	name = strings.TrimSpace(name)
	if err := validate.Var(name, "required,max=60"); err != nil {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	var rec ResultRecord
	err := c.session.Update(func(st *SessionState) error {
		if st.FlowStep != StepNaming {
			return fmt.Errorf("%w: naming in %s", ErrWrongStep, st.FlowStep)
		}
		st.Profile.DisplayName = name
		st.DerivedType, st.Scores = Score(st.Answers)
		st.FlowStep = StepResults
		rec = ResultRecord{
			ID:        uuid.NewString(),
			Name:      name,
			Type:      st.DerivedType,
			Scores:    st.Scores,
			CreatedAt: c.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Info("quiz finished", zap.String("type", rec.Type))
	if c.recorder != nil {
		if err := c.recorder.RecordResult(ctx, rec); err != nil {
			c.logger.Warn("failed to record result", zap.Error(err))
		}
	}
	return nil
}

// Analyze produces the narrative analysis of the result, reusing a stored
// non-fallback analysis
func (c *Controller) Analyze(ctx context.Context) (Analysis, error) {
	c.touch()
	st := c.session.Snapshot()
	if st.FlowStep != StepResults {
		return Analysis{}, fmt.Errorf("%w: analysis in %s", ErrWrongStep, st.FlowStep)
	}
	if st.Analysis != nil && !st.Analysis.Fallback {
		return *st.Analysis, nil
	}
	if c.analyst == nil {
		return FallbackAnalysis(st.DerivedType), nil
	}

	a := c.analyst.Analyze(ctx, st.DerivedType, st.Scores, st.Profile)
	err := c.session.Update(func(st *SessionState) error {
		if st.FlowStep != StepResults {
			return fmt.Errorf("%w: session changed during analysis", ErrWrongStep)
		}
		st.Analysis = &a
		return nil
	})
	return a, err
}

// Ask sends a follow-up question about the result and returns the reply
func (c *Controller) Ask(ctx context.Context, question string) (ChatMessage, error) {
	c.touch()
	question = strings.TrimSpace(question)
	if question == "" {
		return ChatMessage{}, fmt.Errorf("%w: empty question", ErrInvalidInput)
	}
	st := c.session.Snapshot()
	if st.FlowStep != StepResults {
		return ChatMessage{}, fmt.Errorf("%w: chat in %s", ErrWrongStep, st.FlowStep)
	}

	userMsg := ChatMessage{
		ID:        uuid.NewString(),
		Role:      ChatRoleUser,
		Content:   question,
		CreatedAt: c.now().UTC(),
	}
	var reply ChatMessage
	if c.analyst == nil {
		reply = FallbackReply(st.DerivedType, len(st.Chat))
	} else {
		reply = c.analyst.Ask(ctx, question, st.DerivedType, st.Scores, st.Profile, st.Chat)
	}

	err := c.session.Update(func(st *SessionState) error {
		if st.FlowStep != StepResults {
			return fmt.Errorf("%w: session changed during chat", ErrWrongStep)
		}
		st.Chat = append(st.Chat, userMsg, reply)
		return nil
	})
	return reply, err
}

// Reset stops generation, clears the stored session and returns to welcome
func (c *Controller) Reset(ctx context.Context) error {
	c.touch()
	c.gen.Cancel()
	c.gen.Forget()
	if err := c.session.Reset(ctx); err != nil {
		return err
	}
	c.logger.Info("session reset")
	return nil
}

// Touch records user activity without any other input
func (c *Controller) Touch() {
	c.touch()
}

func (c *Controller) touch() {
	c.mu.Lock()
	c.lastInput = c.now()
	c.mu.Unlock()
}

// CheckIdle resets the session when no input arrived within the idle
// timeout. It reports whether a reset happened.
func (c *Controller) CheckIdle(ctx context.Context) (bool, error) {
	c.mu.Lock()
	idleFor := c.now().Sub(c.lastInput)
	c.mu.Unlock()

	if c.idle <= 0 || idleFor < c.idle {
		return false, nil
	}
	if c.session.Snapshot().FlowStep == StepWelcome {
		return false, nil
	}
	c.logger.Info("idle timeout reached, resetting", zap.Duration("idle", idleFor))
	return true, c.Reset(ctx)
}
