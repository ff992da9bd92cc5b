package personaquiz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingGenerator remembers how the flow drove generation
type recordingGenerator struct {
	mu       sync.Mutex
	starts   []UserProfile
	cancels  int
	forgets  int
	lastStep FlowStep
}

func (g *recordingGenerator) Start(step FlowStep, profile UserProfile, templates []QuizItemTemplate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.starts = append(g.starts, profile)
	g.lastStep = step
}

func (g *recordingGenerator) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels++
}

func (g *recordingGenerator) Forget() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forgets++
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type resultRecorder struct {
	records []ResultRecord
}

func (r *resultRecorder) RecordResult(ctx context.Context, rec ResultRecord) error {
	r.records = append(r.records, rec)
	return nil
}

type flowFixture struct {
	templates []QuizItemTemplate
	session   *Session
	store     *MemoryStore
	gen       *recordingGenerator
	clock     *fakeClock
	ctrl      *Controller
}

func newFlowFixture(t *testing.T, opts ControllerOptions) *flowFixture {
	t.Helper()
	templates := testTemplates(4)
	session, store := newTestSession(t, templates)
	f := &flowFixture{
		templates: templates,
		session:   session,
		store:     store,
		gen:       &recordingGenerator{},
		clock:     &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)},
	}
	opts.Now = f.clock.Now
	f.ctrl = NewController(session, f.gen, opts)
	return f
}

// toQuiz walks the profile questions
func (f *flowFixture) toQuiz(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ctrl.Begin())
	for _, v := range []string{"30", "Engineer", "female", "Hiking, Chess"} {
		require.NoError(t, f.ctrl.SubmitProfileField(v))
	}
}

func (f *flowFixture) generateAll(t *testing.T) {
	t.Helper()
	for i, tpl := range f.templates {
		require.NoError(t, f.session.SetItem(f.session.Epoch(), i, FromTemplate(tpl)))
	}
}

func TestController_HappyPath(t *testing.T) {
	rec := &resultRecorder{}
	f := newFlowFixture(t, ControllerOptions{Recorder: rec})

	f.toQuiz(t)
	st := f.ctrl.State()
	assert.Equal(t, StepQuiz, st.FlowStep)
	assert.Equal(t, UserProfile{Age: 30, Occupation: "Engineer", Gender: "Female", Interests: []string{"Hiking", "Chess"}}, st.Profile)
	require.Len(t, f.gen.starts, 1)
	assert.Equal(t, StepQuiz, f.gen.lastStep)
	assert.Equal(t, "Engineer", f.gen.starts[0].Occupation)

	f.generateAll(t)
	for i := range f.templates {
		item, ok := f.ctrl.CurrentItem()
		require.True(t, ok, "item %d", i)
		require.NoError(t, f.ctrl.Answer(item.ChoiceA.Value))
	}

	st = f.ctrl.State()
	assert.Equal(t, StepNaming, st.FlowStep)
	assert.Equal(t, 1, f.gen.cancels)
	assert.Len(t, st.Answers, len(f.templates))

	require.NoError(t, f.ctrl.SubmitName(context.Background(), "  Sam "))
	st = f.ctrl.State()
	assert.Equal(t, StepResults, st.FlowStep)
	assert.Equal(t, "ESTJ", st.DerivedType)
	assert.Equal(t, "Sam", st.Profile.DisplayName)
	assert.Equal(t, 1, st.Scores["E"])

	require.Len(t, rec.records, 1)
	assert.Equal(t, "ESTJ", rec.records[0].Type)
	assert.NotEmpty(t, rec.records[0].ID)

	persisted, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepResults, persisted.FlowStep)
}

func TestController_AnswerRules(t *testing.T) {
	f := newFlowFixture(t, ControllerOptions{})
	assert.ErrorIs(t, f.ctrl.Answer("E"), ErrWrongStep)

	f.toQuiz(t)
	_, ok := f.ctrl.CurrentItem()
	assert.False(t, ok)
	assert.ErrorIs(t, f.ctrl.Answer("E"), ErrItemNotReady)

	f.generateAll(t)
	assert.ErrorIs(t, f.ctrl.Answer("T"), ErrInvalidInput)
	assert.ErrorIs(t, f.ctrl.Answer(""), ErrInvalidInput)
	assert.Equal(t, 0, f.ctrl.State().CurrentIndex)
	assert.Empty(t, f.ctrl.State().Answers)

	require.NoError(t, f.ctrl.Answer("I"))
	assert.Equal(t, "I", f.ctrl.State().Answers[f.templates[0].ID])
}

func TestController_ProfileValidation(t *testing.T) {
	f := newFlowFixture(t, ControllerOptions{})
	require.NoError(t, f.ctrl.Begin())

	for _, bad := range []string{"9", "81", "old"} {
		assert.ErrorIs(t, f.ctrl.SubmitProfileField(bad), ErrInvalidInput, "age %q", bad)
	}
	field, _ := f.ctrl.CurrentField()
	assert.Equal(t, FieldAge, field)

	require.NoError(t, f.ctrl.SubmitProfileField(""))
	assert.Equal(t, DefaultAge, f.ctrl.State().Profile.Age)

	assert.ErrorIs(t, f.ctrl.SubmitProfileField("   "), ErrInvalidInput)
	require.NoError(t, f.ctrl.SubmitProfileField("Teacher"))

	assert.ErrorIs(t, f.ctrl.SubmitProfileField("robot"), ErrInvalidInput)
	require.NoError(t, f.ctrl.SubmitProfileField(""))
	assert.Equal(t, "Prefer not to say", f.ctrl.State().Profile.Gender)

	assert.ErrorIs(t, f.ctrl.SubmitProfileField("a,b,c,d,e,f"), ErrInvalidInput)
	require.NoError(t, f.ctrl.SubmitProfileField(""))
	assert.Equal(t, StepQuiz, f.ctrl.State().FlowStep)
	assert.Empty(t, f.ctrl.State().Profile.Interests)
}

func TestController_Reset(t *testing.T) {
	f := newFlowFixture(t, ControllerOptions{})
	f.toQuiz(t)
	f.generateAll(t)

	require.NoError(t, f.ctrl.Reset(context.Background()))

	st := f.ctrl.State()
	assert.Equal(t, StepWelcome, st.FlowStep)
	assert.Equal(t, 0, st.ReadyCount())
	assert.Equal(t, 1, f.gen.cancels)
	assert.Equal(t, 1, f.gen.forgets)

	persisted, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestController_IdleTimeout(t *testing.T) {
	f := newFlowFixture(t, ControllerOptions{})

	f.clock.Advance(time.Hour)
	reset, err := f.ctrl.CheckIdle(context.Background())
	require.NoError(t, err)
	assert.False(t, reset, "welcome screen never times out")

	f.toQuiz(t)
	f.clock.Advance(14 * time.Minute)
	reset, err = f.ctrl.CheckIdle(context.Background())
	require.NoError(t, err)
	assert.False(t, reset)

	f.ctrl.Touch()
	f.clock.Advance(14 * time.Minute)
	reset, _ = f.ctrl.CheckIdle(context.Background())
	assert.False(t, reset)

	f.clock.Advance(time.Minute)
	reset, err = f.ctrl.CheckIdle(context.Background())
	require.NoError(t, err)
	assert.True(t, reset)
	assert.Equal(t, StepWelcome, f.ctrl.State().FlowStep)
	assert.Equal(t, 1, f.gen.cancels)
}

func TestController_Resume(t *testing.T) {
	f := newFlowFixture(t, ControllerOptions{})
	f.ctrl.Resume()
	assert.Empty(t, f.gen.starts)

	f.toQuiz(t)
	f.ctrl.Resume()
	require.Len(t, f.gen.starts, 2)
	assert.Equal(t, f.gen.starts[0], f.gen.starts[1])
}

func TestController_ResumeAfterRestart(t *testing.T) {
	f := newFlowFixture(t, ControllerOptions{})
	f.toQuiz(t)
	require.NoError(t, f.session.SetItem(f.session.Epoch(), 0, FromTemplate(f.templates[0])))

	// a second process opens the same store
	session, err := OpenSession(context.Background(), f.store, f.templates, nil)
	require.NoError(t, err)
	gen := &recordingGenerator{}
	ctrl := NewController(session, gen, ControllerOptions{})
	ctrl.Resume()

	require.Len(t, gen.starts, 1)
	assert.Equal(t, "Engineer", gen.starts[0].Occupation)
	item, ok := ctrl.CurrentItem()
	require.True(t, ok)
	assert.Equal(t, f.templates[0].Text, item.Text)
}

func TestController_ResumeWithShrunkenBank(t *testing.T) {
	old := testTemplates(8)
	stored := NewSessionState(len(old))
	stored.FlowStep = StepQuiz
	stored.Profile = testProfile()
	stored.CurrentIndex = 6
	for i := 0; i < 6; i++ {
		stored.Answers[old[i].ID] = old[i].ChoiceB.Value
	}
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), stored))

	session, err := OpenSession(context.Background(), store, testTemplates(4), nil)
	require.NoError(t, err)
	gen := &recordingGenerator{}
	ctrl := NewController(session, gen, ControllerOptions{})
	ctrl.Resume()

	assert.Empty(t, gen.starts, "nothing left to generate")
	require.NoError(t, ctrl.SubmitName(context.Background(), "Sam"))
	assert.Equal(t, "INFP", ctrl.State().DerivedType)
}

func TestController_AnalyzeAndAsk(t *testing.T) {
	caller := &MockCaller{}
	caller.On("Call", mock.Anything, mock.MatchedBy(func(req Request) bool { return req.Shape == ShapeAnalysis })).
		Return(`{"summary":"Steady.","strengths":["Order"],"challenges":["Change"],"careerSuggestions":["Auditor"],"relationships":"Reliable.","growthTips":["Improvise"]}`, nil).Once()
	caller.On("Call", mock.Anything, mock.MatchedBy(func(req Request) bool { return req.Shape == ShapeChat })).
		Return(`{"content":"Schedule downtime."}`, nil)

	f := newFlowFixture(t, ControllerOptions{Analyst: newTestAnalyst(caller)})

	_, err := f.ctrl.Analyze(context.Background())
	assert.ErrorIs(t, err, ErrWrongStep)

	f.toQuiz(t)
	f.generateAll(t)
	for range f.templates {
		item, _ := f.ctrl.CurrentItem()
		require.NoError(t, f.ctrl.Answer(item.ChoiceA.Value))
	}
	require.NoError(t, f.ctrl.SubmitName(context.Background(), "Sam"))

	a, err := f.ctrl.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Steady.", a.Summary)

	again, err := f.ctrl.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a, again, "stored analysis is reused")

	reply, err := f.ctrl.Ask(context.Background(), "How do I relax?")
	require.NoError(t, err)
	assert.Equal(t, "Schedule downtime.", reply.Content)

	st := f.ctrl.State()
	require.Len(t, st.Chat, 2)
	assert.Equal(t, ChatRoleUser, st.Chat[0].Role)
	assert.Equal(t, ChatRoleAssistant, st.Chat[1].Role)
	require.NotNil(t, st.Analysis)

	_, err = f.ctrl.Ask(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	caller.AssertNumberOfCalls(t, "Call", 2)
}
