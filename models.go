package personaquiz

import "time"

// Dimension is one of the four personality axes a question measures
type Dimension string

const (
	DimensionEI Dimension = "EI"
	DimensionSN Dimension = "SN"
	DimensionTF Dimension = "TF"
	DimensionJP Dimension = "JP"
)

// Valid reports whether d is one of the four known axes
func (d Dimension) Valid() bool {
	switch d {
	case DimensionEI, DimensionSN, DimensionTF, DimensionJP:
		return true
	}
	return false
}

// Choice is one side of a binary question
type Choice struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// QuizItemTemplate is a static base question from the bank. Never mutated.
type QuizItemTemplate struct {
	ID        int       `json:"id"`
	Dimension Dimension `json:"dimension"`
	Text      string    `json:"text"`
	ChoiceA   Choice    `json:"choiceA"`
	ChoiceB   Choice    `json:"choiceB"`
}

// GeneratedItem is the personalized version of a template, or a verbatim
// fallback copy of it
type GeneratedItem struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	Dimension Dimension `json:"dimension"`
	ChoiceA   Choice    `json:"optionA"`
	ChoiceB   Choice    `json:"optionB"`
}

// FromTemplate reshapes a template into the fallback GeneratedItem
func FromTemplate(t QuizItemTemplate) GeneratedItem {
	return GeneratedItem{
		ID:        t.ID,
		Text:      t.Text,
		Dimension: t.Dimension,
		ChoiceA:   t.ChoiceA,
		ChoiceB:   t.ChoiceB,
	}
}

// HasChoice reports whether value is one of the item's two answer values
func (g GeneratedItem) HasChoice(value string) bool {
	return value != "" && (value == g.ChoiceA.Value || value == g.ChoiceB.Value)
}

// UserProfile is collected once before generation starts
type UserProfile struct {
	Age         int      `json:"age"`
	Occupation  string   `json:"occupation"`
	Gender      string   `json:"gender"`
	Interests   []string `json:"interests"`
	DisplayName string   `json:"name,omitempty"`
}

// FlowStep is a top-level screen of the quiz
type FlowStep string

const (
	StepWelcome           FlowStep = "welcome"
	StepProfileCollection FlowStep = "data-collection"
	StepQuiz              FlowStep = "quiz"
	StepNaming            FlowStep = "naming"
	StepResults           FlowStep = "results"
)

// Valid reports whether s is a known flow step
func (s FlowStep) Valid() bool {
	switch s {
	case StepWelcome, StepProfileCollection, StepQuiz, StepNaming, StepResults:
		return true
	}
	return false
}

// SlotState is the scheduler's per-template bookkeeping. It is never persisted.
type SlotState int

const (
	SlotNotStarted SlotState = iota
	SlotInFlight
	SlotSettled
)

func (s SlotState) String() string {
	switch s {
	case SlotInFlight:
		return "in-flight"
	case SlotSettled:
		return "settled"
	default:
		return "not-started"
	}
}

// Analysis is the narrative result produced for a personality type
type Analysis struct {
	Summary           string   `json:"summary"`
	Strengths         []string `json:"strengths"`
	Challenges        []string `json:"challenges"`
	CareerSuggestions []string `json:"careerSuggestions"`
	Relationships     string   `json:"relationships"`
	GrowthTips        []string `json:"growthTips"`
	Fallback          bool     `json:"fallback,omitempty"`
}

// ChatRole identifies who wrote a chat message
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of the follow-up chat. Continuation is an opaque
// provider token that must be sent back unchanged with later requests.
type ChatMessage struct {
	ID           string    `json:"id"`
	Role         ChatRole  `json:"type"`
	Content      string    `json:"message"`
	Continuation string    `json:"continuation,omitempty"`
	Fallback     bool      `json:"fallback,omitempty"`
	CreatedAt    time.Time `json:"timestamp"`
}

// SessionState is the single persisted aggregate of a quiz run
type SessionState struct {
	FlowStep     FlowStep         `json:"step"`
	ProfileStep  int              `json:"dataStep"`
	Profile      UserProfile      `json:"userContext"`
	Items        []*GeneratedItem `json:"questions"`
	CurrentIndex int              `json:"currentQuestionIndex"`
	Answers      map[int]string   `json:"answers"`
	DerivedType  string           `json:"result"`
	Scores       map[string]int   `json:"scores"`
	Analysis     *Analysis        `json:"analysis,omitempty"`
	Chat         []ChatMessage    `json:"chat,omitempty"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// NewSessionState returns the initial state for n templates
func NewSessionState(n int) *SessionState {
	return &SessionState{
		FlowStep: StepWelcome,
		Profile:  UserProfile{Age: DefaultAge},
		Items:    make([]*GeneratedItem, n),
		Answers:  make(map[int]string),
	}
}

// Clone returns a deep copy of the state
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	c := *s
	c.Profile.Interests = append([]string(nil), s.Profile.Interests...)
	c.Items = make([]*GeneratedItem, len(s.Items))
	for i, item := range s.Items {
		if item != nil {
			cp := *item
			c.Items[i] = &cp
		}
	}
	c.Answers = make(map[int]string, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	if s.Scores != nil {
		c.Scores = make(map[string]int, len(s.Scores))
		for k, v := range s.Scores {
			c.Scores[k] = v
		}
	}
	if s.Analysis != nil {
		a := *s.Analysis
		c.Analysis = &a
	}
	c.Chat = append([]ChatMessage(nil), s.Chat...)
	return &c
}

// ReadyCount returns how many items have been generated so far
func (s *SessionState) ReadyCount() int {
	n := 0
	for _, item := range s.Items {
		if item != nil {
			n++
		}
	}
	return n
}
