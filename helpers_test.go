package personaquiz

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// testTemplates builds n templates cycling over the four axes
func testTemplates(n int) []QuizItemTemplate {
	axes := []struct {
		dim  Dimension
		a, b string
	}{
		{DimensionEI, "E", "I"},
		{DimensionSN, "S", "N"},
		{DimensionTF, "T", "F"},
		{DimensionJP, "J", "P"},
	}
	templates := make([]QuizItemTemplate, n)
	for i := range templates {
		ax := axes[i%len(axes)]
		templates[i] = QuizItemTemplate{
			ID:        i + 1,
			Dimension: ax.dim,
			Text:      fmt.Sprintf("Base question %d", i+1),
			ChoiceA:   Choice{Text: fmt.Sprintf("Option A%d", i+1), Value: ax.a},
			ChoiceB:   Choice{Text: fmt.Sprintf("Option B%d", i+1), Value: ax.b},
		}
	}
	return templates
}

func testProfile() UserProfile {
	return UserProfile{Age: 25, Occupation: "Engineer", Gender: "Female", Interests: []string{"Hiking"}}
}

func newTestSession(t *testing.T, templates []QuizItemTemplate) (*Session, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	session, err := OpenSession(context.Background(), store, templates, nil)
	require.NoError(t, err)
	return session, store
}

// MockCaller is a testify mock of the API gateway. The reply registered with
// Return is JSON-decoded into out.
type MockCaller struct {
	mock.Mock
}

func (m *MockCaller) Call(ctx context.Context, req Request, out any) error {
	ret := m.Called(ctx, req)
	if body, ok := ret.Get(0).(string); ok && body != "" && out != nil {
		if err := json.Unmarshal([]byte(body), out); err != nil {
			return err
		}
	}
	return ret.Error(1)
}

var _ Caller = (*MockCaller)(nil)

// gatedMaker is a Personalizer whose calls block until released. It records
// how many calls ran at once and how often each template was requested.
type gatedMaker struct {
	mu      sync.Mutex
	calls   map[int]int
	active  int
	peak    int
	release chan struct{}
	fail    map[int]bool
	seen    []UserProfile
}

func newGatedMaker() *gatedMaker {
	return &gatedMaker{
		calls:   make(map[int]int),
		release: make(chan struct{}),
		fail:    make(map[int]bool),
	}
}

func (g *gatedMaker) Personalize(ctx context.Context, profile UserProfile, tpl QuizItemTemplate) (GeneratedItem, error) {
	g.mu.Lock()
	g.calls[tpl.ID]++
	g.active++
	if g.active > g.peak {
		g.peak = g.active
	}
	g.seen = append(g.seen, profile)
	fail := g.fail[tpl.ID]
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
	}()

	select {
	case <-g.release:
	case <-ctx.Done():
		return GeneratedItem{}, ctx.Err()
	}

	if fail {
		return GeneratedItem{}, &MalformedResponse{Shape: ShapeQuestion, Reason: "test failure"}
	}
	item := FromTemplate(tpl)
	item.Text = fmt.Sprintf("For a %s: %s", profile.Occupation, tpl.Text)
	return item, nil
}

// releaseOne lets exactly one blocked call finish
func (g *gatedMaker) releaseOne() {
	g.release <- struct{}{}
}

// releaseAll lets every present and future call finish
func (g *gatedMaker) releaseAll() {
	close(g.release)
}

func (g *gatedMaker) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

func (g *gatedMaker) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

func (g *gatedMaker) Calls(id int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[id]
}

func (g *gatedMaker) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *gatedMaker) Profiles() []UserProfile {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]UserProfile(nil), g.seen...)
}
