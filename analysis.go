package personaquiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	analysisSystemPrompt = "You are an expert MBTI psychologist and career counselor. Provide insightful, personalized personality analysis based on MBTI types and individual context."
	chatSystemPrompt     = "You are a friendly, knowledgeable MBTI personality guide. Answer questions about personality types in a warm, encouraging, and personalized way. Be authentic and practical in your advice."

	// chatHistoryTurns is how many earlier chat messages go with a question
	chatHistoryTurns = 5
)

// Analyst writes the narrative analysis of a result and answers follow-up
// questions. Both go through the executor and never fail.
type Analyst struct {
	caller Caller
	exec   *Executor
	logger *zap.Logger
	now    func() time.Time
}

// NewAnalyst creates an analyst. A nil caller always yields fallback content.
func NewAnalyst(caller Caller, exec *Executor, logger *zap.Logger) *Analyst {
	return &Analyst{caller: caller, exec: exec, logger: orNop(logger), now: time.Now}
}

// analysisOutput accepts both key sets models use for the analysis
type analysisOutput struct {
	Summary            string   `json:"summary"`
	Overview           string   `json:"overview"`
	Strengths          []string `json:"strengths"`
	Challenges         []string `json:"challenges"`
	GrowthAreas        []string `json:"growthAreas"`
	CareerSuggestions  []string `json:"careerSuggestions"`
	Relationships      string   `json:"relationships"`
	CommunicationStyle string   `json:"communicationStyle"`
	GrowthTips         []string `json:"growthTips"`
	DevelopmentTips    []string `json:"developmentTips"`
}

func (o analysisOutput) analysis() Analysis {
	return Analysis{
		Summary:           firstNonEmpty(o.Summary, o.Overview),
		Strengths:         o.Strengths,
		Challenges:        firstList(o.Challenges, o.GrowthAreas),
		CareerSuggestions: o.CareerSuggestions,
		Relationships:     firstNonEmpty(o.Relationships, o.CommunicationStyle),
		GrowthTips:        firstList(o.GrowthTips, o.DevelopmentTips),
	}
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func firstList(a, b []string) []string {
	if len(a) > 0 {
		return a
	}
	return b
}

// Analyze returns the analysis of personalityType for profile
func (an *Analyst) Analyze(ctx context.Context, personalityType string, scores map[string]int, profile UserProfile) Analysis {
	prompt := analysisPrompt(personalityType, scores, profile)
	return Run(ctx, an.exec, "analysis", func(ctx context.Context) (Analysis, error) {
		if an.caller == nil {
			return Analysis{}, &ConfigurationError{Field: "APIKey", Reason: "no model endpoint configured"}
		}
		var out analysisOutput
		if err := an.caller.Call(ctx, Request{
			Shape:       ShapeAnalysis,
			System:      analysisSystemPrompt,
			User:        prompt,
			Temperature: 0.7,
		}, &out); err != nil {
			return Analysis{}, fmt.Errorf("failed to analyze %s: %w", personalityType, err)
		}
		return out.analysis(), nil
	}, FallbackAnalysis(personalityType))
}

// chatOutput is the JSON reply of a chat call. Continuation is opaque and is
// kept byte for byte.
type chatOutput struct {
	Content      string          `json:"content"`
	Continuation json.RawMessage `json:"continuation,omitempty"`
}

// Ask answers question in the context of the result and the recent chat
func (an *Analyst) Ask(ctx context.Context, question, personalityType string, scores map[string]int, profile UserProfile, history []ChatMessage) ChatMessage {
	if len(history) > chatHistoryTurns {
		history = history[len(history)-chatHistoryTurns:]
	}
	turns := make([]Turn, 0, len(history))
	for _, msg := range history {
		turns = append(turns, historyTurn(msg))
	}
	prompt := chatPrompt(question, personalityType, scores, profile)

	fallback := FallbackReply(personalityType, len(history))
	fallback.CreatedAt = an.now().UTC()

	return Run(ctx, an.exec, "chat", func(ctx context.Context) (ChatMessage, error) {
		if an.caller == nil {
			return ChatMessage{}, &ConfigurationError{Field: "APIKey", Reason: "no model endpoint configured"}
		}
		var out chatOutput
		if err := an.caller.Call(ctx, Request{
			Shape:       ShapeChat,
			System:      chatSystemPrompt,
			User:        prompt,
			History:     turns,
			Temperature: 0.8,
			MaxTokens:   300,
		}, &out); err != nil {
			return ChatMessage{}, fmt.Errorf("failed to answer chat question: %w", err)
		}
		msg := ChatMessage{
			ID:        uuid.NewString(),
			Role:      ChatRoleAssistant,
			Content:   strings.TrimSpace(out.Content),
			CreatedAt: an.now().UTC(),
		}
		if len(out.Continuation) > 0 && string(out.Continuation) != "null" {
			msg.Continuation = string(out.Continuation)
		}
		return msg, nil
	}, fallback)
}

// historyTurn converts a stored message back into a model turn. Assistant
// turns are replayed in their JSON form with the continuation unchanged.
func historyTurn(msg ChatMessage) Turn {
	if msg.Role != ChatRoleAssistant {
		return Turn{Role: ChatRoleUser, Content: msg.Content}
	}
	out := chatOutput{Content: msg.Content}
	if msg.Continuation != "" && json.Valid([]byte(msg.Continuation)) {
		out.Continuation = json.RawMessage(msg.Continuation)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return Turn{Role: ChatRoleAssistant, Content: msg.Content}
	}
	return Turn{Role: ChatRoleAssistant, Content: string(data)}
}

func analysisPrompt(personalityType string, scores map[string]int, profile UserProfile) string {
	var sb strings.Builder
	sb.WriteString(profileBlock(profile))
	sb.WriteString(fmt.Sprintf("- Personality Type: %s\n", personalityType))
	sb.WriteString(fmt.Sprintf("- Scores: %s\n", scoresJSON(scores)))
	sb.WriteString("\nTask:\n")
	sb.WriteString(fmt.Sprintf("Provide a comprehensive personality analysis for this %s individual.\n", personalityType))
	sb.WriteString("Make it highly personalized based on their specific context (age, occupation, interests).\n")
	sb.WriteString("Be encouraging, insightful, and practical.\n\n")
	sb.WriteString("Return a JSON object with:\n")
	sb.WriteString("- summary: A personalized 2-3 sentence overview of their personality type\n")
	sb.WriteString("- strengths: Array of 4-6 specific strengths relevant to their situation\n")
	sb.WriteString("- challenges: Array of 3-4 potential challenges or areas for growth\n")
	sb.WriteString("- careerSuggestions: Array of 6-8 career paths that would suit their personality and background\n")
	sb.WriteString("- relationships: A personalized paragraph about their relationship style and communication preferences\n")
	sb.WriteString("- growthTips: Array of 4-5 actionable personal growth tips specific to their personality and context\n")
	return sb.String()
}

func chatPrompt(question, personalityType string, scores map[string]int, profile UserProfile) string {
	var sb strings.Builder
	sb.WriteString(profileBlock(profile))
	sb.WriteString(fmt.Sprintf("- Personality Type: %s\n", personalityType))
	sb.WriteString(fmt.Sprintf("- Scores: %s\n", scoresJSON(scores)))
	sb.WriteString(fmt.Sprintf("\nUser's Question: %q\n\n", question))
	sb.WriteString(fmt.Sprintf("Answer the user's question about their %s personality type. ", personalityType))
	sb.WriteString("Consider their specific context (age, occupation, interests) and provide personalized, practical advice. ")
	sb.WriteString("Be supportive and encouraging, reference their MBTI traits appropriately and avoid being overly clinical. ")
	sb.WriteString("Keep it conversational, around 2-4 sentences.\n\n")
	sb.WriteString("Return a JSON object with: content (your answer). ")
	sb.WriteString("If you need to carry state to the next turn, put it in continuation.\n")
	return sb.String()
}

func scoresJSON(scores map[string]int) string {
	data, err := json.Marshal(scores)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// FallbackAnalysis is the canned analysis used when the model is unavailable
func FallbackAnalysis(personalityType string) Analysis {
	return Analysis{
		Summary:           fmt.Sprintf("As a %s, you have a unique personality with distinctive traits and preferences that shape how you interact with the world.", personalityType),
		Strengths:         []string{"Authentic self-expression", "Strong values alignment", "Adaptability", "Creative problem-solving"},
		Challenges:        []string{"Balancing idealism with practicality", "Managing stress in high-pressure situations", "Difficulty with routine tasks"},
		CareerSuggestions: []string{"Creative Director", "Counselor", "Writer", "Teacher", "Entrepreneur", "Designer"},
		Relationships:     "You value deep, meaningful connections and tend to be warm, empathetic, and supportive in your relationships. You appreciate authenticity and emotional honesty.",
		GrowthTips:        []string{"Practice mindfulness to stay present", "Develop structured routines for important tasks", "Find healthy outlets for emotional expression", "Set boundaries to prevent burnout"},
		Fallback:          true,
	}
}

var fallbackReplies = []string{
	"That's a great question about your %s personality! Based on your type, you tend to approach situations with creativity and authenticity. Would you like me to elaborate on any specific aspect?",
	"As a %s, you have unique strengths that can help with this. Your natural empathy and insight often guide you well in these situations.",
	"That's an interesting aspect of being a %s! You likely approach this with your characteristic idealism and personal values. How does this resonate with your experience?",
}

// FallbackReply returns one of the canned chat replies. The choice rotates
// with n so repeated failures do not repeat the same text.
func FallbackReply(personalityType string, n int) ChatMessage {
	if n < 0 {
		n = -n
	}
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      ChatRoleAssistant,
		Content:   fmt.Sprintf(fallbackReplies[n%len(fallbackReplies)], personalityType),
		Fallback:  true,
		CreatedAt: time.Now().UTC(),
	}
}
