package personaquiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const questionSystemPrompt = `You are an expert MBTI personality psychologist. Your task is to rewrite standard MBTI questions to be highly personalized based on the user's background.
Keep the core psychological dimension of the question exactly the same, but change the scenario to fit the user's life.
The user will provide their Age, Occupation, Gender, and Interests.
Output JSON format only.`

// Personalizer produces the personalized version of one template
type Personalizer interface {
	Personalize(ctx context.Context, profile UserProfile, tpl QuizItemTemplate) (GeneratedItem, error)
}

// QuestionMaker rewrites templates through the model
type QuestionMaker struct {
	caller Caller
}

// NewQuestionMaker creates a question maker. A nil caller means no endpoint is
// configured and every call fails with a ConfigurationError.
func NewQuestionMaker(caller Caller) *QuestionMaker {
	return &QuestionMaker{caller: caller}
}

// questionOutput is the raw model answer before checks
type questionOutput struct {
	ID        int    `json:"id"`
	Text      string `json:"text"`
	Dimension string `json:"dimension"`
	OptionA   Choice `json:"optionA"`
	OptionB   Choice `json:"optionB"`
}

// Personalize rewrites tpl for profile. The result keeps the template's id,
// dimension and choice values; only the wording changes.
func (qm *QuestionMaker) Personalize(ctx context.Context, profile UserProfile, tpl QuizItemTemplate) (GeneratedItem, error) {
	if qm.caller == nil {
		return GeneratedItem{}, &ConfigurationError{Field: "APIKey", Reason: "no model endpoint configured"}
	}

	prompt, err := qm.buildPrompt(profile, tpl)
	if err != nil {
		return GeneratedItem{}, err
	}

	var raw questionOutput
	if err := qm.caller.Call(ctx, Request{
		Shape:  ShapeQuestion,
		System: questionSystemPrompt,
		User:   prompt,
	}, &raw); err != nil {
		return GeneratedItem{}, fmt.Errorf("failed to personalize question %d: %w", tpl.ID, err)
	}

	item, err := checkQuestion(raw, tpl)
	if err != nil {
		return GeneratedItem{}, err
	}
	return item, nil
}

// checkQuestion rejects answers that changed what the question measures
func checkQuestion(raw questionOutput, tpl QuizItemTemplate) (GeneratedItem, error) {
	dim := Dimension(strings.ReplaceAll(strings.ToUpper(raw.Dimension), "-", ""))
	if dim != tpl.Dimension {
		return GeneratedItem{}, &MalformedResponse{Shape: ShapeQuestion,
			Reason: fmt.Sprintf("dimension changed from %s to %s", tpl.Dimension, raw.Dimension)}
	}

	a, b := raw.OptionA, raw.OptionB
	switch {
	case a.Value == tpl.ChoiceA.Value && b.Value == tpl.ChoiceB.Value:
	case a.Value == tpl.ChoiceB.Value && b.Value == tpl.ChoiceA.Value:
		a, b = b, a
	default:
		return GeneratedItem{}, &MalformedResponse{Shape: ShapeQuestion,
			Reason: fmt.Sprintf("option values %q/%q do not match %q/%q", a.Value, b.Value, tpl.ChoiceA.Value, tpl.ChoiceB.Value)}
	}

	return GeneratedItem{
		ID:        tpl.ID,
		Text:      strings.TrimSpace(raw.Text),
		Dimension: tpl.Dimension,
		ChoiceA:   Choice{Text: strings.TrimSpace(a.Text), Value: a.Value},
		ChoiceB:   Choice{Text: strings.TrimSpace(b.Text), Value: b.Value},
	}, nil
}

func (qm *QuestionMaker) buildPrompt(profile UserProfile, tpl QuizItemTemplate) (string, error) {
	base, err := json.Marshal(FromTemplate(tpl))
	if err != nil {
		return "", fmt.Errorf("failed to encode template %d: %w", tpl.ID, err)
	}

	var sb strings.Builder
	sb.WriteString(profileBlock(profile))
	sb.WriteString("\nTask:\n")
	sb.WriteString("Rewrite the following MBTI question to be highly relevant to the user's specific scenario (occupation, interests, age).\n")
	sb.WriteString("The core psychological meaning (Dimension) MUST remain exactly the same.\n")
	sb.WriteString("The options (A/B) must remain binary and distinct, and keep their original values.\n\n")
	sb.WriteString("Question to rewrite:\n")
	sb.Write(base)
	sb.WriteString("\n\nReturn a JSON object with: id (same as input), text (rewritten question), dimension, optionA (text, value), optionB (text, value).\n")
	return sb.String(), nil
}

// profileBlock renders the user scenario shared by all prompts
func profileBlock(profile UserProfile) string {
	var sb strings.Builder
	sb.WriteString("User Scenario:\n")
	sb.WriteString(fmt.Sprintf("- Age: %d\n", profile.Age))
	sb.WriteString(fmt.Sprintf("- Occupation: %s\n", profile.Occupation))
	sb.WriteString(fmt.Sprintf("- Gender: %s\n", profile.Gender))
	sb.WriteString(fmt.Sprintf("- Interests: %s\n", strings.Join(profile.Interests, ", ")))
	return sb.String()
}
