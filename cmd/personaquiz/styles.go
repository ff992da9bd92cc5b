package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"personaquiz"
)

var (
	primary = lipgloss.Color("#7C3AED")
	accent  = lipgloss.Color("#06B6D4")
	muted   = lipgloss.Color("#6B7280")
	good    = lipgloss.Color("#10B981")
	bad     = lipgloss.Color("#EF4444")
)

// styles of the terminal output
var (
	titleStyle = lipgloss.NewStyle().
			Foreground(primary).
			Bold(true).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Background(primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(muted)

	promptStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(bad).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(good).
			Bold(true)

	cardStyle = lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primary)

	replyStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(accent)
)

// renderItem draws one question card
func renderItem(item *personaquiz.GeneratedItem, index, total int) string {
	var sb strings.Builder
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("Question %d of %d", index+1, total)))
	sb.WriteString("\n\n")
	sb.WriteString(lipgloss.NewStyle().Bold(true).Render(item.Text))
	sb.WriteString("\n\n")
	sb.WriteString(promptStyle.Render("[A] ") + item.ChoiceA.Text + "\n")
	sb.WriteString(promptStyle.Render("[B] ") + item.ChoiceB.Text)
	return cardStyle.Render(sb.String())
}

// renderScores draws the eight letter counts as bars, one axis per line
func renderScores(scores map[string]int) string {
	var sb strings.Builder
	letters := personaquiz.ScoreLetters
	for i := 0; i < len(letters); i += 2 {
		a, b := letters[i], letters[i+1]
		sb.WriteString(fmt.Sprintf("%s %-10s %2d | %-2d %10s %s\n",
			a, strings.Repeat("█", scores[a]), scores[a],
			scores[b], strings.Repeat("█", scores[b]), b))
	}
	return sb.String()
}

// renderAnalysis draws the narrative analysis
func renderAnalysis(a personaquiz.Analysis) string {
	var sb strings.Builder
	sb.WriteString(a.Summary + "\n")
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		sb.WriteString("\n" + titleStyle.Render(title) + "\n")
		for _, it := range items {
			sb.WriteString("  • " + it + "\n")
		}
	}
	section("Strengths", a.Strengths)
	section("Challenges", a.Challenges)
	section("Careers", a.CareerSuggestions)
	if a.Relationships != "" {
		sb.WriteString("\n" + titleStyle.Render("Relationships") + "\n")
		sb.WriteString(a.Relationships + "\n")
	}
	section("Growth tips", a.GrowthTips)
	return cardStyle.Render(strings.TrimRight(sb.String(), "\n"))
}
