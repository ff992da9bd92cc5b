package personaquiz

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
)

//go:embed data/templates.json
var templatesJSON []byte

//go:embed data/types.json
var typesJSON []byte

// PersonalityType is the descriptive text of one four-letter type
type PersonalityType struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadTemplates returns the built-in question bank in quiz order
func LoadTemplates() ([]QuizItemTemplate, error) {
	var templates []QuizItemTemplate
	if err := json.Unmarshal(templatesJSON, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}
	if err := ValidateTemplates(templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// ValidateTemplates checks that ids are unique and every template is complete
func ValidateTemplates(templates []QuizItemTemplate) error {
	seen := make(map[int]bool, len(templates))
	for i, t := range templates {
		if seen[t.ID] {
			return fmt.Errorf("template %d: duplicate id %d", i, t.ID)
		}
		seen[t.ID] = true
		if !t.Dimension.Valid() {
			return fmt.Errorf("template %d: unknown dimension %q", t.ID, t.Dimension)
		}
		if t.Text == "" || t.ChoiceA.Text == "" || t.ChoiceB.Text == "" {
			return fmt.Errorf("template %d: missing text", t.ID)
		}
		if t.ChoiceA.Value == "" || t.ChoiceA.Value == t.ChoiceB.Value {
			return fmt.Errorf("template %d: choices must carry two distinct values", t.ID)
		}
	}
	return nil
}

// PersonalityTypes returns the 16 type descriptions keyed by code
func PersonalityTypes() (map[string]PersonalityType, error) {
	var list []PersonalityType
	if err := json.Unmarshal(typesJSON, &list); err != nil {
		return nil, fmt.Errorf("failed to parse personality types: %w", err)
	}
	types := make(map[string]PersonalityType, len(list))
	for _, t := range list {
		types[t.Code] = t
	}
	return types, nil
}

// TypeCodes returns the known type codes sorted alphabetically
func TypeCodes(types map[string]PersonalityType) []string {
	codes := make([]string, 0, len(types))
	for code := range types {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
