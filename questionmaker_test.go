package personaquiz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestQuestionMaker_Personalize(t *testing.T) {
	tpl := testTemplates(1)[0]
	caller := &MockCaller{}
	caller.On("Call", mock.Anything, mock.MatchedBy(func(req Request) bool {
		return req.Shape == ShapeQuestion && req.System == questionSystemPrompt && req.User != ""
	})).Return(`{"id":1,"text":"  On a site visit, do you  ","dimension":"E-I","optionA":{"text":"chat with the crew","value":"E"},"optionB":{"text":"review plans alone","value":"I"}}`, nil)

	item, err := NewQuestionMaker(caller).Personalize(context.Background(), testProfile(), tpl)
	require.NoError(t, err)

	assert.Equal(t, tpl.ID, item.ID)
	assert.Equal(t, DimensionEI, item.Dimension)
	assert.Equal(t, "On a site visit, do you", item.Text)
	assert.Equal(t, "E", item.ChoiceA.Value)
	assert.Equal(t, "I", item.ChoiceB.Value)
	caller.AssertExpectations(t)
}

func TestQuestionMaker_PromptCarriesProfile(t *testing.T) {
	tpl := testTemplates(1)[0]
	caller := &MockCaller{}
	var prompt string
	caller.On("Call", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { prompt = args.Get(1).(Request).User }).
		Return("", errors.New("offline"))

	_, err := NewQuestionMaker(caller).Personalize(context.Background(), testProfile(), tpl)
	require.Error(t, err)

	assert.Contains(t, prompt, "Occupation: Engineer")
	assert.Contains(t, prompt, "Interests: Hiking")
	assert.Contains(t, prompt, tpl.Text)
}

func TestQuestionMaker_NoCaller(t *testing.T) {
	_, err := NewQuestionMaker(nil).Personalize(context.Background(), testProfile(), testTemplates(1)[0])
	assert.True(t, IsConfigurationError(err))
}

func TestCheckQuestion(t *testing.T) {
	tpl := testTemplates(1)[0]

	tests := []struct {
		name    string
		raw     questionOutput
		wantErr bool
		wantA   string
	}{
		{
			name:  "same order",
			raw:   questionOutput{Text: "q", Dimension: "EI", OptionA: Choice{"a", "E"}, OptionB: Choice{"b", "I"}},
			wantA: "a",
		},
		{
			name:  "swapped options",
			raw:   questionOutput{Text: "q", Dimension: "ei", OptionA: Choice{"b", "I"}, OptionB: Choice{"a", "E"}},
			wantA: "a",
		},
		{
			name:    "dimension changed",
			raw:     questionOutput{Text: "q", Dimension: "TF", OptionA: Choice{"a", "E"}, OptionB: Choice{"b", "I"}},
			wantErr: true,
		},
		{
			name:    "values changed",
			raw:     questionOutput{Text: "q", Dimension: "EI", OptionA: Choice{"a", "T"}, OptionB: Choice{"b", "F"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := checkQuestion(tt.raw, tpl)
			if tt.wantErr {
				var mr *MalformedResponse
				assert.ErrorAs(t, err, &mr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantA, item.ChoiceA.Text)
			assert.Equal(t, tpl.ChoiceA.Value, item.ChoiceA.Value)
		})
	}
}
