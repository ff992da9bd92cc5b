package personaquiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateShape(t *testing.T) {
	require.NoError(t, ValidateShape(ShapeQuestion, validQuestion))
	require.NoError(t, ValidateShape(ShapeChat, `{"content":"ok","continuation":{"id":"abc"}}`))

	err := ValidateShape(ShapeQuestion, `{"id":1,"text":"","dimension":"EI","optionA":{"text":"a","value":"E"}}`)
	var mr *MalformedResponse
	require.ErrorAs(t, err, &mr)
	assert.Contains(t, mr.Reason, "optionB")
	assert.Contains(t, mr.Reason, "text")

	err = ValidateShape(ShapeChat, "not json")
	require.ErrorAs(t, err, &mr)
	assert.Equal(t, ShapeChat, mr.Shape)

	assert.Error(t, ValidateShape("poem", "{}"))
}

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Sure! {\"a\":1} Hope that helps.", `{"a":1}`},
		{"trailing prose", "{\"a\":1}\nLet me know.", `{"a":1}`},
		{"no object", "sorry", "sorry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.in))
		})
	}
}
