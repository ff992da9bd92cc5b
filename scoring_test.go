package personaquiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		answers  map[int]string
		wantType string
		want     map[string]int
	}{
		{
			name:     "no answers resolves ties to the first letter",
			answers:  map[int]string{},
			wantType: "ESTJ",
			want:     map[string]int{"E": 0, "I": 0, "S": 0, "N": 0, "T": 0, "F": 0, "J": 0, "P": 0},
		},
		{
			name:     "majority per axis",
			answers:  map[int]string{1: "I", 2: "I", 3: "E", 4: "N", 5: "F", 6: "F", 7: "T", 8: "P"},
			wantType: "INFP",
			want:     map[string]int{"E": 1, "I": 2, "S": 0, "N": 1, "T": 1, "F": 2, "J": 0, "P": 1},
		},
		{
			name:     "unknown values are ignored",
			answers:  map[int]string{1: "X", 2: "", 3: "N"},
			wantType: "ENTJ",
			want:     map[string]int{"E": 0, "I": 0, "S": 0, "N": 1, "T": 0, "F": 0, "J": 0, "P": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, scores := Score(tt.answers)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.want, scores)
		})
	}
}
