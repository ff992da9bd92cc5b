package personaquiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTemplates(t *testing.T) {
	templates, err := LoadTemplates()
	require.NoError(t, err)
	require.Len(t, templates, 30)

	perAxis := make(map[Dimension]int)
	for _, tpl := range templates {
		perAxis[tpl.Dimension]++
	}
	for _, dim := range []Dimension{DimensionEI, DimensionSN, DimensionTF, DimensionJP} {
		assert.Positive(t, perAxis[dim], "axis %s", dim)
	}
}

func TestValidateTemplates(t *testing.T) {
	good := testTemplates(2)
	require.NoError(t, ValidateTemplates(good))

	dup := testTemplates(2)
	dup[1].ID = dup[0].ID
	assert.ErrorContains(t, ValidateTemplates(dup), "duplicate")

	badDim := testTemplates(1)
	badDim[0].Dimension = "XY"
	assert.ErrorContains(t, ValidateTemplates(badDim), "dimension")

	sameValue := testTemplates(1)
	sameValue[0].ChoiceB.Value = sameValue[0].ChoiceA.Value
	assert.Error(t, ValidateTemplates(sameValue))
}

func TestPersonalityTypes(t *testing.T) {
	types, err := PersonalityTypes()
	require.NoError(t, err)

	codes := TypeCodes(types)
	require.Len(t, codes, 16)
	assert.Equal(t, "ENFJ", codes[0])
	assert.Equal(t, "The Architect", types["INTJ"].Name)
	for _, code := range codes {
		assert.NotEmpty(t, types[code].Description, code)
	}
}
