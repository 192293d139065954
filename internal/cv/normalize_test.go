package cv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvStudio/internal/catalog"
)

func TestNormalize_PartialPersonalOnly(t *testing.T) {
	doc, err := Normalize([]byte(`{"personal":{"firstName":"Ann"}}`), "")
	require.NoError(t, err)

	assert.Equal(t, "Ann", doc.Personal.FirstName)
	assert.Equal(t, "", doc.Personal.LastName)
	assert.Equal(t, "", doc.Personal.Photo)
	for _, section := range Sections {
		assert.Equal(t, 0, doc.SectionLen(section), section)
	}
	assert.NotNil(t, doc.Experience)
	assert.NotNil(t, doc.Links)
	assert.Equal(t, catalog.DefaultKey, doc.Template)
	assert.Equal(t, catalog.Default().DefaultAccent, doc.Style.AccentColor)
	assert.Equal(t, DefaultFontFamily, doc.Style.FontFamily)
	assert.Equal(t, DefaultLineSpacing, doc.Style.LineSpacing)
}

func TestNormalize_EmptyAndNull(t *testing.T) {
	for _, raw := range []string{"", "null", "  ", "{}"} {
		doc, err := Normalize([]byte(raw), "")
		require.NoError(t, err, raw)
		assert.Equal(t, Empty(catalog.DefaultKey), doc, raw)
	}
}

func TestNormalize_TemplateOverrideWins(t *testing.T) {
	doc, err := Normalize([]byte(`{"template":"modern","personal":{"lastName":"Lee"}}`), "executive")
	require.NoError(t, err)
	assert.Equal(t, "executive", doc.Template)

	tpl, _ := catalog.Lookup("executive")
	assert.Equal(t, tpl.DefaultAccent, doc.Style.AccentColor)
}

func TestNormalize_KeepsPersistedStyle(t *testing.T) {
	doc, err := Normalize([]byte(`{"template":"modern","style":{"accentColor":"#000000","lineSpacing":1.2}}`), "")
	require.NoError(t, err)
	assert.Equal(t, "#000000", doc.Style.AccentColor)
	assert.Equal(t, 1.2, doc.Style.LineSpacing)
	assert.Equal(t, DefaultFontFamily, doc.Style.FontFamily)
}

func TestNormalize_UnknownTemplateFallsBack(t *testing.T) {
	doc, err := Normalize([]byte(`{"template":"does-not-exist"}`), "")
	require.NoError(t, err)
	assert.Equal(t, catalog.DefaultKey, doc.Template)
}

func TestNormalize_InvalidJSON(t *testing.T) {
	_, err := Normalize([]byte(`{"personal":`), "")
	require.Error(t, err)
}

func TestHasContent(t *testing.T) {
	empty := Empty("classic")
	assert.False(t, HasContent(empty))

	whitespace := Empty("classic")
	whitespace.Personal.FirstName = "   "
	whitespace.Personal.Summary = "<p><br></p>"
	whitespace.Experience = []Experience{{Description: "<p>&nbsp;</p>", Start: YearMonth{Year: 2020}}}
	whitespace.GDPR = GDPRConsent{Enabled: true, Text: "I consent"}
	assert.False(t, HasContent(whitespace))

	named := Empty("classic")
	named.Personal.FirstName = "Ann"
	assert.True(t, HasContent(named))

	skill := Empty("classic")
	skill.Skills = []Skill{{Name: "Go", Level: 4}}
	assert.True(t, HasContent(skill))
}

func TestApplyTemplate_PreservesSections(t *testing.T) {
	doc, err := Normalize([]byte(`{
		"template":"classic",
		"personal":{"firstName":"Ann","summary":"<p>Backend engineer</p>"},
		"experience":[{"title":"Engineer","employer":"Acme","start":{"year":2019,"month":4}}],
		"skills":[{"name":"Go","level":5}],
		"style":{"accentColor":"#111111","fontFamily":"Lato","lineSpacing":1.3}
	}`), "")
	require.NoError(t, err)

	swapped, err := ApplyTemplate(doc, "creative")
	require.NoError(t, err)

	creative, _ := catalog.Lookup("creative")
	assert.Equal(t, "creative", swapped.Template)
	assert.Equal(t, creative.DefaultAccent, swapped.Style.AccentColor)
	assert.Equal(t, "Lato", swapped.Style.FontFamily)
	assert.Equal(t, 1.3, swapped.Style.LineSpacing)

	before := doc
	before.Template, before.Style.AccentColor = "", ""
	after := swapped
	after.Template, after.Style.AccentColor = "", ""
	beforeJSON, err := Marshal(before)
	require.NoError(t, err)
	afterJSON, err := Marshal(after)
	require.NoError(t, err)
	assert.Equal(t, string(beforeJSON), string(afterJSON))

	assert.Equal(t, "classic", doc.Template, "input must not be modified")
	assert.Equal(t, "#111111", doc.Style.AccentColor)
}

func TestApplyTemplate_Unknown(t *testing.T) {
	_, err := ApplyTemplate(Empty("classic"), "nope")
	require.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestValidatePayload(t *testing.T) {
	require.NoError(t, ValidatePayload([]byte(`{"personal":{"firstName":"Ann"},"experience":[]}`)))
	require.NoError(t, ValidatePayload([]byte(`{}`)))

	err := ValidatePayload([]byte(`{"unexpected":1}`))
	require.ErrorIs(t, err, ErrSchemaViolation)

	err = ValidatePayload([]byte(`{"experience":"not-a-list"}`))
	require.ErrorIs(t, err, ErrSchemaViolation)

	err = ValidatePayload([]byte(`{"style":{"accentColor":"red"}}`))
	require.ErrorIs(t, err, ErrSchemaViolation)
}
