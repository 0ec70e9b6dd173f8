package persona

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/entities"
)

func TestLoadDefault_CoversEveryCombination(t *testing.T) {
	catalog, err := LoadDefault()
	require.NoError(t, err)

	require.Len(t, catalog.Personas(), 3)
	require.Len(t, catalog.Languages(), 2)

	for _, p := range catalog.Personas() {
		for _, l := range catalog.Languages() {
			for _, hasImage := range []bool{true, false} {
				tmpl, err := catalog.Resolve(p.ID, l.Code, hasImage)
				require.NoError(t, err, "%s/%s/image=%t", p.ID, l.Code, hasImage)
				assert.NotEmpty(t, strings.TrimSpace(tmpl.Text))
				assert.Equal(t, p.ID, tmpl.Persona)
				assert.Equal(t, l.Code, tmpl.Language)
				assert.Equal(t, hasImage, tmpl.HasImage)
			}
		}
	}
}

func TestResolve_Idempotent(t *testing.T) {
	catalog, err := LoadDefault()
	require.NoError(t, err)

	first, err := catalog.Resolve(entities.PersonaAyurvedic, entities.LanguageHindi, true)
	require.NoError(t, err)
	second, err := catalog.Resolve(entities.PersonaAyurvedic, entities.LanguageHindi, true)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolve_ImageVariantsDiffer(t *testing.T) {
	catalog, err := LoadDefault()
	require.NoError(t, err)

	withImage, err := catalog.Resolve(entities.PersonaModern, entities.LanguageEnglish, true)
	require.NoError(t, err)
	textOnly, err := catalog.Resolve(entities.PersonaModern, entities.LanguageEnglish, false)
	require.NoError(t, err)

	assert.Contains(t, withImage.Text, "this image")
	assert.NotContains(t, textOnly.Text, "this image")
}

func TestResolve_UnknownPersona(t *testing.T) {
	catalog, err := LoadDefault()
	require.NoError(t, err)

	_, err = catalog.Resolve("naturopathic", entities.LanguageEnglish, false)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestDefaults(t *testing.T) {
	catalog, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, entities.PersonaModern, catalog.DefaultPersona().ID)
	assert.Equal(t, entities.LanguageEnglish, catalog.DefaultLanguage().Code)

	hindi, ok := catalog.Language(entities.LanguageHindi)
	require.True(t, ok)
	assert.Equal(t, "hi-IN", hindi.SpeechCode)
}

func TestLabels(t *testing.T) {
	catalog, err := LoadDefault()
	require.NoError(t, err)

	en := catalog.Labels(entities.LanguageEnglish)
	hi := catalog.Labels(entities.LanguageHindi)
	assert.Equal(t, len(en), len(hi))
	assert.NotEqual(t, en["placeholder.no_symptoms"], hi["placeholder.no_symptoms"])

	for _, p := range catalog.Personas() {
		assert.NotEqual(t, "disclaimer."+string(p.ID), catalog.Label(entities.LanguageHindi, "disclaimer."+string(p.ID)))
	}

	assert.Equal(t, en["stage.complete"], catalog.Label("fr", "stage.complete"), "unknown locale falls back to default")
	assert.Equal(t, "no.such.key", catalog.Label(entities.LanguageEnglish, "no.such.key"))
}

const minimalCatalog = `
languages:
  - {code: en, speech_code: en-US, name: English, default: true}
  - {code: hi, speech_code: hi-IN, name: Hindi}
personas:
  - {id: modern, name: Modern, default: true}
templates:
  - {persona: modern, language: en, image: true, text: "a"}
  - {persona: modern, language: en, image: false, text: "b"}
  - {persona: modern, language: hi, image: true, text: "c"}
%s
labels:
  - {locale: en, key: k, text: "x"}
%s
`

func TestLoad_ConfigurationErrors(t *testing.T) {
	full := "  - {persona: modern, language: hi, image: false, text: \"d\"}"
	hiLabel := "  - {locale: hi, key: k, text: \"y\"}"

	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"complete", fmt.Sprintf(minimalCatalog, full, hiLabel), false},
		{"missing template", fmt.Sprintf(minimalCatalog, "", hiLabel), true},
		{"missing label locale", fmt.Sprintf(minimalCatalog, full, ""), true},
		{"duplicate template", fmt.Sprintf(minimalCatalog, full+"\n"+full, hiLabel), true},
		{"empty template", fmt.Sprintf(minimalCatalog, "  - {persona: modern, language: hi, image: false, text: \"  \"}", hiLabel), true},
		{"not yaml", "languages: [", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrConfiguration), "got %v", err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, defaultCatalog, 0o644))

	catalog, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, catalog.Personas(), 3)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}
