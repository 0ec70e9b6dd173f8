// Package persona resolves doctor persona prompt templates and localized
// labels from a single data table.
package persona

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/satriahrh/aidoctor/domain"
	"github.com/satriahrh/aidoctor/domain/entities"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Language is a supported UI and output language
type Language struct {
	Code       entities.LanguageCode `json:"code" yaml:"code"`
	SpeechCode string                `json:"speech_code" yaml:"speech_code"`
	Name       string                `json:"name" yaml:"name"`
	NativeName string                `json:"native_name" yaml:"native_name"`
	Default    bool                  `json:"default" yaml:"default"`
}

// Persona describes a doctor persona shown to the user
type Persona struct {
	ID        entities.PersonaID `json:"id" yaml:"id"`
	Name      string             `json:"name" yaml:"name"`
	Icon      string             `json:"icon" yaml:"icon"`
	Specialty string             `json:"specialty" yaml:"specialty"`
	Default   bool               `json:"default" yaml:"default"`
}

type labelRow struct {
	Locale entities.LanguageCode `yaml:"locale"`
	Key    string                `yaml:"key"`
	Text   string                `yaml:"text"`
}

type catalogFile struct {
	Languages []Language                `yaml:"languages"`
	Personas  []Persona                 `yaml:"personas"`
	Templates []entities.PromptTemplate `yaml:"templates"`
	Labels    []labelRow                `yaml:"labels"`
}

type templateKey struct {
	persona  entities.PersonaID
	language entities.LanguageCode
	hasImage bool
}

type labelKey struct {
	locale entities.LanguageCode
	key    string
}

// Catalog is the validated, read-only prompt and label table
type Catalog struct {
	languages       []Language
	personas        []Persona
	templates       map[templateKey]entities.PromptTemplate
	labels          map[labelKey]string
	labelKeys       []string
	defaultLanguage Language
	defaultPersona  Persona
}

// LoadDefault loads the catalog embedded in the binary
func LoadDefault() (*Catalog, error) {
	return Load(defaultCatalog)
}

// LoadFile loads a catalog from a YAML file on disk
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read catalog %s: %v", domain.ErrConfiguration, path, err)
	}
	return Load(data)
}

// Load parses and validates a catalog. Every persona × language × image
// combination must have a template and every label key must exist in every
// locale.
func Load(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse catalog: %v", domain.ErrConfiguration, err)
	}

	c := &Catalog{
		languages: file.Languages,
		personas:  file.Personas,
		templates: make(map[templateKey]entities.PromptTemplate),
		labels:    make(map[labelKey]string),
	}

	if err := c.indexLanguages(); err != nil {
		return nil, err
	}
	if err := c.indexPersonas(); err != nil {
		return nil, err
	}
	if err := c.indexTemplates(file.Templates); err != nil {
		return nil, err
	}
	if err := c.indexLabels(file.Labels); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Catalog) indexLanguages() error {
	if len(c.languages) == 0 {
		return fmt.Errorf("%w: catalog declares no languages", domain.ErrConfiguration)
	}
	seen := make(map[entities.LanguageCode]bool)
	defaults := 0
	for _, l := range c.languages {
		if l.Code == "" || l.SpeechCode == "" {
			return fmt.Errorf("%w: language %q needs code and speech_code", domain.ErrConfiguration, l.Name)
		}
		if seen[l.Code] {
			return fmt.Errorf("%w: duplicate language %s", domain.ErrConfiguration, l.Code)
		}
		seen[l.Code] = true
		if l.Default {
			defaults++
			c.defaultLanguage = l
		}
	}
	if defaults != 1 {
		return fmt.Errorf("%w: expected exactly one default language, got %d", domain.ErrConfiguration, defaults)
	}
	return nil
}

func (c *Catalog) indexPersonas() error {
	if len(c.personas) == 0 {
		return fmt.Errorf("%w: catalog declares no personas", domain.ErrConfiguration)
	}
	seen := make(map[entities.PersonaID]bool)
	defaults := 0
	for _, p := range c.personas {
		if p.ID == "" {
			return fmt.Errorf("%w: persona %q has no id", domain.ErrConfiguration, p.Name)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate persona %s", domain.ErrConfiguration, p.ID)
		}
		seen[p.ID] = true
		if p.Default {
			defaults++
			c.defaultPersona = p
		}
	}
	if defaults != 1 {
		return fmt.Errorf("%w: expected exactly one default persona, got %d", domain.ErrConfiguration, defaults)
	}
	return nil
}

func (c *Catalog) indexTemplates(rows []entities.PromptTemplate) error {
	for _, t := range rows {
		if _, ok := c.Persona(t.Persona); !ok {
			return fmt.Errorf("%w: template for unknown persona %s", domain.ErrConfiguration, t.Persona)
		}
		if _, ok := c.Language(t.Language); !ok {
			return fmt.Errorf("%w: template for unknown language %s", domain.ErrConfiguration, t.Language)
		}
		if strings.TrimSpace(t.Text) == "" {
			return fmt.Errorf("%w: empty template %s/%s/image=%t", domain.ErrConfiguration, t.Persona, t.Language, t.HasImage)
		}
		key := templateKey{t.Persona, t.Language, t.HasImage}
		if _, dup := c.templates[key]; dup {
			return fmt.Errorf("%w: duplicate template %s/%s/image=%t", domain.ErrConfiguration, t.Persona, t.Language, t.HasImage)
		}
		c.templates[key] = t
	}

	for _, p := range c.personas {
		for _, l := range c.languages {
			for _, hasImage := range []bool{true, false} {
				if _, ok := c.templates[templateKey{p.ID, l.Code, hasImage}]; !ok {
					return fmt.Errorf("%w: missing template %s/%s/image=%t", domain.ErrConfiguration, p.ID, l.Code, hasImage)
				}
			}
		}
	}
	return nil
}

func (c *Catalog) indexLabels(rows []labelRow) error {
	keys := make(map[string]bool)
	for _, row := range rows {
		if _, ok := c.Language(row.Locale); !ok {
			return fmt.Errorf("%w: label %s for unknown locale %s", domain.ErrConfiguration, row.Key, row.Locale)
		}
		k := labelKey{row.Locale, row.Key}
		if _, dup := c.labels[k]; dup {
			return fmt.Errorf("%w: duplicate label %s/%s", domain.ErrConfiguration, row.Locale, row.Key)
		}
		c.labels[k] = row.Text
		keys[row.Key] = true
	}

	for key := range keys {
		c.labelKeys = append(c.labelKeys, key)
		for _, l := range c.languages {
			if _, ok := c.labels[labelKey{l.Code, key}]; !ok {
				return fmt.Errorf("%w: label %s missing for locale %s", domain.ErrConfiguration, key, l.Code)
			}
		}
	}
	sort.Strings(c.labelKeys)
	return nil
}

// Resolve returns the prompt template for a persona, language and image
// presence. It never touches the network or disk.
func (c *Catalog) Resolve(persona entities.PersonaID, language entities.LanguageCode, hasImage bool) (entities.PromptTemplate, error) {
	t, ok := c.templates[templateKey{persona, language, hasImage}]
	if !ok {
		return entities.PromptTemplate{}, fmt.Errorf("%w: no template for %s/%s/image=%t", domain.ErrConfiguration, persona, language, hasImage)
	}
	return t, nil
}

// Label returns the text for key in locale, falling back to the default
// language and finally to the key itself.
func (c *Catalog) Label(locale entities.LanguageCode, key string) string {
	if text, ok := c.labels[labelKey{locale, key}]; ok {
		return text
	}
	if text, ok := c.labels[labelKey{c.defaultLanguage.Code, key}]; ok {
		return text
	}
	return key
}

// Labels returns every label of a locale keyed by label key
func (c *Catalog) Labels(locale entities.LanguageCode) map[string]string {
	out := make(map[string]string, len(c.labelKeys))
	for _, key := range c.labelKeys {
		out[key] = c.Label(locale, key)
	}
	return out
}

// Persona looks up a persona by id
func (c *Catalog) Persona(id entities.PersonaID) (Persona, bool) {
	for _, p := range c.personas {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}

// Language looks up a language by code
func (c *Catalog) Language(code entities.LanguageCode) (Language, bool) {
	for _, l := range c.languages {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// Personas returns the declared personas in catalog order
func (c *Catalog) Personas() []Persona {
	return append([]Persona(nil), c.personas...)
}

// Languages returns the declared languages in catalog order
func (c *Catalog) Languages() []Language {
	return append([]Language(nil), c.languages...)
}

func (c *Catalog) DefaultPersona() Persona   { return c.defaultPersona }
func (c *Catalog) DefaultLanguage() Language { return c.defaultLanguage }
