package payload

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Language codes follow the source catalog's numbering.
const (
	LanguageEnglish = 2
	LanguageSpanish = 4
)

// RequiredLanguages lists the language codes every payload must cover.
// Absence of any of them is a validation failure, not a silent gap.
var RequiredLanguages = []int{LanguageEnglish, LanguageSpanish}

// MuscleSchema selects the wire shape of the primary_muscle field. The
// shape is declared by the configured backend profile, never inferred
// from whatever the model happened to emit.
type MuscleSchema string

const (
	// MuscleSchemaPlain expects a bare string, e.g. "Biceps".
	MuscleSchemaPlain MuscleSchema = "plain"
	// MuscleSchemaBilingual expects {"name": ..., "name_en": ...}.
	MuscleSchemaBilingual MuscleSchema = "bilingual"
)

// PrimaryMuscle is the main muscle group targeted by an exercise. NameEn
// is populated only under the bilingual schema.
type PrimaryMuscle struct {
	Name   string
	NameEn string
}

type bilingualMuscle struct {
	Name   string `json:"name"`
	NameEn string `json:"name_en"`
}

// MarshalJSON writes the bilingual object form when NameEn is set and a
// bare string otherwise, so persisted records keep the shape the backend
// profile produced.
func (m PrimaryMuscle) MarshalJSON() ([]byte, error) {
	if m.NameEn != "" {
		return json.Marshal(bilingualMuscle{Name: m.Name, NameEn: m.NameEn})
	}
	return json.Marshal(m.Name)
}

// UnmarshalJSON accepts either shape; schema conformance is checked
// separately during validation so stored records always round-trip.
func (m *PrimaryMuscle) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		m.Name = plain
		m.NameEn = ""
		return nil
	}
	var object bilingualMuscle
	if err := json.Unmarshal(data, &object); err != nil {
		return fmt.Errorf("primary_muscle must be a string or a name/name_en object")
	}
	m.Name = object.Name
	m.NameEn = object.NameEn
	return nil
}

// Translation is one language's enriched text.
type Translation struct {
	Language    int      `json:"language"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
	Notes       []string `json:"notes"`
}

// Payload is the validated enrichment produced by a backend for one
// exercise. Translations preserve the order of RequiredLanguages.
type Payload struct {
	PrimaryMuscle PrimaryMuscle `json:"primary_muscle"`
	Translations  []Translation `json:"translations"`
}

// Translation returns the entry for the given language code.
func (p Payload) Translation(language int) (Translation, bool) {
	for _, tr := range p.Translations {
		if tr.Language == language {
			return tr, true
		}
	}
	return Translation{}, false
}

// Validate checks the payload against the declared muscle schema and the
// required-language and non-empty-field rules.
func (p Payload) Validate(schema MuscleSchema) error {
	switch schema {
	case MuscleSchemaPlain:
		if strings.TrimSpace(p.PrimaryMuscle.Name) == "" {
			return &Error{Reason: "primary_muscle is empty"}
		}
		if p.PrimaryMuscle.NameEn != "" {
			return &Error{Reason: "primary_muscle must be a plain string for this backend"}
		}
	case MuscleSchemaBilingual:
		if strings.TrimSpace(p.PrimaryMuscle.Name) == "" || strings.TrimSpace(p.PrimaryMuscle.NameEn) == "" {
			return &Error{Reason: "primary_muscle must carry both name and name_en for this backend"}
		}
	default:
		return &Error{Reason: fmt.Sprintf("unknown muscle schema %q", schema)}
	}

	byLanguage := make(map[int]int, len(p.Translations))
	for _, tr := range p.Translations {
		byLanguage[tr.Language]++
	}
	for _, language := range RequiredLanguages {
		switch byLanguage[language] {
		case 0:
			return &Error{Reason: fmt.Sprintf("missing translation for language %d", language)}
		case 1:
		default:
			return &Error{Reason: fmt.Sprintf("duplicate translation for language %d", language)}
		}
	}

	for _, tr := range p.Translations {
		if strings.TrimSpace(tr.Name) == "" {
			return &Error{Reason: fmt.Sprintf("translation %d has an empty name", tr.Language)}
		}
		if strings.TrimSpace(tr.Description) == "" {
			return &Error{Reason: fmt.Sprintf("translation %d has an empty description", tr.Language)}
		}
	}

	return nil
}

// normalize orders translations by RequiredLanguages and replaces nil
// alias/note lists with empty ones so output JSON never contains null.
func (p *Payload) normalize() {
	ordered := make([]Translation, 0, len(p.Translations))
	for _, language := range RequiredLanguages {
		if tr, ok := p.Translation(language); ok {
			ordered = append(ordered, tr)
		}
	}
	for _, tr := range p.Translations {
		if !isRequiredLanguage(tr.Language) {
			ordered = append(ordered, tr)
		}
	}
	for i := range ordered {
		if ordered[i].Aliases == nil {
			ordered[i].Aliases = []string{}
		}
		if ordered[i].Notes == nil {
			ordered[i].Notes = []string{}
		}
	}
	p.Translations = ordered
}

func isRequiredLanguage(language int) bool {
	for _, required := range RequiredLanguages {
		if language == required {
			return true
		}
	}
	return false
}
