package backend

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"liftlore/internal/exercise"
	"liftlore/internal/payload"
)

// SystemPrompt primes the model for the enrichment task.
const SystemPrompt = "You are a fitness expert. You enrich gym exercise records with accurate, structured metadata and you respond with JSON only."

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// StripHTML removes markup from catalog descriptions before they are
// quoted in a prompt.
func StripHTML(text string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(text, ""))
}

var promptLanguageTags = map[int]language.Tag{
	payload.LanguageEnglish: language.English,
	payload.LanguageSpanish: language.Spanish,
}

// LanguageLabel renders a catalog language code as an English display name.
func LanguageLabel(code int) string {
	if tag, ok := promptLanguageTags[code]; ok {
		return display.English.Languages().Name(tag)
	}
	return fmt.Sprintf("language %d", code)
}

// BuildPrompt renders the user prompt for one exercise, quoting whatever
// catalog context exists and pinning the exact JSON shape the parser
// expects for the profile's muscle schema.
func BuildPrompt(record exercise.Record, schema payload.MuscleSchema) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Enrich the following exercise.\n\n")
	fmt.Fprintf(&b, "Exercise ID: %d\n", record.ID)
	if name := strings.TrimSpace(record.Category.Name); name != "" {
		fmt.Fprintf(&b, "Category: %s\n", name)
	}
	if names := record.EquipmentNames(); len(names) > 0 {
		fmt.Fprintf(&b, "Equipment: %s\n", strings.Join(names, ", "))
	} else {
		b.WriteString("Equipment: none specified\n")
	}

	b.WriteString("\nExisting catalog information:\n")
	wroteContext := false
	for _, view := range record.TranslationViews() {
		label := LanguageLabel(view.Language)
		if name := strings.TrimSpace(view.Name); name != "" {
			fmt.Fprintf(&b, "- Name (%s): %s\n", label, name)
			wroteContext = true
		}
		if desc := StripHTML(view.Description); desc != "" {
			fmt.Fprintf(&b, "- Description (%s): %s\n", label, desc)
			wroteContext = true
		}
	}
	if !wroteContext {
		b.WriteString("- none\n")
	}

	b.WriteString("\nReturn ONLY a valid JSON object with exactly this structure:\n")
	b.WriteString("{\n")
	switch schema {
	case payload.MuscleSchemaBilingual:
		b.WriteString("  \"primary_muscle\": {\"name\": \"<muscle name in Spanish>\", \"name_en\": \"<muscle name in English>\"},\n")
	default:
		b.WriteString("  \"primary_muscle\": \"<main muscle group in English, e.g. Chest, Biceps, Quadriceps>\",\n")
	}
	b.WriteString("  \"translations\": [\n")
	for i, code := range payload.RequiredLanguages {
		label := LanguageLabel(code)
		fmt.Fprintf(&b, "    {\"language\": %d, \"name\": \"<exercise title in %s>\", \"description\": \"<2-4 sentences in %s covering proper form and key points>\", \"aliases\": [\"<common alternative names in %s, or empty>\"], \"notes\": [\"<short coaching notes in %s, or empty>\"]}", code, label, label, label, label)
		if i < len(payload.RequiredLanguages)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("  ]\n")
	b.WriteString("}\n\n")
	b.WriteString("Every listed language must be present. Do not include markdown formatting, code fences, or commentary.")

	return b.String()
}
