package payload

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const validPlain = `{
  "primary_muscle": "Biceps",
  "translations": [
    {"language": 2, "name": "Biceps Curl", "description": "Curl the dumbbell up while keeping your elbows pinned. Lower under control.", "aliases": ["Dumbbell Curl"], "notes": []},
    {"language": 4, "name": "Curl de biceps", "description": "Sube la mancuerna manteniendo los codos fijos. Baja con control.", "aliases": [], "notes": ["Evita balancear el torso"]}
  ]
}`

const validBilingual = `{
  "primary_muscle": {"name": "Biceps braquial", "name_en": "Biceps"},
  "translations": [
    {"language": 2, "name": "Biceps Curl", "description": "Curl the dumbbell up. Lower under control."},
    {"language": 4, "name": "Curl de biceps", "description": "Sube la mancuerna. Baja con control."}
  ]
}`

func TestParsePlainSchema(t *testing.T) {
	parsed, err := Parse(validPlain, MuscleSchemaPlain)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if parsed.PrimaryMuscle.Name != "Biceps" {
		t.Errorf("unexpected muscle: %+v", parsed.PrimaryMuscle)
	}
	en, ok := parsed.Translation(LanguageEnglish)
	if !ok || en.Name != "Biceps Curl" {
		t.Errorf("unexpected english translation: %+v", en)
	}
	es, ok := parsed.Translation(LanguageSpanish)
	if !ok || len(es.Notes) != 1 {
		t.Errorf("unexpected spanish translation: %+v", es)
	}
}

func TestParseBilingualSchema(t *testing.T) {
	parsed, err := Parse(validBilingual, MuscleSchemaBilingual)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if parsed.PrimaryMuscle.NameEn != "Biceps" {
		t.Errorf("unexpected muscle: %+v", parsed.PrimaryMuscle)
	}
}

func TestParseToleratesProseAndCodeFence(t *testing.T) {
	wrapped := "Sure! Here is the enrichment you asked for:\n```json\n" + validPlain + "\n```\nLet me know if you need anything else."
	parsed, err := Parse(wrapped, MuscleSchemaPlain)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if parsed.PrimaryMuscle.Name != "Biceps" {
		t.Errorf("unexpected muscle: %+v", parsed.PrimaryMuscle)
	}
}

func TestParseToleratesFenceMarkerInTrailingProse(t *testing.T) {
	wrapped := validPlain + "\nYou can wrap this in ``` if you like."
	parsed, err := Parse(wrapped, MuscleSchemaPlain)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if parsed.PrimaryMuscle.Name != "Biceps" {
		t.Errorf("unexpected muscle: %+v", parsed.PrimaryMuscle)
	}
}

func TestParseToleratesLeadingProseWithoutFence(t *testing.T) {
	wrapped := "Here you go: " + validPlain + " -- anything else?"
	if _, err := Parse(wrapped, MuscleSchemaPlain); err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
}

func TestParseSkipsStrayBracesInProse(t *testing.T) {
	wrapped := "Note: braces like {this} are not JSON. " + validPlain
	if _, err := Parse(wrapped, MuscleSchemaPlain); err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
}

func TestParseNoJSON(t *testing.T) {
	_, err := Parse("I cannot help with that request.", MuscleSchemaPlain)
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestParseMissingLanguageFails(t *testing.T) {
	raw := `{"primary_muscle": "Chest", "translations": [{"language": 2, "name": "Push Up", "description": "Lower and press."}]}`
	_, err := Parse(raw, MuscleSchemaPlain)
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	if !strings.Contains(err.Error(), "language 4") {
		t.Errorf("error should name the missing language: %v", err)
	}
}

func TestParseEmptyDescriptionFails(t *testing.T) {
	raw := `{"primary_muscle": "Chest", "translations": [
	  {"language": 2, "name": "Push Up", "description": ""},
	  {"language": 4, "name": "Flexion", "description": "Baja y empuja."}
	]}`
	if _, err := Parse(raw, MuscleSchemaPlain); !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestParseSchemaMismatchFails(t *testing.T) {
	if _, err := Parse(validBilingual, MuscleSchemaPlain); !errors.Is(err, ErrParse) {
		t.Fatal("bilingual object should fail the plain schema")
	}
	if _, err := Parse(validPlain, MuscleSchemaBilingual); !errors.Is(err, ErrParse) {
		t.Fatal("plain string should fail the bilingual schema")
	}
}

func TestParseNormalizesNullLists(t *testing.T) {
	raw := `{"primary_muscle": "Core", "translations": [
	  {"language": 4, "name": "Plancha", "description": "Manten el cuerpo recto.", "aliases": null},
	  {"language": 2, "name": "Plank", "description": "Hold a straight line.", "notes": null}
	]}`
	parsed, err := Parse(raw, MuscleSchemaPlain)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	// English first regardless of emitted order, nil lists become empty.
	if parsed.Translations[0].Language != LanguageEnglish {
		t.Errorf("expected english first, got %+v", parsed.Translations[0])
	}
	data, err := json.Marshal(parsed)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "null") {
		t.Errorf("normalized payload still contains null: %s", data)
	}
}

func TestPrimaryMuscleRoundTrip(t *testing.T) {
	plain := PrimaryMuscle{Name: "Biceps"}
	data, err := json.Marshal(plain)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"Biceps"` {
		t.Errorf("plain muscle should marshal to a bare string, got %s", data)
	}

	bilingual := PrimaryMuscle{Name: "Biceps braquial", NameEn: "Biceps"}
	data, err = json.Marshal(bilingual)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back PrimaryMuscle
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != bilingual {
		t.Errorf("round trip mismatch: %+v != %+v", back, bilingual)
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("  "); got != "<empty>" {
		t.Errorf("unexpected snippet: %q", got)
	}
	long := strings.Repeat("word ", 100)
	if got := Snippet(long); !strings.HasSuffix(got, "...") {
		t.Errorf("long snippet should be truncated: %q", got)
	}
	if got := Snippet("a\nb\tc"); got != "a b c" {
		t.Errorf("whitespace not collapsed: %q", got)
	}
}
