package exercise

import "encoding/json"

// Category names the exercise grouping from the source catalog.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Equipment names a piece of equipment the exercise requires.
type Equipment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Record is one exercise from the input catalog. Records are immutable;
// ID is the join key across the progress and result stores.
//
// Translations are kept as raw JSON so the source text survives the round
// trip into enriched output untouched; TranslationViews decodes the few
// fields consulted when building prompt context.
type Record struct {
	ID           int64             `json:"id"`
	UUID         string            `json:"uuid"`
	Category     Category          `json:"category"`
	Equipment    []Equipment       `json:"equipment"`
	Translations []json.RawMessage `json:"translations"`
}

// TranslationView is the subset of a source translation used for prompting.
type TranslationView struct {
	Language    int    `json:"language"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TranslationViews decodes the prompt-relevant fields of each source
// translation. Entries that fail to decode are skipped; prompt context is
// best-effort and never blocks processing.
func (r Record) TranslationViews() []TranslationView {
	views := make([]TranslationView, 0, len(r.Translations))
	for _, raw := range r.Translations {
		var view TranslationView
		if err := json.Unmarshal(raw, &view); err != nil {
			continue
		}
		views = append(views, view)
	}
	return views
}

// EquipmentNames returns the non-empty equipment names in catalog order.
func (r Record) EquipmentNames() []string {
	names := make([]string, 0, len(r.Equipment))
	for _, eq := range r.Equipment {
		if eq.Name != "" {
			names = append(names, eq.Name)
		}
	}
	return names
}
