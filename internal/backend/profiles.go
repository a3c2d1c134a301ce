package backend

import (
	"fmt"
	"sort"
	"strings"

	"liftlore/internal/payload"
)

// ProfileName identifies one of the fixed backend profiles. Extending the
// set means adding a new constant and table entry, not mutating anything
// at runtime.
type ProfileName string

const (
	ProfileClaude ProfileName = "claude"
	ProfileOpenAI ProfileName = "openai"
	ProfileGroq   ProfileName = "groq"
	ProfileGemini ProfileName = "gemini"
	ProfileLocal  ProfileName = "local"
)

// Kind selects the client implementation a profile runs on.
type Kind string

const (
	// KindChatAPI is the OpenAI-compatible chat completions wire format,
	// served remotely (OpenAI, Groq) or by a local llama.cpp/Ollama server.
	KindChatAPI Kind = "chat_api"
	// KindAnthropic is the Anthropic Messages API.
	KindAnthropic Kind = "anthropic"
	// KindGemini is the Google Gemini SDK.
	KindGemini Kind = "gemini"
)

// Profile bundles everything needed to construct and identify a backend.
type Profile struct {
	Name          ProfileName
	Kind          Kind
	Model         string
	BaseURL       string
	CredentialEnv string
	MaxTokens     int
	Temperature   float32
	TopP          float32
	MuscleSchema  payload.MuscleSchema
	// Local reports that the profile talks to a model hosted on this
	// machine and therefore needs no credential.
	Local bool
}

// Identity is the tag persisted into progress and result stores.
func (p Profile) Identity() string {
	return string(p.Name) + "/" + p.Model
}

var profiles = map[ProfileName]Profile{
	ProfileClaude: {
		Name:          ProfileClaude,
		Kind:          KindAnthropic,
		Model:         "claude-3-5-sonnet-20241022",
		BaseURL:       "https://api.anthropic.com",
		CredentialEnv: "ANTHROPIC_API_KEY",
		MaxTokens:     1024,
		Temperature:   0.7,
		TopP:          1.0,
		MuscleSchema:  payload.MuscleSchemaBilingual,
	},
	ProfileOpenAI: {
		Name:          ProfileOpenAI,
		Kind:          KindChatAPI,
		Model:         "gpt-4o",
		BaseURL:       "https://api.openai.com/v1",
		CredentialEnv: "OPEN_AI_API_KEY",
		MaxTokens:     1024,
		Temperature:   0.7,
		TopP:          1.0,
		MuscleSchema:  payload.MuscleSchemaPlain,
	},
	ProfileGroq: {
		Name:          ProfileGroq,
		Kind:          KindChatAPI,
		Model:         "llama-3.3-70b-versatile",
		BaseURL:       "https://api.groq.com/openai/v1",
		CredentialEnv: "GROQ_API_KEY",
		MaxTokens:     1024,
		Temperature:   0.7,
		TopP:          1.0,
		MuscleSchema:  payload.MuscleSchemaPlain,
	},
	ProfileGemini: {
		Name:          ProfileGemini,
		Kind:          KindGemini,
		Model:         "gemini-2.0-flash",
		CredentialEnv: "GEMINI_API_KEY",
		MaxTokens:     1024,
		Temperature:   0.7,
		TopP:          0.9,
		MuscleSchema:  payload.MuscleSchemaBilingual,
	},
	ProfileLocal: {
		Name:         ProfileLocal,
		Kind:         KindChatAPI,
		Model:        "llama3.1",
		BaseURL:      "http://127.0.0.1:11434/v1",
		MaxTokens:    1024,
		Temperature:  0.7,
		TopP:         1.0,
		MuscleSchema: payload.MuscleSchemaPlain,
		Local:        true,
	},
}

// LookupProfile resolves a profile by name.
func LookupProfile(name string) (Profile, error) {
	normalized := ProfileName(strings.ToLower(strings.TrimSpace(name)))
	profile, ok := profiles[normalized]
	if !ok {
		return Profile{}, fmt.Errorf("unknown backend profile %q (available: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return profile, nil
}

// ProfileNames returns all profile names in alphabetical order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// Profiles returns the full profile table ordered by name.
func Profiles() []Profile {
	out := make([]Profile, 0, len(profiles))
	for _, name := range ProfileNames() {
		out = append(out, profiles[ProfileName(name)])
	}
	return out
}
