package config

import (
	"encoding/base64"
	"fmt"
	"os"
)

// Prompts is the immutable set of prompt fragments driving the conversation
// pipelines. Fragments ship base64-encoded in the environment to keep the
// prompting strategy out of config files, and are decoded once at startup.
type Prompts struct {
	// System is the assembled system prompt: the base system fragment with
	// the three guardrail fragments appended, seeding every conversation.
	System string

	// Analysis, Compare and CoverLetter drive the shared rewrite chain.
	Analysis    string
	Compare     string
	CoverLetter string

	// Tokenize and Draft drive the draft pipeline's fan-out and draft stages.
	Tokenize string
	Draft    string
}

// LoadPrompts decodes the prompt fragments from the environment.
func LoadPrompts() (*Prompts, error) {
	system, err := decodePromptEnv("SYSTEM_PROMPT")
	if err != nil {
		return nil, err
	}

	for _, key := range []string{"GUARDRAIL_PROMPT1", "GUARDRAIL_PROMPT2", "GUARDRAIL_PROMPT3"} {
		fragment, err := decodePromptEnv(key)
		if err != nil {
			return nil, err
		}
		system += fragment
	}

	p := &Prompts{System: system}

	fields := []struct {
		key  string
		dest *string
	}{
		{"ANALYSIS_PROMPT", &p.Analysis},
		{"COMPARE_PROMPT", &p.Compare},
		{"COVERLETTER_PROMPT", &p.CoverLetter},
		{"TOKENIZE_PROMPT", &p.Tokenize},
		{"DRAFT_PROMPT", &p.Draft},
	}

	for _, f := range fields {
		decoded, err := decodePromptEnv(f.key)
		if err != nil {
			return nil, err
		}
		*f.dest = decoded
	}

	return p, nil
}

func decodePromptEnv(key string) (string, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return "", fmt.Errorf("prompt environment variable %s is not set", key)
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", key, err)
	}

	return string(decoded), nil
}
