package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Profile is the user's job-preference document, embedded verbatim into
// classification prompts. It is opaque to the pipeline; only the model
// interprets it.
type Profile struct {
	raw json.RawMessage
}

// LoadProfile reads a preference profile from a JSON file.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	return NewProfile(data)
}

// NewProfile validates raw JSON preference data.
func NewProfile(data []byte) (Profile, error) {
	var check json.RawMessage
	if err := json.Unmarshal(data, &check); err != nil {
		return Profile{}, fmt.Errorf("parse profile json: %w", err)
	}
	return Profile{raw: check}, nil
}

// PromptJSON renders the profile indented for inclusion in a prompt.
func (p Profile) PromptJSON() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, p.raw, "", "  "); err != nil {
		return string(p.raw)
	}
	return buf.String()
}
