package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rezahh107/matrix2/internal/errs"
	"gopkg.in/yaml.v3"
)

// Load reads a policy file from disk, decoding it as YAML when the
// path ends in ".yml"/".yaml" and as JSON otherwise, then validates it.
// The returned PolicyConfig is immutable: callers must not mutate its
// fields after Load returns successfully.
func Load(path string) (*PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.PolicyInvalid(fmt.Sprintf("reading policy file %q", path), err)
	}
	if isYAMLPath(path) {
		return ParseYAML(data)
	}
	return ParseJSON(data)
}

func isYAMLPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

// ParseJSON decodes and validates a policy from its JSON encoding
// (spec.md §6's wire format).
func ParseJSON(data []byte) (*PolicyConfig, error) {
	var p PolicyConfig
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errs.PolicyInvalid("parsing policy JSON", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseYAML decodes and validates a policy from a YAML encoding,
// equivalent in every field to the JSON form. Offered because the
// teacher's own configuration loader (src/internal/config.go) reads
// YAML for human-edited operator-facing config.
func ParseYAML(data []byte) (*PolicyConfig, error) {
	var p PolicyConfig
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errs.PolicyInvalid("parsing policy YAML", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
