package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk policy bundle. JSON documents parse as well, since
// they are valid YAML.
type File struct {
	Policies []Definition `yaml:"policies"`
}

// Parse decodes a policy bundle and validates every definition. The first
// invalid policy aborts the load.
func Parse(data []byte) ([]Definition, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policies: %w", err)
	}
	seen := make(map[string]bool, len(f.Policies))
	for _, d := range f.Policies {
		if err := ValidateDefinition(d); err != nil {
			return nil, err
		}
		if seen[d.ID] {
			return nil, &ValidationError{PolicyID: d.ID, Reason: "duplicate policy id", Err: ErrMalformed}
		}
		seen[d.ID] = true
	}
	return f.Policies, nil
}

// LoadFile reads and validates a policy bundle from path.
func LoadFile(path string) ([]Definition, error) {
	// #nosec G304 -- path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
