package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	semver "github.com/blang/semver/v4"
	"gopkg.in/yaml.v3"
)

// SupportedMajor is the newest rule document major version this build reads.
const SupportedMajor = 1

// Source is one rule document: the built-in set or a custom file.
type Source struct {
	Name        string
	Version     string
	Definitions []Definition
	// Rejections holds entries that could not even be decoded.
	Rejections []Rejection
}

// Rejection reports a rule excluded from the effective set.
type Rejection struct {
	RuleID string `json:"rule_id"`
	Source string `json:"source"`
	Reason string `json:"reason"`
}

func (r Rejection) String() string {
	id := r.RuleID
	if id == "" {
		id = "<unnamed>"
	}
	return fmt.Sprintf("rule %s from %s rejected: %s", id, r.Source, r.Reason)
}

type document struct {
	Version string      `yaml:"version"`
	Rules   []yaml.Node `yaml:"rules"`
}

// Parse decodes a rule document. Both YAML and JSON are accepted, either as
// {version, rules: [...]} or as a bare list of rules. Unknown fields are
// ignored. An entry that fails to decode is recorded as a rejection instead of
// failing the whole document.
func Parse(name string, data []byte) (Source, error) {
	src := Source{Name: name}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return src, fmt.Errorf("parse rule document %s: %w", name, err)
	}
	if len(root.Content) == 0 {
		return src, nil
	}
	body := root.Content[0]

	var entries []yaml.Node
	switch body.Kind {
	case yaml.SequenceNode:
		if err := body.Decode(&entries); err != nil {
			return src, fmt.Errorf("parse rule document %s: %w", name, err)
		}
	case yaml.MappingNode:
		var doc document
		if err := body.Decode(&doc); err != nil {
			return src, fmt.Errorf("parse rule document %s: %w", name, err)
		}
		if doc.Version != "" {
			v, err := semver.ParseTolerant(doc.Version)
			if err != nil {
				return src, fmt.Errorf("rule document %s: invalid version %q: %w", name, doc.Version, err)
			}
			if v.Major > SupportedMajor {
				return src, fmt.Errorf("rule document %s: unsupported version %s (max %d.x)", name, v, SupportedMajor)
			}
			src.Version = v.String()
		}
		entries = doc.Rules
	default:
		return src, fmt.Errorf("parse rule document %s: expected a mapping or a list of rules", name)
	}

	for i := range entries {
		var d Definition
		if err := entries[i].Decode(&d); err != nil {
			src.Rejections = append(src.Rejections, Rejection{
				RuleID: nodeID(&entries[i]),
				Source: name,
				Reason: err.Error(),
			})
			continue
		}
		src.Definitions = append(src.Definitions, d)
	}
	return src, nil
}

func nodeID(n *yaml.Node) string {
	if n.Kind != yaml.MappingNode {
		return ""
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "id" {
			return n.Content[i+1].Value
		}
	}
	return ""
}

// LoadFile reads a custom rule document from disk.
func LoadFile(path string) (Source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Source{Name: path}, fmt.Errorf("read rule file: %w", err)
	}
	return Parse(path, b)
}

// ErrRuleNotFound is returned when removing a rule that does not exist.
var ErrRuleNotFound = errors.New("rule not found")

// AddDefinition validates d and writes it to the custom rule document at
// path, replacing any existing entry with the same ID. The file is created
// if missing.
func AddDefinition(path string, d Definition) error {
	if _, err := Compile(d, path, EntropyDefaults{}); err != nil {
		return fmt.Errorf("rule %s: %w", d.ID, err)
	}
	src, err := loadOrEmpty(path)
	if err != nil {
		return err
	}
	replaced := false
	for i := range src.Definitions {
		if src.Definitions[i].ID == d.ID {
			src.Definitions[i] = d
			replaced = true
		}
	}
	if !replaced {
		src.Definitions = append(src.Definitions, d)
	}
	return save(path, src)
}

// RemoveDefinition deletes the rule with the given ID from the custom
// document. When the ID is not custom but names a built-in rule, a disabled
// override is written instead so the built-in stops producing findings.
func RemoveDefinition(path, id string, builtin Source) (disabledBuiltin bool, err error) {
	src, err := loadOrEmpty(path)
	if err != nil {
		return false, err
	}
	kept := src.Definitions[:0]
	removed := false
	for _, d := range src.Definitions {
		if d.ID == id {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	src.Definitions = kept

	for _, d := range builtin.Definitions {
		if d.ID != id {
			continue
		}
		off := false
		d.Enabled = &off
		src.Definitions = append(src.Definitions, d)
		return true, save(path, src)
	}
	if !removed {
		return false, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return false, save(path, src)
}

func loadOrEmpty(path string) (Source, error) {
	src, err := LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Source{Name: path}, nil
		}
		return src, err
	}
	if len(src.Rejections) > 0 {
		return src, fmt.Errorf("rule file %s has undecodable entries: %s", path, src.Rejections[0].Reason)
	}
	return src, nil
}

type savedDocument struct {
	Version string       `yaml:"version,omitempty"`
	Rules   []Definition `yaml:"rules"`
}

func save(path string, src Source) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create rule directory: %w", err)
		}
	}
	b, err := yaml.Marshal(savedDocument{Version: src.Version, Rules: src.Definitions})
	if err != nil {
		return fmt.Errorf("encode rule document: %w", err)
	}
	if !strings.HasSuffix(string(b), "\n") {
		b = append(b, '\n')
	}
	return os.WriteFile(path, b, 0o644)
}
