// Package toolcap is the tool approval policy registry. Policies are
// declared in an embedded YAML file: each tool belongs to a family, and
// the family decides which confirmation options a prompt offers.
package toolcap

import (
	"embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"tandem/internal/confirm"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Family classifies tools by the shape of approval they need.
type Family string

const (
	FamilyRead    Family = "read"     // never prompts
	FamilyWrite   Family = "write"    // file writes; scoped allows per file or directory
	FamilyExecCwd Family = "exec_cwd" // commands pinned to the working directory
	FamilyExec    Family = "exec"     // arbitrary commands; allow once or deny
)

// ToolPolicy describes one tool's approval requirements.
type ToolPolicy struct {
	Name        string `yaml:"-"`
	Family      Family `yaml:"family"`
	Confirm     bool   `yaml:"confirm"`
	Description string `yaml:"description"`
}

// Registry holds the tool policies. It is immutable after load.
type Registry struct {
	tools map[string]ToolPolicy
}

// NewRegistry creates a registry from the embedded YAML files.
func NewRegistry() (*Registry, error) {
	data, err := configFiles.ReadFile("config/tools.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read tool policy: %w", err)
	}

	var file struct {
		Tools map[string]ToolPolicy `yaml:"tools"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool policy: %w", err)
	}

	r := &Registry{tools: make(map[string]ToolPolicy, len(file.Tools))}
	for name, policy := range file.Tools {
		switch policy.Family {
		case FamilyRead, FamilyWrite, FamilyExecCwd, FamilyExec:
		default:
			return nil, fmt.Errorf("tool %q has unknown family %q", name, policy.Family)
		}
		policy.Name = name
		r.tools[name] = policy
	}
	return r, nil
}

// Policy returns the named tool's policy.
func (r *Registry) Policy(name string) (ToolPolicy, bool) {
	p, ok := r.tools[name]
	return p, ok
}

// RequiresConfirmation reports whether running the tool needs an
// approval prompt. Unknown tools always prompt.
func (r *Registry) RequiresConfirmation(name string) bool {
	p, ok := r.tools[name]
	if !ok {
		return true
	}
	return p.Confirm
}

// Options returns the decision options offered when prompting for the
// tool. Unknown tools get the minimal allow-once-or-deny set.
func (r *Registry) Options(name string) []confirm.Decision {
	p, ok := r.tools[name]
	if !ok {
		return confirm.DefaultOptions
	}
	return OptionsForFamily(p.Family)
}

// OptionsForFamily maps a family to its decision options.
func OptionsForFamily(f Family) []confirm.Decision {
	switch f {
	case FamilyWrite:
		return confirm.WriteOptions
	case FamilyExecCwd:
		return confirm.ExecCwdOptions
	default:
		return confirm.DefaultOptions
	}
}

// Tools returns all policies sorted by name.
func (r *Registry) Tools() []ToolPolicy {
	out := make([]ToolPolicy, 0, len(r.tools))
	for _, p := range r.tools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
