package toolcap

import (
	"testing"

	"tandem/internal/confirm"
)

func TestRegistryLoadsEmbeddedPolicy(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	tests := []struct {
		tool        string
		wantFamily  Family
		wantConfirm bool
	}{
		{"read_file", FamilyRead, false},
		{"write_file", FamilyWrite, true},
		{"run_command", FamilyExecCwd, true},
		{"run_anywhere", FamilyExec, true},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			p, ok := r.Policy(tt.tool)
			if !ok {
				t.Fatalf("policy %q missing", tt.tool)
			}
			if p.Family != tt.wantFamily || p.Confirm != tt.wantConfirm {
				t.Errorf("policy = %+v", p)
			}
			if r.RequiresConfirmation(tt.tool) != tt.wantConfirm {
				t.Errorf("RequiresConfirmation mismatch for %q", tt.tool)
			}
		})
	}
}

func TestUnknownToolsFailSafe(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if !r.RequiresConfirmation("ufo") {
		t.Error("unknown tools must prompt")
	}
	opts := r.Options("ufo")
	if len(opts) != len(confirm.DefaultOptions) {
		t.Errorf("options = %v", opts)
	}
}

func TestOptionsPerFamily(t *testing.T) {
	tests := []struct {
		family Family
		want   []confirm.Decision
	}{
		{FamilyWrite, confirm.WriteOptions},
		{FamilyExecCwd, confirm.ExecCwdOptions},
		{FamilyExec, confirm.DefaultOptions},
		{FamilyRead, confirm.DefaultOptions},
	}
	for _, tt := range tests {
		got := OptionsForFamily(tt.family)
		if len(got) != len(tt.want) {
			t.Fatalf("family %s: options = %v", tt.family, got)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("family %s: options[%d] = %s, want %s", tt.family, i, got[i], tt.want[i])
			}
		}
	}
}

func TestToolsSorted(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	tools := r.Tools()
	if len(tools) == 0 {
		t.Fatal("no tools loaded")
	}
	for i := 1; i < len(tools); i++ {
		if tools[i-1].Name >= tools[i].Name {
			t.Errorf("tools not sorted at %d: %s >= %s", i, tools[i-1].Name, tools[i].Name)
		}
	}
}
