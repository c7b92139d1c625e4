package auth

import (
	"errors"
	"testing"

	"tandem/internal/domain"
)

func TestStaticVerifier(t *testing.T) {
	v, err := NewStaticVerifier("secret-token")
	if err != nil {
		t.Fatalf("NewStaticVerifier() error = %v", err)
	}

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"exact match", "secret-token", false},
		{"wrong token", "other-token", true},
		{"prefix only", "secret", true},
		{"longer", "secret-token-x", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ident, err := v.Verify(tt.token)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrUnauthorized) {
					t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if ident.Subject != "local" {
				t.Errorf("subject = %q, want local", ident.Subject)
			}
		})
	}
}

func TestNewStaticVerifierEmpty(t *testing.T) {
	if _, err := NewStaticVerifier(""); err == nil {
		t.Error("NewStaticVerifier(\"\") succeeded, want error")
	}
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	b, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if len(a) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(a))
	}
	if a == b {
		t.Error("two generated tokens are identical")
	}
}
