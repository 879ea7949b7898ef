package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestScanLimitAllows(t *testing.T) {
	tests := []struct {
		name  string
		limit ScanLimit
		used  int
		want  bool
	}{
		{"limited under cap", Limited(5), 4, true},
		{"limited at cap", Limited(5), 5, false},
		{"limited zero", Limited(0), 0, false},
		{"negative clamps to zero", Limited(-1), 0, false},
		{"unlimited", Unlimited(), 10_000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.limit.Allows(tt.used); got != tt.want {
				t.Errorf("Allows(%d) = %v, want %v", tt.used, got, tt.want)
			}
		})
	}
}

func TestScanLimitJSON(t *testing.T) {
	b, err := json.Marshal(Limited(25))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "25" {
		t.Errorf("expected 25, got %s", b)
	}

	b, err = json.Marshal(Unlimited())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"unlimited"` {
		t.Errorf("expected \"unlimited\", got %s", b)
	}

	if _, ok := Unlimited().Max(); ok {
		t.Error("unlimited limit should not report a max")
	}
}

func TestErrorKind(t *testing.T) {
	wrapped := fmt.Errorf("resolve commit: %w", ErrRepositoryUnavailable)
	if got := ErrorKind(wrapped); got != "repository_unavailable" {
		t.Errorf("expected repository_unavailable, got %s", got)
	}
	if got := ErrorKind(errors.New("boom")); got != "internal_error" {
		t.Errorf("expected internal_error, got %s", got)
	}
}

func TestRepositoryRefFullName(t *testing.T) {
	ref := RepositoryRef{Platform: PlatformGitHub, Owner: "acme", Repo: "widgets"}
	if ref.FullName() != "acme/widgets" {
		t.Errorf("unexpected full name %s", ref.FullName())
	}
}
