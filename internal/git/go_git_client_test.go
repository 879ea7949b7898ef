package git

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/lockwhz/ai-scan-service/models"
)

const (
	shaMain    = "1111111111111111111111111111111111111111"
	shaDevelop = "2222222222222222222222222222222222222222"
	shaMaster  = "3333333333333333333333333333333333333333"
)

func TestHeadHash(t *testing.T) {
	mainRef := plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), plumbing.NewHash(shaMain))
	developRef := plumbing.NewHashReference(plumbing.NewBranchReferenceName("develop"), plumbing.NewHash(shaDevelop))
	masterRef := plumbing.NewHashReference(plumbing.NewBranchReferenceName("master"), plumbing.NewHash(shaMaster))

	tests := []struct {
		name    string
		refs    []*plumbing.Reference
		want    string
		wantErr bool
	}{
		{
			name: "symbolic HEAD follows target",
			refs: []*plumbing.Reference{
				plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("develop")),
				mainRef, developRef,
			},
			want: shaDevelop,
		},
		{
			name: "hash HEAD",
			refs: []*plumbing.Reference{plumbing.NewHashReference(plumbing.HEAD, plumbing.NewHash(shaMain)), developRef},
			want: shaMain,
		},
		{
			name: "no HEAD falls back to main",
			refs: []*plumbing.Reference{developRef, mainRef},
			want: shaMain,
		},
		{
			name: "no HEAD falls back to master",
			refs: []*plumbing.Reference{developRef, masterRef},
			want: shaMaster,
		},
		{
			name:    "nothing usable",
			refs:    []*plumbing.Reference{developRef},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := headHash(tt.refs)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBasicAuthUser(t *testing.T) {
	if basicAuthUser(models.PlatformGitHub) != "x-access-token" {
		t.Error("unexpected github user")
	}
	if basicAuthUser(models.PlatformGitLab) != "oauth2" {
		t.Error("unexpected gitlab user")
	}
	if basicAuthUser(models.PlatformBitbucket) != "x-token-auth" {
		t.Error("unexpected bitbucket user")
	}
}
