package ownership

import (
	"testing"

	"github.com/hitoshi/catalog/internal/model"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name    string
		session string
		owner   string
		want    Decision
	}{
		{"owner", "u1", "u1", Allowed},
		{"other user", "u2", "u1", Denied},
		{"anonymous", "", "u1", Denied},
		{"ownerless item", "u1", "", Denied},
		{"both empty", "", "", Denied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Authorize(tt.session, tt.owner); got != tt.want {
				t.Errorf("Authorize(%q, %q) = %v, want %v", tt.session, tt.owner, got, tt.want)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	if err := Require("u1", "u1"); err != nil {
		t.Errorf("Require(owner) = %v, want nil", err)
	}
	if err := Require("u2", "u1"); !model.HasCode(err, model.ErrCodeNotOwner) {
		t.Errorf("Require(other) = %v, want NOT_OWNER", err)
	}
}

func TestDecisionString(t *testing.T) {
	if Allowed.String() != "allowed" || Denied.String() != "denied" {
		t.Errorf("String() = %q / %q", Allowed.String(), Denied.String())
	}
}
