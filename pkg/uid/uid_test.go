package uid

import (
	"testing"

	"github.com/gofrs/uuid"
)

func TestNew(t *testing.T) {
	ids := make([]ID, 50)
	seen := make(map[ID]bool)
	for i := range ids {
		ids[i] = New()
		if seen[ids[i]] {
			t.Fatalf("duplicate id %v", ids[i])
		}
		seen[ids[i]] = true
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		id   ID
		want bool
	}{
		{id: New(), want: true},
		{id: ID(uuid.Must(uuid.NewV4()).String()), want: false},
		{id: "nope", want: false},
		{id: Empty, want: false},
	}
	for _, test := range tests {
		if got := Valid(test.id); got != test.want {
			t.Errorf("Valid(%q) = %v, want %v", test.id, got, test.want)
		}
	}
}

func TestShort(t *testing.T) {
	id := ID("0190a6b2-7c1d-7e3f-8a4b-5c6d7e8f9a0b")
	if got := id.Short(); got != "7e8f9a0b" {
		t.Errorf("short %q", got)
	}
	if got := ID("abc").Short(); got != "abc" {
		t.Errorf("short %q", got)
	}
}
