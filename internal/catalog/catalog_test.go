package catalog

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	c := New("m-default", []string{"m1", "m2"})

	tests := []struct {
		name      string
		requested string
		want      string
		wantErr   bool
	}{
		{"empty falls back to default", "", "m-default", false},
		{"configured model", "m1", "m1", false},
		{"default is always available", "m-default", "m-default", false},
		{"unknown model rejected", "m-bogus", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Resolve(tt.requested)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownModel) {
					t.Fatalf("Resolve(%q) error = %v, want ErrUnknownModel", tt.requested, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) returned error: %v", tt.requested, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.requested, got, tt.want)
			}
		})
	}
}

func TestModelsSorted(t *testing.T) {
	c := New("zeta", []string{"beta", "alpha"})

	got := c.Models()
	want := []string{"alpha", "beta", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("Models() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Models()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
