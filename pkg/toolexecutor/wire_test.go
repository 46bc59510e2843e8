package toolexecutor

import (
	"regexp"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var wireAlphabet = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

func TestSanitizeWireName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "sum", want: "sum"},
		{in: "kv.get", want: "kv_get"},
		{in: "clock.now", want: "clock_now"},
		{in: "a b/c", want: "a_b_c"},
		{in: "with-dash_and_underscore", want: "with-dash_and_underscore"},
		{in: "héllo", want: "h_llo"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeWireName(tt.in); got != tt.want {
				t.Errorf("SanitizeWireName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeWireNameProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("sanitizing is idempotent", prop.ForAll(
		func(name string) bool {
			once := SanitizeWireName(name)
			return SanitizeWireName(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("output uses only the wire alphabet", prop.ForAll(
		func(name string) bool {
			return wireAlphabet.MatchString(SanitizeWireName(name))
		},
		gen.AnyString(),
	))

	properties.Property("output keeps one character per rune", prop.ForAll(
		func(name string) bool {
			return len([]rune(SanitizeWireName(name))) == len([]rune(name))
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
