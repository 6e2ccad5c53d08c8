package expr

import "testing"

func TestToBooleanAcceptsMixedCaseSpellings(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"yes", true},
		{"YES", true},
		{"Yes", true},
		{"Enabled", true},
		{"  On  ", true},
		{"no", false},
		{"disabled", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ToBoolean(c.value); got != c.want {
			t.Errorf("ToBoolean(%q) = %v, want %v", c.value, got, c.want)
		}
	}
}
