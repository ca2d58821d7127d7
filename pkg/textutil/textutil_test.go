package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToASCII(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Charger 1", "Charger 1"},
		{"Café Zürich", "Cafe Zurich"},
		{"Straße", "Strasse"},
		{"Łódź", "Lodz"},
		{"line1\nline2", "line1 line2"},
		{"東京", "??"},
		{"a\x01b", "ab"},
	}
	for _, c := range cases {
		if got := ToASCII(c.in); got != c.want {
			t.Errorf("ToASCII(%q) = %q, 期望 %q", c.in, got, c.want)
		}
	}
}

func TestLegacyTruncates(t *testing.T) {
	assert.Equal(t, "Cafe", Legacy("Café Zürich", 4))
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, "abc", Truncate("abc", 10))
}
