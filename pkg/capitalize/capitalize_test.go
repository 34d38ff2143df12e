package capitalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	cases := map[string]string{
		"MARY":        "Mary",
		"mary":        "Mary",
		"anne-marie":  "Anne-Marie",
		"JEAN  LUC":   "Jean Luc",
		"mckenzie":    "McKenzie",
		"o'brien":     "O'Brien",
		"":            "",
		"  trimmed  ": "Trimmed",
	}
	for in, want := range cases {
		assert.Equal(t, want, Name(in), "Name(%q)", in)
	}
}

func TestFamilyName(t *testing.T) {
	cases := map[string]string{
		"VAN BEETHOVEN":   "van Beethoven",
		"de la cruz":      "de la Cruz",
		"SMITH":           "Smith",
		"o'neill":         "O'Neill",
		"smith-jones":     "Smith-Jones",
		"MCDONALD":        "McDonald",
		"andrews'":        "Andrews'",
		"van":             "Van",
		"VON DER LEYEN":   "von der Leyen",
		"della francesca": "della Francesca",
	}
	for in, want := range cases {
		assert.Equal(t, want, FamilyName(in), "FamilyName(%q)", in)
	}
}
