package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTerm(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"this", "this"},
		{"THIS", "this"},
		{"THIS ", "this"},
		{" THiS ", "this"},
		{" THi''S ", "this"},
		{" 123THi''S ", "123this"},
		{` 1\!23THi''S `, "123this"},
		{"Mys Service TYPes", "mysservicetypes"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeTerm(tc.in), tc.in)
	}
}
