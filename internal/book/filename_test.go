package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Intro", "Intro"},
		{`What? A "Title": <yes>/no\maybe|*`, "What A Title yesnomaybe"},
		{"  spaced   out  ", "spaced out"},
		{"trailing dots...", "trailing dots"},
		{`<>:"/\|?*`, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeTitle(tc.in), "input %q", tc.in)
	}
}

func TestOutputFileName_ZeroPaddedAndStable(t *testing.T) {
	assert.Equal(t, "000_Intro.mp3", OutputFileName(0, "Intro"))
	assert.Equal(t, "001_Ch1.mp3", OutputFileName(1, "Ch1"))
	assert.Equal(t, "042_Deep Chapter.mp3", OutputFileName(42, "Deep Chapter"))

	// Same inputs must always map to the same path.
	assert.Equal(t, OutputFileName(7, "A/B"), OutputFileName(7, "A/B"))
}

func TestOutputFileName_EmptySanitizedTitleFallsBack(t *testing.T) {
	assert.Equal(t, "003_Chapter_4.mp3", OutputFileName(3, `///`))
}
