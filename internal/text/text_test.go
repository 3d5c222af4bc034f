package text_test

import (
	"strings"
	"testing"

	"github.com/book-expert/voice-studio/internal/text"
	"github.com/stretchr/testify/assert"
)

type normalizeTestCase struct {
	name     string
	input    string
	expected string
}

func TestNormalizer_Normalize(t *testing.T) {
	t.Parallel()

	tests := []normalizeTestCase{
		{name: "empty", input: "", expected: ""},
		{name: "trims", input: "  Hello world \n", expected: "Hello world"},
		{name: "smart quotes", input: "“Hi” ‘there’", expected: `"Hi" 'there'`},
		{name: "dashes", input: "a—b–c‒d", expected: "a-b-c-d"},
		{name: "ellipsis", input: "wait…", expected: "wait..."},
		{name: "windows line endings", input: "one\r\ntwo", expected: "one\ntwo"},
		{name: "blank lines", input: "one\n\n\n\ntwo", expected: "one\n\ntwo"},
		{name: "invisible characters", input: "a\u00a0b\u200bc", expected: "a bc"},
	}

	normalizer := text.NewNormalizer()

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, normalizer.Normalize(testCase.input))
		})
	}
}

func TestNormalizer_Display(t *testing.T) {
	t.Parallel()

	normalizer := text.NewNormalizer()

	assert.Equal(t, "one two three", normalizer.Display("one\ntwo\t three", 50))
	assert.Equal(t, "one t...", normalizer.Display("one\ntwo", 5))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	short := "Hello"
	assert.Equal(t, short, text.Truncate(short, 50))

	exact := strings.Repeat("a", 50)
	assert.Equal(t, exact, text.Truncate(exact, 50))

	long := strings.Repeat("b", 51)
	assert.Equal(t, strings.Repeat("b", 50)+"...", text.Truncate(long, 50))

	// Multi-byte runes are never split.
	assert.Equal(t, "héé...", text.Truncate("hééllo", 3))

	assert.Equal(t, long, text.Truncate(long, 0))
}

func TestLength_CountsRunes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5, text.Length("héllo"))
	assert.Equal(t, 0, text.Length(""))
}

func TestStylePrompt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Hello", text.StylePrompt("", "Hello"))
	assert.Equal(t, "Hello", text.StylePrompt("   ", "Hello"))
	assert.Equal(t,
		"Speak the following text exactly as written. Style: Warm baritone. Text: Hello",
		text.StylePrompt("Warm baritone", "Hello"),
	)
}
