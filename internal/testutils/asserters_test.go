package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	messages []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.messages = append(r.messages, fmt.Sprintf(format, args...))
}

func TestTextAsserter(t *testing.T) {
	rt := &recordingT{}
	ta := NewTextAsserter(rt)

	assert.True(t, ta.Assert("a  \nb\n\n", "a\nb"), "trailing whitespace MUST be ignored by default")
	assert.Empty(t, rt.messages)

	assert.False(t, ta.Assert("a\nc", "a\nb"))
	assert.Len(t, rt.messages, 1)
	assert.Contains(t, rt.messages[0], "-b")
	assert.Contains(t, rt.messages[0], "+c")
}

func TestTextAsserter_Options(t *testing.T) {
	ta := NewTextAsserter(t, WithIgnoreEmptyLines(true))
	assert.Empty(t, ta.Diff("a\n\n\nb", "a\nb"))

	strict := NewTextAsserter(t, WithTrimSpace(false), WithIgnoreTrailingWhitespace(false))
	assert.NotEmpty(t, strict.Diff("a ", "a"), "strict asserter MUST see trailing whitespace")

	colored := NewTextAsserter(t, WithEnableColors(true))
	diff := colored.Diff("x y", "x")
	assert.True(t, strings.Contains(diff, "x·y"), "colored diff MUST make spaces visible")
}

func TestJSONAsserter(t *testing.T) {
	ja := NewJSONAsserter(t)
	assert.Empty(t, ja.Diff(`{"a":1,"b":[1,2]}`, `{"b":[1,2],"a":1}`))
	assert.NotEmpty(t, ja.Diff(`{"a":1}`, `{"a":2}`))
	assert.NotEmpty(t, ja.Diff(`{"a":1,"extra":true}`, `{"a":1}`), "extra keys MUST fail by default")
	assert.Contains(t, ja.Diff(`{`, `{}`), "invalid actual JSON")
}

func TestJSONAsserter_Options(t *testing.T) {
	tests := []struct {
		name     string
		opts     []JSONOption
		actual   string
		expected string
	}{
		{"presence placeholder", nil, `{"at":"2024-01-02T03:04:05Z","v":1}`, `{"at":"<<PRESENCE>>","v":1}`},
		{"ignore extra keys", []JSONOption{WithIgnoreExtraKeys(true)}, `{"a":1,"b":{"c":2,"d":3}}`, `{"a":1,"b":{"c":2}}`},
		{"ignore array order", []JSONOption{WithIgnoreArrayOrder(true)}, `[{"id":2},{"id":1}]`, `[{"id":1},{"id":2}]`},
		{"ignored fields", []JSONOption{WithIgnoredFields("at")}, `[{"v":1,"at":"x"}]`, `[{"v":1,"at":"y"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, NewJSONAsserter(t, tt.opts...).Diff(tt.actual, tt.expected))
		})
	}

	assert.NotEmpty(t, NewJSONAsserter(t).Diff(`{"v":1}`, `{"at":"<<PRESENCE>>","v":1}`),
		"placeholder MUST require the key to exist")
}
