package mockserver

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTitle_ShortQuestionUnchanged(t *testing.T) {
	q := "how many trials?"
	assert.Equal(t, q, title(q))
}

func TestTitle_TruncatesOnRunes(t *testing.T) {
	long := strings.Repeat("試験データ照会", 20)
	got := title(long)

	assert.True(t, strings.HasSuffix(got, "..."))
	assert.True(t, utf8.ValidString(got), "truncation must not split a rune")
	assert.Len(t, []rune(strings.TrimSuffix(got, "...")), 60)
}

func TestTitle_ExactBoundaryUnchanged(t *testing.T) {
	q := strings.Repeat("x", 60)
	assert.Equal(t, q, title(q))
}
