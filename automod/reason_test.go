package automod

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrecedenceSkip(t *testing.T) {
	assert := assert.New(t)

	table := []struct {
		stored    string
		requested string
		skip      bool
		msg       string
	}{
		{"kriminalamt #4021", "spam[gban]", true, "Already banned by kriminalamt"},
		{"Kriminalamt #4021", "spam[gban]", true, "Already banned by kriminalamt"},
		{"spambot", "spam[gban]", true, "Already banned by autobahn"},
		{"Vollzugsanstalt #12", "spambot", true, "Already banned by autobahn"},
		{"kriminalamt #1", "vollzugsanstalt #2", true, "Already banned by kriminalamt"},
		{"spambot", "spambot", false, ""},
		{"spambot", "kriminalamt #9", false, ""},
		{"spam[gban]", "spambot", false, ""},
		{"crypto scam", "spam[gban]", false, ""},
		{"", "spam[gban]", false, ""},
	}
	for _, row := range table {
		msg, skip := precedenceSkip(row.stored, row.requested)
		assert.Equal(row.skip, skip, "stored=%q requested=%q", row.stored, row.requested)
		assert.Equal(row.msg, msg)
	}
}

func TestCombineReasons(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("spam adding 8+ members", combineReasons("spam adding 5+ members", "spam adding 3+ members"))
	assert.Equal("spam adding 8+ members", combineReasons("Spam Adding 5+ Members", "spam adding 3+ members"))
	assert.Equal("spam adding 3+ members", combineReasons("spam[gban]", "spam adding 3+ members"))
	assert.Equal("spam[gban]", combineReasons("spam adding 5+ members", "spam[gban]"))
	assert.Equal("spam[gban]", combineReasons("", "spam[gban]"))
}

func TestRenderTemplate(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("/gban 42 spam {not a tag}", renderTemplate("/gban {uid} {reason} {not a tag}", 42, "spam"))
	assert.Equal("42", renderTemplate("{uid}", 42, "ignored"))
	assert.Equal("/fban 42 {uid} in reason", renderTemplate("/fban {uid} {reason}", 42, "{uid} in reason"))
}
