package plugins

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/kantek-org/kantek/plugin"

	"github.com/mattn/go-shellwords"
)

// Command arguments: positional values and key=value keywords. Values may be quoted with single or double quotes to include spaces.
type Args struct {
	Keywords   map[string]string
	Positional []string
}

// Text following the command word.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}

func tokenize(s string) ([]string, error) {
	p := shellwords.NewParser()
	var tokens []string
	for {
		toks, err := p.Parse(s)
		if err != nil {
			return nil, plugin.Validationf("parsing arguments: %v", err)
		}
		tokens = append(tokens, toks...)
		// Position counts runes
		rest := []rune(s)
		if p.Position < 0 || p.Position >= len(rest) {
			return tokens, nil
		}
		// shell operators mean nothing in a chat command; keep them as words
		tokens = append(tokens, string(rest[p.Position]))
		s = string(rest[p.Position+1:])
	}
}

func isKeyword(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

func ParseArgs(s string) (Args, error) {
	args := Args{Keywords: map[string]string{}}
	tokens, err := tokenize(s)
	if err != nil {
		return args, err
	}
	for _, tok := range tokens {
		if key, val, ok := strings.Cut(tok, "="); ok && isKeyword(key) {
			args.Keywords[key] = val
			continue
		}
		args.Positional = append(args.Positional, tok)
	}
	return args, nil
}

// Positional arguments which are integers, in order.
func (a Args) IDs() []int64 {
	var out []int64
	for _, p := range a.Positional {
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// Positional arguments which are not integers, in order.
func (a Args) Words() []string {
	var out []string
	for _, p := range a.Positional {
		if _, err := strconv.ParseInt(p, 10, 64); err != nil {
			out = append(out, p)
		}
	}
	return out
}
