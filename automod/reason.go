package automod

import (
	"regexp"
	"strconv"
	"strings"
)

const DefaultReason = "spam[gban]"

// Markers of automated ban sources, lowest precedence first. Matching is case-insensitive.
var precedenceMarkers = []string{"spambot", "vollzugsanstalt", "kriminalamt"}

var spamAddPattern = regexp.MustCompile(`(?i)spam adding (\d+)\+ members`)

// Precedence of a reason: one plus the index of the highest marker it contains, or zero if it contains none.
func reasonRank(reason string) int {
	lower := strings.ToLower(reason)
	rank := 0
	for i, m := range precedenceMarkers {
		if strings.Contains(lower, m) {
			rank = i + 1
		}
	}
	return rank
}

// Decides whether a requested ban must yield to the stored one. Returns the skip reason when the stored reason carries a marker of higher precedence than the requested reason.
func precedenceSkip(stored, requested string) (string, bool) {
	sr := reasonRank(stored)
	if sr == 0 || sr <= reasonRank(requested) {
		return "", false
	}
	if precedenceMarkers[sr-1] == "kriminalamt" {
		return "Already banned by kriminalamt", true
	}
	return "Already banned by autobahn", true
}

func spamAddCount(reason string) (int, bool) {
	m := spamAddPattern.FindStringSubmatch(reason)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// If both reasons record a "spam adding N+ members" count, returns a reason with the counts summed. Otherwise returns requested unchanged.
func combineReasons(stored, requested string) string {
	prev, ok := spamAddCount(stored)
	if !ok {
		return requested
	}
	cur, ok := spamAddCount(requested)
	if !ok {
		return requested
	}
	return "spam adding " + strconv.Itoa(prev+cur) + "+ members"
}
