package battle

import "strings"

// MinFreestyleLength is the minimum submission length accepted when no
// reference solution exists for the level.
const MinFreestyleLength = 10

// syntacticMarkers are substrings at least one of which a freestyle
// submission must contain to count as code.
var syntacticMarkers = []string{"def ", "function ", "class ", "print", "return", "=", "("}

// ValidateSolution compares a submission against the level's reference
// solution. Both sides are normalized first; the comparison is line-by-line
// and case-insensitive, and the line counts must match exactly. With no
// reference available the submission is accepted on a structural sniff test.
func ValidateSolution(submitted, reference string) bool {
	if strings.TrimSpace(reference) == "" {
		return looksLikeCode(submitted)
	}
	got := NormalizeCode(submitted)
	want := NormalizeCode(reference)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if !strings.EqualFold(got[i], want[i]) {
			return false
		}
	}
	return true
}

// NormalizeCode strips line comments, collapses internal whitespace, trims
// and drops empty lines, returning the surviving lines.
func NormalizeCode(code string) []string {
	var out []string
	for _, line := range strings.Split(code, "\n") {
		line = stripLineComment(line)
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// stripLineComment removes trailing #... and //... comments.
func stripLineComment(line string) string {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	return line
}

// looksLikeCode is the freestyle acceptance test: long enough and carrying at
// least one syntactic marker.
func looksLikeCode(submitted string) bool {
	trimmed := strings.TrimSpace(submitted)
	if len(trimmed) <= MinFreestyleLength {
		return false
	}
	for _, marker := range syntacticMarkers {
		if strings.Contains(trimmed, marker) {
			return true
		}
	}
	return false
}
