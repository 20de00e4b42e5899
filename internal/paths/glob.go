package paths

import (
	"path"
	"strings"
)

// Category names may contain "/" ("Refogados - Legumes/Folhas"); inside a
// single segment it is swapped for U+2215 so segment globs never split it.
const segmentSlash = "∕"

// MatchGlob checks if a slash-separated path matches a glob pattern.
// Supports *, ?, [...] within a segment and ** across segments.
func MatchGlob(pattern, p string) bool {
	return matchParts(SplitPath(pattern), SplitPath(p))
}

// MatchNodePath matches a glob pattern against a category path given as its
// segment names (root first). Both sides are compared on NormalizeName keys,
// so "rotisseria/*" matches ["ROTISSERIA", "PRODUCAO - ROTISSERIA"].
func MatchNodePath(pattern string, segments []string) bool {
	patternParts := SplitPath(pattern)
	for i, part := range patternParts {
		if part != "**" {
			patternParts[i] = NormalizeName(part)
		}
	}

	pathParts := make([]string, len(segments))
	for i, seg := range segments {
		pathParts[i] = strings.ReplaceAll(NormalizeName(seg), "/", segmentSlash)
	}
	return matchParts(patternParts, pathParts)
}

func matchParts(patternParts, pathParts []string) bool {
	if len(patternParts) == 0 {
		return len(pathParts) == 0
	}

	if len(pathParts) == 0 {
		// Check if remaining pattern parts are all **
		for _, p := range patternParts {
			if p != "**" {
				return false
			}
		}
		return true
	}

	pattern := patternParts[0]
	segment := pathParts[0]

	if pattern == "**" {
		// ** can match zero or more path segments
		return matchParts(patternParts[1:], pathParts) ||
			matchParts(patternParts, pathParts[1:])
	}

	matched, err := path.Match(pattern, segment)
	if err != nil || !matched {
		return false
	}

	return matchParts(patternParts[1:], pathParts[1:])
}

// IsGlobPattern checks if a string contains glob characters
func IsGlobPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// SplitPath splits a path into segments
func SplitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// JoinPath joins path segments
func JoinPath(segments ...string) string {
	return strings.Join(segments, "/")
}
