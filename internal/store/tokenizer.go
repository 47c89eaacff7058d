package store

import (
	"regexp"
	"strings"
	"unicode"
)

var wordRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// minTokenLength drops single characters such as loop variables.
const minTokenLength = 2

// TokenizeCode lowercases the words of text after splitting identifiers on
// underscores and case changes. Both lexical backends and the query side use
// it, so index and query terms always agree.
//
//	TokenizeCode("parseHTTPRequest(max_size)") // [parse http request max size]
func TokenizeCode(text string) []string {
	var tokens []string
	for _, word := range wordRegex.FindAllString(text, -1) {
		for _, part := range SplitCodeToken(word) {
			if len([]rune(part)) < minTokenLength {
				continue
			}
			tokens = append(tokens, strings.ToLower(part))
		}
	}
	return tokens
}

// SplitCodeToken splits snake_case first, then camelCase within each part.
func SplitCodeToken(token string) []string {
	var out []string
	for _, part := range strings.Split(token, "_") {
		out = append(out, SplitCamelCase(part)...)
	}
	return out
}

// SplitCamelCase splits camelCase and PascalCase identifiers, keeping acronyms whole:
// "getUserById" gives [get User By Id] and "HTTPHandler" gives [HTTP Handler].
func SplitCamelCase(s string) []string {
	if s == "" {
		return nil
	}

	runes := []rune(s)
	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
		acronymEnd := unicode.IsUpper(runes[i-1]) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if prevLower || acronymEnd {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	return append(parts, string(runes[start:]))
}

// FilterStopWords removes stop words from tokens.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := stopWords[strings.ToLower(t)]; !stop {
			out = append(out, t)
		}
	}
	return out
}

// BuildStopWordMap lowercases stopWords into a set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

// uniqueTerms returns tokens without duplicates, keeping first occurrence order.
func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
