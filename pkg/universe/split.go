package universe

import (
	"regexp"
	"strings"
)

var constraintOp = regexp.MustCompile("[<>=]+")

// SplitDepends parses "name<op>version" dependency tokens into a
// DepMap. The operator and version stay together as one verbatim
// constraint string; a bare name gets an empty constraint.
func SplitDepends(tokens []string) DepMap {
	deps := make(DepMap, len(tokens))
	for _, tok := range tokens {
		name, constraint := tok, ""
		if loc := constraintOp.FindStringIndex(tok); loc != nil {
			name, constraint = tok[:loc[0]], tok[loc[0]:]
		}
		deps.Add(strings.TrimSpace(name), strings.TrimSpace(constraint))
	}
	return deps
}

// SplitOptDepends parses "name: reason" optional dependency tokens.
func SplitOptDepends(tokens []string) DepMap {
	deps := make(DepMap, len(tokens))
	for _, tok := range tokens {
		name, reason, _ := strings.Cut(tok, ":")
		deps.Add(strings.TrimSpace(name), strings.TrimSpace(reason))
	}
	return deps
}
