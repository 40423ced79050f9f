package discovery

import (
	"sort"
	"strings"
)

// codeownersPaths are the candidate CODEOWNERS locations, probed in order.
// The first path resolving to a file wins.
var codeownersPaths = []string{".github/CODEOWNERS", "docs/CODEOWNERS", "CODEOWNERS"}

// ownerClass is the classification of one CODEOWNERS owner token.
type ownerClass int

const (
	ownerIgnored ownerClass = iota
	ownerTeam
	ownerUser
)

// classifyCodeowner assigns an owner token to exactly one class. Teams are
// @-prefixed and slash-qualified (@org/team); users are @-prefixed without a
// slash, or email addresses. Anything else is ignored.
func classifyCodeowner(token string) ownerClass {
	switch {
	case strings.HasPrefix(token, "@") && strings.Contains(token, "/"):
		return ownerTeam
	case strings.HasPrefix(token, "@"):
		return ownerUser
	case strings.Contains(token, "@"):
		return ownerUser
	default:
		return ownerIgnored
	}
}

// parseCodeowners extracts the distinct team and user references from
// CODEOWNERS content. For each non-blank, non-comment line the first token is
// the path pattern and is skipped; remaining tokens are owners until an
// inline comment token starts.
func parseCodeowners(content string) (teams, users []string) {
	teamSet := make(map[string]bool)
	userSet := make(map[string]bool)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		tokens := strings.Fields(line)
		for i, token := range tokens {
			if strings.HasPrefix(token, "#") {
				break
			}
			if i == 0 {
				continue
			}
			switch classifyCodeowner(token) {
			case ownerTeam:
				teamSet[token] = true
			case ownerUser:
				userSet[token] = true
			}
		}
	}

	return sortedKeys(teamSet), sortedKeys(userSet)
}

// serializeCodeowners renders team and user sets back into CODEOWNERS form,
// one catch-all rule carrying every owner.
func serializeCodeowners(teams, users []string) string {
	owners := make([]string, 0, len(teams)+len(users))
	owners = append(owners, teams...)
	owners = append(owners, users...)
	if len(owners) == 0 {
		return ""
	}
	return "* " + strings.Join(owners, " ") + "\n"
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
