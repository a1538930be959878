package referrals

import (
	"context"
	"regexp"
	"strings"
)

// A period only belongs to a name as part of an initial ("J. Smith"), so a
// name ends at a sentence boundary.
const (
	nameWord    = `(?:[A-Z]\.|[A-Z][A-Za-z'’-]*)`
	namePattern = nameWord + `(?:\s+` + nameWord + `){1,3}`
)

var (
	networkPartnerPattern  = regexp.MustCompile(`(` + namePattern + `)\s+[-–—]\s+from\s+([^\n.,;!?]+)`)
	externalPartnerPattern = regexp.MustCompile(`(?i:also\s+found)\s+(` + namePattern + `)`)

	markdownEmphasis = strings.NewReplacer("**", "", "__", "", "`", "")

	// leadingWords are capitalized sentence openers that the name pattern
	// cannot tell apart from a first name.
	leadingWords = map[string]bool{
		"Also": true, "And": true, "Ask": true, "Call": true, "Consider": true,
		"Contact": true, "Maybe": true, "Meet": true, "Or": true, "Perhaps": true,
		"See": true, "Then": true, "Try": true, "Your": true,
	}
)

func trimName(name string) string {
	words := strings.Fields(name)
	for len(words) > 2 && leadingWords[words[0]] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

// Extract finds partner mentions in text. "<Name> - from <Company>" is an
// in-network partner, "also found <Name>" an external one. Names are
// deduplicated in order of first appearance and a text without matches
// yields empty lists.
func Extract(text string) *Data {
	text = markdownEmphasis.Replace(text)
	data := &Data{NetworkPartners: []Partner{}, ExternalPartners: []Partner{}}

	seen := map[string]bool{}
	for _, match := range networkPartnerPattern.FindAllStringSubmatch(text, -1) {
		name := trimName(match[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		data.NetworkPartners = append(data.NetworkPartners, Partner{
			Name:    name,
			Company: strings.TrimSpace(match[2]),
		})
	}

	seenExternal := map[string]bool{}
	for _, match := range externalPartnerPattern.FindAllStringSubmatch(text, -1) {
		name := trimName(match[1])
		if seen[name] || seenExternal[name] {
			continue
		}
		seenExternal[name] = true
		data.ExternalPartners = append(data.ExternalPartners, Partner{Name: name})
	}

	return data
}

// Extractor is a secondary, model backed extraction used when the patterns
// find nothing in a model answer.
type Extractor interface {
	Extract(ctx context.Context, text string) (*Data, error)
}
