package referrals

import (
	"strings"
	"unicode"
)

const clarificationText = "I'm not sure I understood that. Could you tell me what kind of professional " +
	"you are looking for and where? For example, ask me to find a tax attorney in California."

type cannedAnswer struct {
	phrases []string
	text    string
	data    Data
}

var cannedAnswers = []cannedAnswer{
	{
		phrases: []string{"tax attorney in california", "tax attorneys in california", "tax lawyer in california"},
		text: "I found 2 tax attorneys in your network in California:\n" +
			"1. Nathan Aldrin - from Aldrin & Associates Tax Law\n" +
			"2. Jenny Johansen - from Johansen Tax Advisory\n" +
			"I also found Bill Robins, an independent tax attorney in San Diego who is not in your network yet. " +
			"Would you like me to request an introduction?",
		data: Data{
			NetworkPartners: []Partner{
				{Name: "Nathan Aldrin", Company: "Aldrin & Associates Tax Law"},
				{Name: "Jenny Johansen", Company: "Johansen Tax Advisory"},
			},
			ExternalPartners: []Partner{{Name: "Bill Robins"}},
		},
	},
	{
		phrases: []string{"estate planning attorney in new york", "estate attorney in new york", "estate planning lawyer in new york"},
		text: "Here are the estate planning attorneys in your network in New York:\n" +
			"1. Margaret Chen - from Chen Estate Law\n" +
			"2. David Okafor - from Hudson Trust Partners\n" +
			"I also found Rachel Stein, who specializes in trusts for business owners.",
		data: Data{
			NetworkPartners: []Partner{
				{Name: "Margaret Chen", Company: "Chen Estate Law"},
				{Name: "David Okafor", Company: "Hudson Trust Partners"},
			},
			ExternalPartners: []Partner{{Name: "Rachel Stein"}},
		},
	},
	{
		phrases: []string{"cpa in texas", "accountant in texas", "cpas in texas"},
		text: "I found one CPA in your network in Texas:\n" +
			"1. Luis Moreno - from Lone Star CPA Group\n" +
			"I also found Priya Natarajan, a CPA in Austin focused on small business tax.",
		data: Data{
			NetworkPartners:  []Partner{{Name: "Luis Moreno", Company: "Lone Star CPA Group"}},
			ExternalPartners: []Partner{{Name: "Priya Natarajan"}},
		},
	},
}

// Fallback answers a query without any network access. The same query always
// yields the same result.
func Fallback(query string) Result {
	normalized := normalizeQuery(query)
	if normalized != "" {
		for _, answer := range cannedAnswers {
			for _, phrase := range answer.phrases {
				if strings.Contains(normalized, phrase) {
					return Result{Text: answer.text, Data: answer.data.clone(), Origin: OriginFallback}
				}
			}
		}
	}

	return Result{
		Text:   clarificationText,
		Data:   &Data{NetworkPartners: []Partner{}, ExternalPartners: []Partner{}},
		Origin: OriginFallback,
	}
}

func normalizeQuery(query string) string {
	var normalized strings.Builder
	for _, r := range strings.ToLower(query) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			normalized.WriteRune(r)
		case unicode.IsSpace(r), unicode.IsPunct(r):
			normalized.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(normalized.String()), " ")
}
