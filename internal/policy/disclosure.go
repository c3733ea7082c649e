package policy

import "strings"

// DisclosureDecision is the outcome of checking a question against the categories the user
// has shared.
type DisclosureDecision struct {
	Refused  bool
	Category string
	Reply    string
}

type disclosureRule struct {
	keyword  string
	category string
	refusal  string
}

// Rules are checked in order; the first keyword whose category is not shared refuses.
var disclosureRules = []disclosureRule{
	{
		keyword:  "credit score",
		category: "credit_score",
		refusal:  "I am unable to answer that question. You have not granted access to your credit score data.",
	},
	{
		keyword:  "epf",
		category: "epf_retirement",
		refusal:  "I cannot provide details about your retirement fund. Please grant access to your EPF/Retirement data first.",
	},
	{
		keyword:  "investment",
		category: "investments",
		refusal:  "To discuss your portfolio, I need access to your investment data. Please update your privacy settings.",
	},
}

// CheckDisclosure refuses a question that mentions a category the user has not shared.
// shared reports whether a category key is present in the accessible view.
func CheckDisclosure(query string, shared func(category string) bool) DisclosureDecision {
	q := strings.ToLower(query)
	for _, rule := range disclosureRules {
		if !strings.Contains(q, rule.keyword) {
			continue
		}
		if shared != nil && shared(rule.category) {
			continue
		}
		return DisclosureDecision{
			Refused:  true,
			Category: rule.category,
			Reply:    rule.refusal,
		}
	}
	return DisclosureDecision{}
}
