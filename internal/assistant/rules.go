package assistant

import (
	"context"
	"strings"
)

const (
	spendingSummaryReply = "Based on the transaction data you've shared, you spent approximately $370 last month on items like groceries and car insurance. Would you like a more detailed breakdown by category?"
	vacationReply        = "Affording a vacation depends on its cost. Your current savings are healthy, and your monthly income consistently exceeds your expenses. To give you a more precise answer, could you tell me the estimated cost of the vacation?"
	acknowledgeReply     = "I have received your query. Based on the data you've provided, I am analyzing it to provide you with actionable insights. How can I further assist you?"
)

var cannedAnswers = []struct {
	phrase string
	reply  string
}{
	{phrase: "how much did i spend last month", reply: spendingSummaryReply},
	{phrase: "can i afford a vacation", reply: vacationReply},
}

// RulesBrain answers from a fixed table of phrases. It never fails.
type RulesBrain struct{}

func NewRulesBrain() *RulesBrain { return &RulesBrain{} }

func (b *RulesBrain) Answer(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return cannedAnswer(req.Query), nil
}

func cannedAnswer(query string) string {
	q := strings.ToLower(query)
	for _, c := range cannedAnswers {
		if strings.Contains(q, c.phrase) {
			return c.reply
		}
	}
	return acknowledgeReply
}
