package finance

// Category names one of the fixed financial data domains.
type Category string

const (
	CategoryAssets        Category = "assets"
	CategoryLiabilities   Category = "liabilities"
	CategoryTransactions  Category = "transactions"
	CategoryEPFRetirement Category = "epf_retirement"
	CategoryCreditScore   Category = "credit_score"
	CategoryInvestments   Category = "investments"
)

var allCategories = []Category{
	CategoryAssets,
	CategoryLiabilities,
	CategoryTransactions,
	CategoryEPFRetirement,
	CategoryCreditScore,
	CategoryInvestments,
}

// Categories returns the closed category set in display order.
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// IsKnown reports whether c belongs to the closed category set.
func (c Category) IsKnown() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }
