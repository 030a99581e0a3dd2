package assistant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"monee/internal/core"
	"monee/internal/report"
)

const (
	contextRecentLimit = 10
	noExpensesText     = "No expenses have been recorded yet."
)

const promptTemplate = `You are a helpful financial assistant for Monee Manager, an expense tracking app. You help users analyze their spending patterns, provide budgeting advice, and answer questions about their expenses.

Current user's expense data:
%s

User question: %s

Be helpful, concise, and provide actionable financial advice. If asked about expenses, refer to the actual data provided above.`

// Context renders the expense summary handed to the model.
func Context(records []core.Expense) string {
	if len(records) == 0 {
		return noExpensesText
	}

	recent := indentJSON(report.LatestByDate(records, contextRecentLimit))

	var b strings.Builder
	b.WriteString("\nExpense Summary:\n")
	fmt.Fprintf(&b, "- Total expenses: %s\n", core.FormatAmount(report.Total(records)))
	fmt.Fprintf(&b, "- Number of transactions: %d\n", len(records))
	fmt.Fprintf(&b, "- Categories breakdown: %s\n", categoriesJSON(report.ByCategory(records)))
	fmt.Fprintf(&b, "- Recent expenses: %s\n", recent)
	return b.String()
}

// Prompt wraps the expense context and the user's question in the assistant instructions.
func Prompt(records []core.Expense, question string) string {
	return fmt.Sprintf(promptTemplate, Context(records), question)
}

// categoriesJSON writes the breakdown as an indented object whose keys keep
// first-seen order and whose values are plain numbers.
func categoriesJSON(totals []core.CategoryAmount) string {
	if len(totals) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteString("{\n")
	for i, c := range totals {
		fmt.Fprintf(&b, "  %s: %s", indentJSON(c.Category.String()), c.Amount.String())
		if i < len(totals)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

// indentJSON encodes v without HTML escaping so category names like
// "Food & Dining" stay readable.
func indentJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
