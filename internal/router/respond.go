package router

import (
	"fmt"
	"strings"

	"github.com/insurelens/insurelens-ai/internal/models"
	"github.com/insurelens/insurelens-ai/internal/premium"
	"github.com/insurelens/insurelens-ai/internal/tools"
)

// renderAnswer turns a ToolResult into the response text for the routed
// path. Failures get a plain statement of what went wrong; the error text
// from domain validation is already user-readable.
func renderAnswer(decision Decision, result models.ToolResult) string {
	if !result.Success {
		switch result.ErrorKind {
		case models.ErrorKindValidation:
			return "I could not complete that: " + result.Error
		case models.ErrorKindNotFound:
			return "I could not find that: " + result.Error
		default:
			return "Something went wrong while answering: " + result.Error
		}
	}

	switch payload := result.Payload.(type) {
	case *premium.Quote:
		return renderQuote(payload)
	case *premium.Comparison:
		return renderComparison(payload)
	case tools.RetrievalPayload:
		return renderPassages(payload)
	case tools.ProductsPayload:
		return renderProducts(payload)
	default:
		return fmt.Sprintf("%v", payload)
	}
}

func renderQuote(q *premium.Quote) string {
	return fmt.Sprintf(
		"Premium for %s (%s, sum insured %d): gross premium %s, GST (18%%) %s, total %s per year.",
		q.Product, q.Composition, q.SumInsured,
		q.GrossPremium.StringFixed(2), q.GSTAmount.StringFixed(2), q.TotalPremium.StringFixed(2),
	)
}

func renderComparison(cmp *premium.Comparison) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Comparison at sum insured %d:\n", cmp.SumInsured)
	for _, res := range cmp.Results {
		if res.Quote != nil {
			fmt.Fprintf(&b, "- %s: total %s (gross %s + GST %s)\n",
				res.Product, res.Quote.TotalPremium.StringFixed(2),
				res.Quote.GrossPremium.StringFixed(2), res.Quote.GSTAmount.StringFixed(2))
		} else {
			fmt.Fprintf(&b, "- %s: not priced (%s)\n", res.Product, res.Error)
		}
	}
	if cmp.Cheapest != "" {
		fmt.Fprintf(&b, "%s is the cheapest", cmp.Cheapest)
		if cmp.Saving.IsPositive() {
			fmt.Fprintf(&b, ", saving %s over the most expensive option", cmp.Saving.StringFixed(2))
		}
		b.WriteString(".")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderPassages(p tools.RetrievalPayload) string {
	if len(p.Passages) == 0 {
		return "I found nothing relevant in the policy documents for that question."
	}
	var b strings.Builder
	b.WriteString("From the policy documents:\n")
	for i, passage := range p.Passages {
		label := passage.Section
		if label == "" {
			label = passage.DocumentID
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, label, strings.TrimSpace(passage.Text))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderProducts(p tools.ProductsPayload) string {
	if p.Count == 0 {
		return "No products are loaded right now."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d product(s) available:\n", p.Count)
	for _, info := range p.Products {
		compositions := make([]string, 0, len(info.Tables))
		for _, tbl := range info.Tables {
			compositions = append(compositions, tbl.Composition)
		}
		fmt.Fprintf(&b, "- %s (%s)\n", info.Name, strings.Join(compositions, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
