package tools

import (
	"context"

	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/audit"
	"github.com/insurelens/insurelens-ai/internal/db"
	"github.com/insurelens/insurelens-ai/internal/premium"
)

// RegisterPremiumCalculator wires the premium_calculator tool. The payload of
// a successful invocation is the *premium.Quote. Each quote is also persisted
// to the quote trail and audited; a failed save loses the trail row, not the
// quote.
func RegisterPremiumCalculator(reg *Registry, calc *premium.Calculator, quotes db.QuoteStore, auditLog audit.Logger, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	def := ByName(NamePremiumCalculator)

	return reg.Register(*def, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		product := stringArg(args, "product")
		policyType := stringArg(args, "policy_type")
		sumInsured, _ := int64Arg(args, "sum_insured")
		members := membersFromAges(args, "ages")

		quote, err := calc.Calculate(ctx, product, policyType, members, sumInsured)
		if err != nil {
			return nil, err
		}

		if quotes != nil {
			rec := &db.QuoteRecord{
				ConversationID: ConversationIDFrom(ctx),
				Product:        quote.Product,
				PolicyType:     quote.PolicyType,
				Composition:    quote.Composition,
				SumInsured:     quote.SumInsured,
				EldestAge:      quote.EldestAge,
				GrossPremium:   quote.GrossPremium.StringFixed(2),
				GSTAmount:      quote.GSTAmount.StringFixed(2),
				TotalPremium:   quote.TotalPremium.StringFixed(2),
				WorkbookPath:   quote.WorkbookPath,
				CreatedAt:      quote.CalculatedAt,
			}
			if err := quotes.SaveQuote(ctx, rec); err != nil {
				log.Warn("persist quote",
					zap.String("product", quote.Product),
					zap.Error(err))
			}
		}
		if auditLog != nil {
			auditLog.LogPremiumCalculated(ctx, quote.Product, quote.Composition,
				quote.SumInsured, quote.TotalPremium.StringFixed(2))
		}
		return quote, nil
	})
}
