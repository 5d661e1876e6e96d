package tools

import (
	"context"

	"github.com/insurelens/insurelens-ai/internal/premium"
)

// RegisterPolicyComparator wires the policy_comparator tool. The payload is
// the *premium.Comparison: one result per requested product, plus the
// cheapest product and the saving against the dearest successful quote.
func RegisterPolicyComparator(reg *Registry, calc *premium.Calculator) error {
	def := ByName(NamePolicyComparator)

	return reg.Register(*def, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		products := stringsArg(args, "products")
		policyType := stringArg(args, "policy_type")
		sumInsured, _ := int64Arg(args, "sum_insured")
		members := membersFromAges(args, "ages")

		return calc.Compare(ctx, products, policyType, members, sumInsured)
	})
}
