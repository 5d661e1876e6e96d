package tools

// Category groups tools by what they do to answer a query.
type Category string

const (
	// Calculation tools price policies deterministically from rate tables.
	CategoryCalculation Category = "calculation"

	// Retrieval tools fetch policy document passages from the index.
	CategoryRetrieval Category = "retrieval"

	// Comparison tools price the same inputs across products.
	CategoryComparison Category = "comparison"

	// Catalog tools describe what is loaded and serveable.
	CategoryCatalog Category = "catalog"
)

// Definition describes one tool: its identity plus the JSON schema its
// arguments are validated against before the handler runs.
type Definition struct {
	Name        string                 `json:"name"`
	Category    Category               `json:"category"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Tool names.
const (
	NamePremiumCalculator = "premium_calculator"
	NameDocumentRetriever = "document_retriever"
	NamePolicyComparator  = "policy_comparator"
	NameListProducts      = "list_products"
)

// Taxonomy defines every tool the service exposes. The router dispatches to
// exactly one of these per query; the reasoning engine may chain them.
var Taxonomy = []Definition{
	{
		Name:        NamePremiumCalculator,
		Category:    CategoryCalculation,
		Description: "Calculate the premium for a product from its rate tables: gross premium, GST and total, priced off the eldest member's age.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"product": map[string]interface{}{
					"type":        "string",
					"minLength":   1,
					"description": "Product name as listed by list_products",
				},
				"policy_type": map[string]interface{}{
					"type": "string",
					"enum": []interface{}{"individual", "family_floater"},
				},
				"ages": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 130},
					"minItems":    1,
					"description": "Ages of every covered member",
				},
				"sum_insured": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"description": "Cover amount in rupees, e.g. 500000 for 5L",
				},
			},
			"required":             []interface{}{"product", "policy_type", "ages", "sum_insured"},
			"additionalProperties": false,
		},
	},
	{
		Name:        NameDocumentRetriever,
		Category:    CategoryRetrieval,
		Description: "Retrieve the policy document passages most relevant to a question, optionally scoped to one product.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":      "string",
					"minLength": 1,
				},
				"product": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one product's documents",
				},
				"top_k": map[string]interface{}{
					"type":    "integer",
					"minimum": 1,
					"maximum": 20,
				},
			},
			"required":             []interface{}{"query"},
			"additionalProperties": false,
		},
	},
	{
		Name:        NamePolicyComparator,
		Category:    CategoryComparison,
		Description: "Price the same members and cover across two or more products and report the cheapest and the saving.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"products": map[string]interface{}{
					"type":     "array",
					"items":    map[string]interface{}{"type": "string", "minLength": 1},
					"minItems": 2,
				},
				"policy_type": map[string]interface{}{
					"type": "string",
					"enum": []interface{}{"individual", "family_floater"},
				},
				"ages": map[string]interface{}{
					"type":     "array",
					"items":    map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 130},
					"minItems": 1,
				},
				"sum_insured": map[string]interface{}{
					"type":    "integer",
					"minimum": 1,
				},
			},
			"required":             []interface{}{"products", "policy_type", "ages", "sum_insured"},
			"additionalProperties": false,
		},
	},
	{
		Name:        NameListProducts,
		Category:    CategoryCatalog,
		Description: "List the loaded products with their compositions, age coverage and sum insured tiers.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"product": map[string]interface{}{
					"type":        "string",
					"description": "Describe a single product instead of all",
				},
			},
			"additionalProperties": false,
		},
	},
}

// ByName returns the taxonomy definition for a tool, or nil.
func ByName(name string) *Definition {
	for i := range Taxonomy {
		if Taxonomy[i].Name == name {
			return &Taxonomy[i]
		}
	}
	return nil
}

// ByCategory returns all taxonomy definitions in a category.
func ByCategory(category Category) []Definition {
	var defs []Definition
	for _, d := range Taxonomy {
		if d.Category == category {
			defs = append(defs, d)
		}
	}
	return defs
}
