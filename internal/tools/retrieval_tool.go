package tools

import (
	"context"

	"github.com/insurelens/insurelens-ai/internal/search"
)

// RetrievalPayload is what document_retriever returns: the passages ranked
// best first. Passages is never nil, so an empty result serializes as [].
type RetrievalPayload struct {
	Query    string           `json:"query"`
	Product  string           `json:"product,omitempty"`
	Passages []search.Passage `json:"passages"`
}

// RegisterDocumentRetriever wires the document_retriever tool over the
// document index. Index outages surface as ExecutionError after the
// registry's transient retry.
func RegisterDocumentRetriever(reg *Registry, searcher search.Searcher) error {
	def := ByName(NameDocumentRetriever)

	return reg.Register(*def, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		query := stringArg(args, "query")
		opts := search.Options{Product: stringArg(args, "product")}
		if k, ok := int64Arg(args, "top_k"); ok {
			opts.TopK = int(k)
		}

		passages, err := searcher.Search(ctx, query, opts)
		if err != nil {
			return nil, err
		}
		if passages == nil {
			passages = []search.Passage{}
		}
		return RetrievalPayload{Query: query, Product: opts.Product, Passages: passages}, nil
	})
}
