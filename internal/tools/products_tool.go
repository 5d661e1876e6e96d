package tools

import (
	"context"

	"github.com/insurelens/insurelens-ai/internal/catalog"
)

// ProductsPayload lists what the service can currently price.
type ProductsPayload struct {
	Products []catalog.Info `json:"products"`
	Count    int            `json:"count"`
}

// RegisterListProducts wires the list_products tool. Without arguments it
// describes every loaded product; with a product argument it describes just
// that one, or fails NotFound.
func RegisterListProducts(reg *Registry, cat *catalog.Catalog) error {
	def := ByName(NameListProducts)

	return reg.Register(*def, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		if name := stringArg(args, "product"); name != "" {
			info, err := cat.Get(name)
			if err != nil {
				return nil, err
			}
			return ProductsPayload{Products: []catalog.Info{info}, Count: 1}, nil
		}

		infos := cat.List()
		return ProductsPayload{Products: infos, Count: len(infos)}, nil
	})
}
