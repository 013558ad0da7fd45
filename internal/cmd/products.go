package cmd

import (
	"context"
	"fmt"

	"github.com/lojinha-app/storefront/internal/catalog"
	"github.com/lojinha-app/storefront/internal/storefront"
)

// ProductOptions is the product given on the command line.
type ProductOptions struct {
	Name        string
	Description string
	Price       string
	Category    string
	Image       string
}

// DoListProducts prints the catalog.
func DoListProducts(ctx context.Context, rt *Runtime, options *LoginOptions) error {
	out := options.out()
	products, err := rt.Service.Catalog(ctx)
	if err != nil {
		return describeError("list products failed", err)
	}
	if len(products) == 0 {
		_, _ = fmt.Fprintln(out, "No products")
		return nil
	}
	for _, p := range products {
		_, _ = fmt.Fprintf(out, "%-36s  %-32s  %12s  %s\n", p.ID, p.Name, catalog.FormatPrice(p.Price), p.Category)
		if p.ImageURL != "" {
			_, _ = fmt.Fprintf(out, "%-36s  %s\n", "", p.ImageURL)
		}
	}
	_, _ = fmt.Fprintf(out, "%d products\n", len(products))
	return nil
}

// DoAddProduct uploads the image and creates the product.
func DoAddProduct(ctx context.Context, rt *Runtime, product ProductOptions, options *LoginOptions) error {
	created, err := rt.Service.AddProduct(ctx, storefront.AddProductInput{
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Category:    product.Category,
		ImagePath:   product.Image,
	})
	if err != nil {
		return describeError("add product failed", err)
	}
	_, _ = fmt.Fprintf(options.out(), "Product %s created: %s (%s)\n", created.ID, created.Name, catalog.FormatPrice(created.Price))
	return nil
}
