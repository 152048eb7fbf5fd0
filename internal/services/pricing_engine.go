package services

import (
	"errors"
	"fmt"

	domain "github.com/pulsefit/api/internal/domain"
)

// ErrProductNotFound indicates a cart line references a product missing from the catalog.
var ErrProductNotFound = errors.New("pricing: product not found")

// PricingEngine recomputes cart monetary fields from live catalog prices. It
// never trusts amounts stored on the cart; running it twice on the same inputs
// yields the same totals.
type PricingEngine struct{}

// NewPricingEngine constructs the pure pricing engine.
func NewPricingEngine() *PricingEngine {
	return &PricingEngine{}
}

// Recompute derives subtotal, tax, shipping, and total for the cart from the
// supplied catalog prices. Lines with non-positive quantity contribute nothing.
func (e *PricingEngine) Recompute(cart domain.Cart, prices map[string]domain.Product) (domain.Cart, error) {
	var subTotal float64
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			continue
		}
		product, ok := prices[item.ProductID]
		if !ok {
			return domain.Cart{}, fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
		}
		subTotal += product.Price * float64(item.Quantity)
	}

	subTotal = domain.Round2(subTotal)
	tax := domain.Round2(subTotal * domain.TaxRate)
	shipping := 0.0
	if subTotal > 0 {
		shipping = domain.FlatShippingCost
	}

	cart.SubTotal = subTotal
	cart.Tax = tax
	cart.ShippingCost = shipping
	cart.Total = domain.Round2(subTotal + tax + shipping)
	return cart, nil
}
