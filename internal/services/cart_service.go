package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/pulsefit/api/internal/domain"
	"github.com/pulsefit/api/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input parameters.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartProductNotFound indicates the referenced product does not exist in the catalog.
	ErrCartProductNotFound = errors.New("cart: product not found")
	// ErrCartUnavailable indicates cart dependencies are currently unavailable.
	ErrCartUnavailable = errors.New("cart: unavailable")
)

// CartServiceDeps wires the dependencies required by the cart service.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Pricer   *PricingEngine
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	pricer   *PricingEngine
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs a CartService validating required dependencies.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}

	pricer := deps.Pricer
	if pricer == nil {
		pricer = NewPricingEngine()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		pricer:   pricer,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Get returns the user's cart, or an empty cart when none has been persisted yet.
func (s *cartService) Get(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return domain.Cart{UserID: userID, Items: []domain.CartItem{}}, nil
		}
		return Cart{}, s.translateError(ctx, "cart.get_failed", userID, err)
	}
	return cart, nil
}

// AddItem merges the product into the cart, reprices, and persists the result.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" || productID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	quantity := cmd.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	if _, err := s.products.FindByID(ctx, productID); err != nil {
		if isNotFound(err) {
			return Cart{}, ErrCartProductNotFound
		}
		return Cart{}, s.translateError(ctx, "cart.product_lookup_failed", userID, err)
	}

	cart, err := s.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	merged := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity += quantity
			if size := strings.TrimSpace(cmd.Size); size != "" {
				cart.Items[i].Size = size
			}
			merged = true
			break
		}
	}
	if !merged {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: productID,
			Quantity:  quantity,
			Size:      strings.TrimSpace(cmd.Size),
		})
	}

	return s.repriceAndSave(ctx, cart)
}

// UpdateQuantity raises or lowers a line's quantity. Lowering never drops the
// line below one, and a product absent from the cart is a silent no-op.
func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" || productID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	changed := false
	for i := range cart.Items {
		if cart.Items[i].ProductID != productID {
			continue
		}
		if cmd.Increment {
			cart.Items[i].Quantity++
			changed = true
		} else if cart.Items[i].Quantity > 1 {
			cart.Items[i].Quantity--
			changed = true
		}
		break
	}
	if !changed {
		return cart, nil
	}

	return s.repriceAndSave(ctx, cart)
}

// RemoveItem drops the product's line from the cart and reprices.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" || productID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	kept := cart.Items[:0]
	removed := false
	for _, item := range cart.Items {
		if item.ProductID == productID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return cart, nil
	}
	cart.Items = kept

	return s.repriceAndSave(ctx, cart)
}

// Clear empties the user's cart document in place, preserving its lineage.
func (s *cartService) Clear(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrCartInvalidInput
	}
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return s.translateError(ctx, "cart.clear_failed", userID, err)
	}
	if _, err := s.carts.Save(ctx, cart.Cleared(s.now())); err != nil {
		return s.translateError(ctx, "cart.clear_failed", userID, err)
	}
	return nil
}

func (s *cartService) repriceAndSave(ctx context.Context, cart domain.Cart) (Cart, error) {
	prices, err := s.lookupPrices(ctx, cart)
	if err != nil {
		return Cart{}, err
	}

	priced, err := s.pricer.Recompute(cart, prices)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return Cart{}, ErrCartProductNotFound
		}
		return Cart{}, err
	}

	now := s.now()
	if priced.CreatedAt.IsZero() {
		priced.CreatedAt = now
	}
	priced.UpdatedAt = now

	saved, err := s.carts.Save(ctx, priced)
	if err != nil {
		return Cart{}, s.translateError(ctx, "cart.save_failed", priced.UserID, err)
	}
	return saved, nil
}

func (s *cartService) lookupPrices(ctx context.Context, cart domain.Cart) (map[string]domain.Product, error) {
	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}
	prices, err := s.products.PriceOf(ctx, ids)
	if err != nil {
		return nil, s.translateError(ctx, "cart.price_lookup_failed", cart.UserID, err)
	}
	return prices, nil
}

func (s *cartService) translateError(ctx context.Context, event string, userID string, err error) error {
	s.logger(ctx, event, map[string]any{
		"userId": userID,
		"error":  err.Error(),
	})
	return ErrCartUnavailable
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
