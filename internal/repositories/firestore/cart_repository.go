package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/pulsefit/api/internal/domain"
	pfirestore "github.com/pulsefit/api/internal/platform/firestore"
	"github.com/pulsefit/api/internal/repositories"
)

const cartCollection = "carts"

type cartItemDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
	Size      string `firestore:"size,omitempty"`
}

type cartDocument struct {
	Items        []cartItemDocument `firestore:"items"`
	SubTotal     float64            `firestore:"subTotal"`
	Tax          float64            `firestore:"tax"`
	ShippingCost float64            `firestore:"shippingCost"`
	Total        float64            `firestore:"total"`
	CreatedAt    time.Time          `firestore:"createdAt"`
	UpdatedAt    time.Time          `firestore:"updatedAt"`
}

// CartRepository persists one cart document per user within Firestore.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection),
	}, nil
}

// Get loads the cart for the given user.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	return cartFromDocument(userID, doc.Data), nil
}

// Save upserts the cart document keyed by the owning user id.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := time.Now().UTC()
	updatedAt := cart.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = updatedAt
	}

	doc := cartDocument{
		Items:        make([]cartItemDocument, 0, len(cart.Items)),
		SubTotal:     cart.SubTotal,
		Tax:          cart.Tax,
		ShippingCost: cart.ShippingCost,
		Total:        cart.Total,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.Size,
		})
	}

	if _, err := r.base.Set(ctx, userID, doc); err != nil {
		return domain.Cart{}, err
	}
	return cartFromDocument(userID, doc), nil
}

func cartFromDocument(userID string, doc cartDocument) domain.Cart {
	cart := domain.Cart{
		UserID:       userID,
		Items:        make([]domain.CartItem, 0, len(doc.Items)),
		SubTotal:     doc.SubTotal,
		Tax:          doc.Tax,
		ShippingCost: doc.ShippingCost,
		Total:        doc.Total,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.Size,
		})
	}
	return cart
}
