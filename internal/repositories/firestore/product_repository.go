package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/pulsefit/api/internal/domain"
	pfirestore "github.com/pulsefit/api/internal/platform/firestore"
	"github.com/pulsefit/api/internal/repositories"
)

const productCollection = "products"

type productDocument struct {
	Name     string  `firestore:"name"`
	Price    float64 `firestore:"price"`
	ImageURL string  `firestore:"imageUrl,omitempty"`
}

// ProductRepository reads catalog products for pricing and purchase snapshots.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productCollection),
	}, nil
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return productFromDocument(doc.ID, doc.Data), nil
}

// PriceOf resolves current products for the supplied ids. Ids that do not
// resolve to a document are omitted from the result.
func (r *ProductRepository) PriceOf(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	result := make(map[string]domain.Product, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		doc, err := r.base.Get(ctx, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		result[id] = productFromDocument(doc.ID, doc.Data)
	}
	return result, nil
}

func productFromDocument(productID string, doc productDocument) domain.Product {
	return domain.Product{
		ID:       productID,
		Name:     doc.Name,
		Price:    doc.Price,
		ImageURL: doc.ImageURL,
	}
}
