package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/pulsefit/api/internal/domain"
	pfirestore "github.com/pulsefit/api/internal/platform/firestore"
	"github.com/pulsefit/api/internal/platform/pagination"
	"github.com/pulsefit/api/internal/repositories"
)

const paymentCollection = "payments"

type purchaseItemDocument struct {
	ProductID string  `firestore:"productId"`
	Name      string  `firestore:"name"`
	ImageURL  string  `firestore:"imageUrl,omitempty"`
	UnitPrice float64 `firestore:"unitPrice"`
	Quantity  int     `firestore:"quantity"`
}

type paymentDocument struct {
	OrderID        string                 `firestore:"orderId"`
	UserID         string                 `firestore:"userId"`
	SubscriptionID string                 `firestore:"subscriptionId,omitempty"`
	BillingPeriod  string                 `firestore:"billingPeriod,omitempty"`
	Price          float64                `firestore:"price"`
	Items          []purchaseItemDocument `firestore:"items,omitempty"`
	Status         string                 `firestore:"paymentStatus"`
	CreatedAt      time.Time              `firestore:"createdAt"`
	UpdatedAt      time.Time              `firestore:"updatedAt"`
}

// PaymentRepository stores payment records keyed by the gateway transaction id.
type PaymentRepository struct {
	base     *pfirestore.BaseRepository[paymentDocument]
	provider *pfirestore.Provider
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{
		base:     pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection),
		provider: provider,
	}, nil
}

// Insert creates the payment record, failing when the transaction id already exists.
func (r *PaymentRepository) Insert(ctx context.Context, record domain.PaymentRecord) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	transactionID := strings.TrimSpace(record.TransactionID)
	if transactionID == "" {
		return errors.New("payment repository: transaction id is required")
	}

	ref, err := r.base.DocumentRef(ctx, transactionID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, paymentToDocument(record)); err != nil {
		return pfirestore.WrapError("payments.insert", err)
	}
	return nil
}

// FindByTransactionID loads a payment record by its gateway transaction id.
func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (domain.PaymentRecord, error) {
	if r == nil || r.base == nil {
		return domain.PaymentRecord{}, errors.New("payment repository not initialised")
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.PaymentRecord{}, errors.New("payment repository: transaction id is required")
	}

	doc, err := r.base.Get(ctx, transactionID)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	return paymentFromDocument(doc.ID, doc.Data), nil
}

// MarkStatus transitions the record from pending to the supplied terminal
// status inside a transaction. Replays with the same status are reported as
// applied=false without touching the document; a different terminal status is
// a conflict.
func (r *PaymentRepository) MarkStatus(ctx context.Context, transactionID string, status domain.PaymentStatus, now time.Time) (domain.PaymentRecord, bool, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.PaymentRecord{}, false, errors.New("payment repository not initialised")
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.PaymentRecord{}, false, errors.New("payment repository: transaction id is required")
	}
	if !status.Terminal() {
		return domain.PaymentRecord{}, false, fmt.Errorf("payment repository: %q is not a terminal status", status)
	}

	ref, err := r.base.DocumentRef(ctx, transactionID)
	if err != nil {
		return domain.PaymentRecord{}, false, err
	}

	var (
		record  domain.PaymentRecord
		applied bool
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("payments.markstatus", err)
		}
		decoded, err := pfirestore.DecodeSnapshot[paymentDocument](snapshot)
		if err != nil {
			return pfirestore.WrapError("payments.markstatus", err)
		}

		current := domain.PaymentStatus(decoded.Data.Status)
		switch {
		case current == status:
			record = paymentFromDocument(decoded.ID, decoded.Data)
			applied = false
			return nil
		case current.Terminal():
			return pfirestore.ConflictError("payments.markstatus",
				fmt.Errorf("payment %s already %s", transactionID, current))
		}

		updatedAt := now.UTC()
		if err := tx.Update(ref, []firestore.Update{
			{Path: "paymentStatus", Value: string(status)},
			{Path: "updatedAt", Value: updatedAt},
		}); err != nil {
			return pfirestore.WrapError("payments.markstatus", err)
		}

		decoded.Data.Status = string(status)
		decoded.Data.UpdatedAt = updatedAt
		record = paymentFromDocument(decoded.ID, decoded.Data)
		applied = true
		return nil
	})
	if err != nil {
		return domain.PaymentRecord{}, false, err
	}
	return record, applied, nil
}

// ListByUser returns payment records for a user ordered by newest first.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, filter repositories.PaymentListFilter) (domain.CursorPage[domain.PaymentRecord], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.PaymentRecord]{}, errors.New("payment repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.PaymentRecord]{}, errors.New("payment repository: user id is required")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodePaymentListToken(token)
		if err != nil {
			return domain.CursorPage[domain.PaymentRecord]{}, fmt.Errorf("payment repository: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statusFilters := normalisePaymentStatuses(filter.Status)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID)

		if len(statusFilters) == 1 {
			q = q.Where("paymentStatus", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			q = q.Where("paymentStatus", "in", statusFilters)
		}

		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.PaymentRecord]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		nextToken = encodePaymentListToken(last.Data.CreatedAt, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.PaymentRecord, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, paymentFromDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.PaymentRecord]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func paymentToDocument(record domain.PaymentRecord) paymentDocument {
	doc := paymentDocument{
		OrderID:        record.OrderID,
		UserID:         record.UserID,
		SubscriptionID: record.SubscriptionID,
		BillingPeriod:  string(record.BillingPeriod),
		Price:          record.Price,
		Status:         string(record.Status),
		CreatedAt:      record.CreatedAt.UTC(),
		UpdatedAt:      record.UpdatedAt.UTC(),
	}
	for _, item := range record.Items {
		doc.Items = append(doc.Items, purchaseItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return doc
}

func paymentFromDocument(transactionID string, doc paymentDocument) domain.PaymentRecord {
	record := domain.PaymentRecord{
		TransactionID:  transactionID,
		OrderID:        doc.OrderID,
		UserID:         doc.UserID,
		SubscriptionID: doc.SubscriptionID,
		BillingPeriod:  domain.BillingPeriod(doc.BillingPeriod),
		Price:          doc.Price,
		Status:         domain.PaymentStatus(doc.Status),
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		record.Items = append(record.Items, domain.PurchaseItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return record
}

func normalisePaymentStatuses(statuses []domain.PaymentStatus) []string {
	if len(statuses) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(statuses))
	seen := make(map[string]struct{})
	for _, status := range statuses {
		trimmed := strings.ToLower(strings.TrimSpace(string(status)))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

func encodePaymentListToken(createdAt time.Time, docID string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), docID},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodePaymentListToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return time.Time{}, "", fmt.Errorf("%w: unexpected cursor timestamp", pagination.ErrInvalidPageToken)
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	docID, ok := cursor.StartAfter[1].(string)
	if !ok {
		return time.Time{}, "", fmt.Errorf("%w: unexpected cursor id", pagination.ErrInvalidPageToken)
	}
	return ts, docID, nil
}
