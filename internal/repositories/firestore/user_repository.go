package firestore

import (
	"context"
	"errors"
	"strings"

	pfirestore "github.com/pulsefit/api/internal/platform/firestore"
	"github.com/pulsefit/api/internal/repositories"
)

const userCollection = "users"

type userDocument struct {
	Email string `firestore:"email,omitempty"`
}

// UserRepository verifies account existence for settlement operations.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		base: pfirestore.NewBaseRepository[userDocument](provider, userCollection),
	}, nil
}

// Exists reports whether the user document is present.
func (r *UserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	if r == nil || r.base == nil {
		return false, errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, errors.New("user repository: user id is required")
	}

	if _, err := r.base.Get(ctx, userID); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
