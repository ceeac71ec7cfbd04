package firestore

import (
	"context"
	"errors"
	"strings"

	"github.com/easy-khana/api/internal/domain"
	pfirestore "github.com/easy-khana/api/internal/platform/firestore"
	"github.com/easy-khana/api/internal/repositories"
)

const usersCollection = "users"

type userDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
}

// UserRepository resolves notification contacts from users/{uid}.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user directory.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{base: pfirestore.NewBaseRepository[userDocument](provider, usersCollection)}, nil
}

// Contact returns the user's name and email.
func (r *UserRepository) Contact(ctx context.Context, userID string) (domain.UserContact, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.UserContact{}, err
	}
	return domain.UserContact{
		UserID: doc.ID,
		Name:   strings.TrimSpace(doc.Data.Name),
		Email:  strings.TrimSpace(doc.Data.Email),
	}, nil
}

var _ repositories.UserRepository = (*UserRepository)(nil)
