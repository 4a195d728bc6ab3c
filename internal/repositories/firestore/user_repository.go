package firestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/electrocart/api/internal/domain"
	"github.com/electrocart/api/internal/platform/auth"
	platformfs "github.com/electrocart/api/internal/platform/firestore"
	"github.com/electrocart/api/internal/platform/pagination"
	"github.com/electrocart/api/internal/repositories"
)

const usersCollection = "users"

type userDocument struct {
	Email       string    `firestore:"email"`
	DisplayName string    `firestore:"displayName"`
	Role        string    `firestore:"role"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

// UserRepository persists user profiles keyed by their identity provider UID.
type UserRepository struct {
	base *platformfs.BaseRepository[domain.User]
}

// NewUserRepository constructs the Firestore-backed user repository.
func NewUserRepository(provider *platformfs.Provider) *UserRepository {
	return &UserRepository{
		base: platformfs.NewBaseRepository[domain.User](
			provider,
			usersCollection,
			encodeUser,
			decodeUser,
		),
	}
}

func encodeUser(_ context.Context, user domain.User) (any, error) {
	return userDocument{
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		CreatedAt:   user.CreatedAt,
	}, nil
}

func decodeUser(_ context.Context, snap *firestore.DocumentSnapshot) (domain.User, error) {
	var doc userDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.User{}, err
	}
	role := doc.Role
	if role == "" {
		role = auth.RoleCustomer
	}
	return domain.User{
		ID:          snap.Ref.ID,
		Email:       doc.Email,
		DisplayName: doc.DisplayName,
		Role:        role,
		CreatedAt:   doc.CreatedAt,
	}, nil
}

// Get fetches a user profile by UID.
func (r *UserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		if platformfs.IsNotFound(err) {
			return nil, repositories.NewCatalogError(repositories.CatalogErrorUnknown, fmt.Sprintf("user %s not found", id), err)
		}
		return nil, wrapCatalogError("users.get", err)
	}
	user := doc.Data
	user.ID = doc.ID
	return &user, nil
}

// Upsert writes the user profile, creating it on first sign-in.
func (r *UserRepository) Upsert(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return nil, repositories.NewCatalogError(repositories.CatalogErrorUnknown, "user id is required", nil)
	}
	if _, err := r.base.Set(ctx, user.ID, *user); err != nil {
		return nil, wrapCatalogError("users.upsert", err)
	}
	return user, nil
}

// List returns a page of user profiles ordered by creation time.
func (r *UserRepository) List(ctx context.Context, pageSize int, pageToken string) (*domain.CursorPage[domain.User], error) {
	size := pagination.ClampPageSize(pageSize)

	var startAfter []any
	if pageToken != "" {
		cursor, err := pagination.DecodeToken(pageToken)
		if err != nil {
			return nil, err
		}
		if len(cursor.StartAfter) != 2 {
			return nil, pagination.ErrInvalidPageToken
		}
		raw, ok := cursor.StartAfter[0].(string)
		if !ok {
			return nil, pagination.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		startAfter = []any{createdAt, cursor.StartAfter[1]}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("createdAt", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) > 0 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return nil, wrapCatalogError("users.list", err)
	}

	page := &domain.CursorPage[domain.User]{}
	hasMore := len(docs) > size
	if hasMore {
		docs = docs[:size]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data)
	}
	page.HasMore = hasMore
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt.Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return nil, wrapCatalogError("users.list", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

// UpdateRole writes the role field only. The identity provider claim is
// updated separately by the caller.
func (r *UserRepository) UpdateRole(ctx context.Context, id, role string) error {
	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "role", Value: role},
	})
	if err != nil {
		if platformfs.IsNotFound(err) {
			return repositories.NewCatalogError(repositories.CatalogErrorUnknown, fmt.Sprintf("user %s not found", id), err)
		}
		return wrapCatalogError("users.update_role", err)
	}
	return nil
}
