package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	email string
	err   error
}

func (f fakeSigner) Email() string { return f.email }

func (f fakeSigner) SignBytes(_ context.Context, _ []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("test-signature"), nil
}

func newTestStore(t *testing.T) *ImageStore {
	t.Helper()
	store, err := NewImageStore("cart-images", fakeSigner{email: "svc@project.iam.gserviceaccount.com"}, nil,
		WithImageClock(func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }),
		WithImageIDGenerator(func() string { return "01ARZ3NDEKTSV4RRFFQ69G5FAV" }),
	)
	require.NoError(t, err)
	return store
}

func TestNewImageStoreValidatesInputs(t *testing.T) {
	_, err := NewImageStore("", fakeSigner{email: "svc@x"}, nil)
	assert.ErrorIs(t, err, errBucketRequired)

	_, err = NewImageStore("bucket", nil, nil)
	assert.ErrorIs(t, err, errSignerRequired)

	_, err = NewImageStore("bucket", fakeSigner{}, nil)
	assert.ErrorIs(t, err, errSignerRequired)
}

func TestUploadURLBuildsProductScopedObject(t *testing.T) {
	store := newTestStore(t)

	target, err := store.UploadURL(context.Background(), "prod-1", "front.jpg", "image/jpeg")
	require.NoError(t, err)

	wantObject := "products/prod-1/images/01ARZ3NDEKTSV4RRFFQ69G5FAV_front.jpg"
	assert.Contains(t, target.UploadURL, wantObject)
	assert.Equal(t, "https://storage.googleapis.com/cart-images/"+wantObject, target.PublicURL)
	assert.Equal(t, "PUT", target.Method)
	assert.Equal(t, "image/jpeg", target.Headers["Content-Type"])
	assert.Equal(t, "0,10485760", target.Headers["x-goog-content-length-range"])
	assert.Equal(t, time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC), target.ExpiresAt)
}

func TestUploadURLRejectsNonImageContent(t *testing.T) {
	store := newTestStore(t)

	_, err := store.UploadURL(context.Background(), "prod-1", "doc.pdf", "application/pdf")
	assert.ErrorIs(t, err, errImageTypeNotAllowed)
}

func TestUploadURLRejectsPathTraversal(t *testing.T) {
	store := newTestStore(t)

	cases := []struct {
		productID string
		fileName  string
	}{
		{"../orders", "a.png"},
		{"prod-1", "../../secret.png"},
		{"prod-1", "a/b.png"},
		{"", "a.png"},
		{"prod-1", " "},
	}
	for _, tc := range cases {
		_, err := store.UploadURL(context.Background(), tc.productID, tc.fileName, "image/png")
		assert.Errorf(t, err, "productID=%q fileName=%q", tc.productID, tc.fileName)
	}
}

func TestRemoveRequiresClient(t *testing.T) {
	store := newTestStore(t)

	err := store.Remove(context.Background(), "https://storage.googleapis.com/cart-images/products/p/images/x.png")
	assert.Error(t, err)
}
