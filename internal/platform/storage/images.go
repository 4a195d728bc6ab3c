// Package storage issues signed Cloud Storage URLs for product image
// uploads. Admins upload image bytes directly to the bucket with a
// short-lived PUT URL; the API only ever handles the object metadata.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultUploadExpiry = 15 * time.Minute
	// maxImageBytes caps product image uploads at 10 MiB.
	maxImageBytes = int64(10 << 20)

	publicURLFormat = "https://storage.googleapis.com/%s/%s"
)

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

var (
	errBucketRequired      = errors.New("storage: bucket name is required")
	errSignerRequired      = errors.New("storage: signer is required")
	errImageTypeNotAllowed = errors.New("storage: content type is not an allowed image type")
)

// UploadTarget describes where and how the client should upload an image.
type UploadTarget struct {
	UploadURL string
	PublicURL string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
}

// ImageStore mints signed upload URLs and removes stored product images.
type ImageStore struct {
	bucket string
	signer Signer
	client *gcs.Client
	now    func() time.Time
	newID  func() string
}

// ImageStoreOption customises the store.
type ImageStoreOption func(*ImageStore)

// WithImageClock overrides the time source, for tests.
func WithImageClock(clock func() time.Time) ImageStoreOption {
	return func(s *ImageStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithImageIDGenerator overrides the object name uniquifier, for tests.
func WithImageIDGenerator(gen func() string) ImageStoreOption {
	return func(s *ImageStore) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewImageStore constructs an ImageStore for the given bucket. The client
// may be nil when only URL signing is needed; Remove then fails.
func NewImageStore(bucket string, signer Signer, client *gcs.Client, opts ...ImageStoreOption) (*ImageStore, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errBucketRequired
	}
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errSignerRequired
	}

	s := &ImageStore{
		bucket: bucket,
		signer: signer,
		client: client,
		now:    time.Now,
		newID:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// UploadURL returns a signed PUT URL for a new image under the product's
// prefix. The object name embeds a fresh identifier so repeated uploads of
// the same file never overwrite each other.
func (s *ImageStore) UploadURL(ctx context.Context, productID, fileName, contentType string) (UploadTarget, error) {
	productID, err := cleanSegment("productID", productID)
	if err != nil {
		return UploadTarget{}, err
	}
	fileName, err = cleanSegment("fileName", fileName)
	if err != nil {
		return UploadTarget{}, err
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if _, ok := allowedImageTypes[contentType]; !ok {
		return UploadTarget{}, errImageTypeNotAllowed
	}

	object := fmt.Sprintf("products/%s/images/%s_%s", productID, s.newID(), fileName)
	expiresAt := s.now().Add(defaultUploadExpiry)
	sizeRange := fmt.Sprintf("0,%d", maxImageBytes)

	signedURL, err := gcs.SignedURL(s.bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: s.signer.Email(),
		Scheme:         gcs.SigningSchemeV4,
		Method:         "PUT",
		ContentType:    contentType,
		Expires:        expiresAt,
		Headers:        []string{"x-goog-content-length-range:" + sizeRange},
		SignBytes: func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return UploadTarget{}, fmt.Errorf("storage: sign upload url: %w", err)
	}

	return UploadTarget{
		UploadURL: signedURL,
		PublicURL: fmt.Sprintf(publicURLFormat, s.bucket, object),
		Method:    "PUT",
		Headers: map[string]string{
			"Content-Type":                contentType,
			"x-goog-content-length-range": sizeRange,
		},
		ExpiresAt: expiresAt,
	}, nil
}

// Remove deletes the object behind a previously issued public URL. Unknown
// objects are ignored so retries stay safe.
func (s *ImageStore) Remove(ctx context.Context, publicURL string) error {
	if s.client == nil {
		return errors.New("storage: no client configured for object deletion")
	}
	prefix := fmt.Sprintf(publicURLFormat, s.bucket, "")
	object := strings.TrimPrefix(strings.TrimSpace(publicURL), prefix)
	if object == "" || object == publicURL {
		return fmt.Errorf("storage: %q is not an object in bucket %s", publicURL, s.bucket)
	}

	err := s.client.Bucket(s.bucket).Object(object).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) || status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func cleanSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") || strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	return value, nil
}
