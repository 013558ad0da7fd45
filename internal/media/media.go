// Package media stores product images in the managed object storage bucket and hands
// out presigned URLs for them.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/lojinha-app/storefront/internal/cache"
	"github.com/lojinha-app/storefront/internal/catalog"
	"github.com/lojinha-app/storefront/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNotConfigured is returned when the storage section is incomplete.
var ErrNotConfigured = errors.New("media: storage is not configured")

const (
	// resolveConcurrency bounds the presign calls made by ResolveURLs.
	resolveConcurrency = 8
	imageContentType   = "image/jpeg"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// accessPrefixes maps a storage access level to its object prefix.
var accessPrefixes = map[string]string{
	"guest":     "public/",
	"public":    "public/",
	"protected": "protected/",
	"private":   "private/",
}

// Store uploads and signs product images.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
	expiry time.Duration
	urls   *cache.URLCache
}

// NewStore builds a store from the storage section of cfg.
func NewStore(cfg *config.Config) (*Store, error) {
	if !cfg.StorageConfigured() {
		return nil, ErrNotConfigured
	}
	storage := cfg.Storage
	options := &minio.Options{
		Creds:  credentials.NewStaticV4(storage.AccessKey, storage.SecretKey, ""),
		Secure: storage.UseSSL,
		Region: storage.Region,
	}
	if storage.PathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}
	client, err := minio.New(endpointHost(storage.Endpoint), options)
	if err != nil {
		return nil, fmt.Errorf("media: create client: %w", err)
	}
	expiry := storage.URLExpiry
	if expiry <= 0 {
		expiry = config.DefaultURLExpiry
	}
	return &Store{
		client: client,
		bucket: storage.Bucket,
		prefix: accessPrefixes[storage.AccessLevel],
		expiry: expiry,
		urls:   cache.NewURLCache(expiry),
	}, nil
}

// endpointHost strips a scheme from the configured endpoint; minio expects host[:port].
func endpointHost(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.TrimSuffix(endpoint, "/")
}

// ImageKey names the image of a new product:
// products/<unix millis>-<name lowercased, whitespace runs replaced by _>.jpg.
func ImageKey(name string, now time.Time) string {
	clean := strings.ToLower(whitespaceRun.ReplaceAllString(strings.TrimSpace(name), "_"))
	return fmt.Sprintf("products/%d-%s.jpg", now.UnixMilli(), clean)
}

// objectName maps a storage key to the bucket object under the access level prefix.
func (s *Store) objectName(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if s.prefix == "" || strings.HasPrefix(key, s.prefix) {
		return key
	}
	return s.prefix + key
}

// Upload stores an image under key.
func (s *Store) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("media: key is required")
	}
	if contentType == "" {
		contentType = imageContentType
	}
	info, err := s.client.PutObject(ctx, s.bucket, s.objectName(key), reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("media: upload %s: %w", key, err)
	}
	log.WithField("key", key).Debugf("image uploaded (%d bytes)", info.Size)
	return nil
}

// URL returns a presigned GET URL for key. URLs are reused until shortly before they
// expire.
func (s *Store) URL(ctx context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("media: key is required")
	}
	if cached, ok := s.urls.Get(key); ok {
		return cached, nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, s.objectName(key), s.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("media: presign %s: %w", key, err)
	}
	s.urls.Put(key, u.String())
	return u.String(), nil
}

// Close stops the URL cache cleanup.
func (s *Store) Close() {
	s.urls.Close()
}

// Signer presigns image keys.
type Signer interface {
	URL(ctx context.Context, key string) (string, error)
}

// ResolveURLs fills ImageURL of every product that has an image. Products whose URL
// cannot be signed keep an empty ImageURL; the failure is logged.
func ResolveURLs(ctx context.Context, signer Signer, products []catalog.Product) {
	if signer == nil || len(products) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i := range products {
		if products[i].Image == "" {
			continue
		}
		product := &products[i]
		g.Go(func() error {
			u, err := signer.URL(gctx, product.Image)
			if err != nil {
				log.WithFields(log.Fields{"key": product.Image, "error": err}).Warn("failed to resolve product image")
				return nil
			}
			product.ImageURL = u
			return nil
		})
	}
	_ = g.Wait()
}
