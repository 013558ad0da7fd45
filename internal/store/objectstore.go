package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

const objectStoreSessionPrefix = "sessions"

// ObjectStoreConfig captures configuration for the object storage backed session store.
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
	LocalRoot string
	Profile   string
	UseSSL    bool
	PathStyle bool
}

// ObjectStore persists the session as sessions/<profile>.json in an S3-compatible bucket.
// The object is mirrored to a local file.
type ObjectStore struct {
	client    *minio.Client
	cfg       ObjectStoreConfig
	localPath string
	now       func() time.Time
	mu        sync.Mutex
}

// NewObjectStore initializes an object storage backed session store.
func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.AccessKey = strings.TrimSpace(cfg.AccessKey)
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	cfg.Profile = normalizeProfile(cfg.Profile)

	switch {
	case cfg.Endpoint == "":
		return nil, fmt.Errorf("object store: endpoint is required")
	case cfg.Bucket == "":
		return nil, fmt.Errorf("object store: bucket is required")
	case cfg.AccessKey == "":
		return nil, fmt.Errorf("object store: access key is required")
	case cfg.SecretKey == "":
		return nil, fmt.Errorf("object store: secret key is required")
	}

	root, err := resolveSpoolDir(cfg.LocalRoot, "objectstore")
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}

	options := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}
	client, err := minio.New(cfg.Endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("object store: create client: %w", err)
	}

	return &ObjectStore{
		client:    client,
		cfg:       cfg,
		localPath: filepath.Join(root, SessionFileName),
		now:       time.Now,
	}, nil
}

// Path returns the local mirror of the stored session.
func (s *ObjectStore) Path() string {
	if s == nil {
		return ""
	}
	return s.localPath
}

// Bootstrap ensures the bucket exists and syncs the stored session into the local mirror.
func (s *ObjectStore) Bootstrap(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("object store: not initialized")
	}
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("object store: check bucket: %w", err)
	}
	if !exists {
		if err = s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("object store: create bucket: %w", err)
		}
	}
	if _, err = s.Load(ctx); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Load downloads the session object and refreshes the local mirror.
func (s *ObjectStore) Load(ctx context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.objectKey()
	object, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("object store: fetch session: %w", err)
	}
	data, err := io.ReadAll(object)
	_ = object.Close()
	if err != nil {
		if isObjectNotFound(err) {
			if errRemove := removeFile(s.localPath); errRemove != nil {
				log.WithError(errRemove).Warn("object store: failed to clear local mirror")
			}
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("object store: read session %s: %w", key, err)
	}

	record, err := unmarshalRecord(data)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("object store: %w", err)
	}
	if _, errWrite := writeFileAtomic(s.localPath, data); errWrite != nil {
		log.WithError(errWrite).Warn("object store: failed to refresh local mirror")
	}
	return record, nil
}

// Save writes the local mirror and uploads the session object.
func (s *ObjectStore) Save(ctx context.Context, record *Record) (string, error) {
	if record == nil {
		return "", fmt.Errorf("object store: record is nil")
	}
	record.Profile = s.cfg.Profile
	if record.SavedAt.IsZero() {
		record.SavedAt = s.now().UTC()
	}
	data, err := marshalRecord(record)
	if err != nil {
		return "", fmt.Errorf("object store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err = writeFileAtomic(s.localPath, data); err != nil {
		return "", fmt.Errorf("object store: write local mirror: %w", err)
	}
	key := s.objectKey()
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("object store: put object %s: %w", key, err)
	}
	return s.localPath, nil
}

// Delete removes the session object and the local mirror.
func (s *ObjectStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := removeFile(s.localPath); err != nil {
		return fmt.Errorf("object store: delete local mirror: %w", err)
	}
	key := s.objectKey()
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil && !isObjectNotFound(err) {
		return fmt.Errorf("object store: delete object %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) objectKey() string {
	return prefixedKey(s.cfg.Prefix, objectStoreSessionPrefix+"/"+s.cfg.Profile+".json")
}

func prefixedKey(prefix, key string) string {
	key = strings.TrimLeft(key, "/")
	if prefix == "" {
		return key
	}
	return strings.TrimLeft(prefix+"/"+key, "/")
}

func isObjectNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound {
		return true
	}
	switch resp.Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}
