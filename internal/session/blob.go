package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrBlobNotFound = errors.New("session blob not found")

// BlobStore mirrors the session state to object storage so a
// reinstalled host can resume the token family without a fresh login.
type BlobStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}

// BlobConfig configures the S3 mirror.
type BlobConfig struct {
	Endpoint      string
	Bucket        string
	Prefix        string
	Region        string
	AccessKeyFile string
	SecretKeyFile string
}

type S3Store struct {
	client *minio.Client
	bucket string
	key    string
}

func NewS3Store(cfg BlobConfig) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	prefix := strings.TrimSpace(cfg.Prefix)
	accessKeyFile := strings.TrimSpace(cfg.AccessKeyFile)
	secretKeyFile := strings.TrimSpace(cfg.SecretKeyFile)

	if endpoint == "" || bucket == "" || accessKeyFile == "" || secretKeyFile == "" {
		return nil, fmt.Errorf("missing blob configuration")
	}

	accessKey, err := readSecretFile(accessKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob access key: %w", err)
	}
	secretKey, err := readSecretFile(secretKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read blob secret key: %w", err)
	}

	host, secure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	if prefix == "" {
		prefix = "bluedoor/session"
	}

	return &S3Store{client: client, bucket: bucket, key: path.Join(prefix, "state.json")}, nil
}

func (s *S3Store) Load(ctx context.Context) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return nil, s.wrapError(err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *S3Store) Save(ctx context.Context, data []byte) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, s.key, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return s.wrapError(err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context) error {
	if err := s.client.RemoveObject(ctx, s.bucket, s.key, minio.RemoveObjectOptions{}); err != nil {
		return s.wrapError(err)
	}
	return nil
}

func (s *S3Store) wrapError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" {
		return ErrBlobNotFound
	}
	return err
}

// MirroredStore writes through a primary Store and mirrors each state
// change to a BlobStore. Mirror failures degrade to primary-only
// operation; reads fall back to the mirror when the primary has no
// state yet.
type MirroredStore struct {
	primary Store
	blob    BlobStore
	timeout time.Duration
}

func NewMirroredStore(primary Store, blob BlobStore) *MirroredStore {
	return &MirroredStore{primary: primary, blob: blob, timeout: 15 * time.Second}
}

func (s *MirroredStore) Load() (Credentials, error) {
	creds, err := s.primary.Load()
	if err == nil {
		return creds, nil
	}
	if !errors.Is(err, ErrStateNotFound) {
		return Credentials{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	data, blobErr := s.blob.Load(ctx)
	if blobErr != nil {
		if errors.Is(blobErr, ErrBlobNotFound) {
			return Credentials{}, ErrStateNotFound
		}
		return Credentials{}, blobErr
	}
	creds, blobErr = DecodeState(data)
	if blobErr != nil {
		return Credentials{}, blobErr
	}
	if err := s.primary.Save(creds); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

func (s *MirroredStore) Save(creds Credentials) error {
	if err := s.primary.Save(creds); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	data, err := EncodeState(creds)
	if err != nil {
		return err
	}
	if err := s.blob.Save(ctx, data); err != nil {
		mirrorPersistOK.Set(0)
		return nil
	}
	mirrorPersistOK.Set(1)
	return nil
}

func (s *MirroredStore) Clear() error {
	if err := s.primary.Clear(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.blob.Delete(ctx); err != nil && !errors.Is(err, ErrBlobNotFound) {
		mirrorPersistOK.Set(0)
	}
	return nil
}

func parseEndpoint(raw string) (string, bool, error) {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint: %w", err)
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint: %q", raw)
		}
		return u.Host, u.Scheme == "https", nil
	}
	return raw, true, nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
