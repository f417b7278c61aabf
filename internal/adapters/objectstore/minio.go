package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"staybook/internal/adapters/observability"
	"staybook/internal/domain"
	"staybook/internal/shared"
)

// Images stores hotel pictures in an S3-compatible bucket, one object per hotel.
// It is safe for concurrent use.
type Images struct {
	client *minio.Client
	bucket string
}

// New connects to the bucket, creating it when missing.
func New(ctx context.Context, cfg shared.MinIOConfig) (*Images, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &Images{client: cli, bucket: cfg.Bucket}, nil
}

func objectKey(hotelID string) string { return "hotels/" + hotelID }

func (m *Images) PutImage(ctx context.Context, hotelID string, img domain.HotelImage) error {
	start := time.Now()
	_, err := m.client.PutObject(ctx, m.bucket, objectKey(hotelID), bytes.NewReader(img.Data), int64(len(img.Data)),
		minio.PutObjectOptions{ContentType: img.ContentType})
	observability.ObserveExternal("minio", "put", statusOf(err), time.Since(start))
	return err
}

func (m *Images) GetImage(ctx context.Context, hotelID string) (domain.HotelImage, error) {
	start := time.Now()
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey(hotelID), minio.GetObjectOptions{})
	if err != nil {
		observability.ObserveExternal("minio", "get", statusOf(err), time.Since(start))
		return domain.HotelImage{}, notFound(err)
	}
	defer obj.Close()

	st, err := obj.Stat()
	if err != nil {
		observability.ObserveExternal("minio", "get", statusOf(err), time.Since(start))
		return domain.HotelImage{}, notFound(err)
	}
	data, err := io.ReadAll(obj)
	observability.ObserveExternal("minio", "get", statusOf(err), time.Since(start))
	if err != nil {
		return domain.HotelImage{}, err
	}
	return domain.HotelImage{ContentType: st.ContentType, Data: data}, nil
}

// DeleteImage is idempotent; S3 reports success for missing keys.
func (m *Images) DeleteImage(ctx context.Context, hotelID string) error {
	start := time.Now()
	err := m.client.RemoveObject(ctx, m.bucket, objectKey(hotelID), minio.RemoveObjectOptions{})
	observability.ObserveExternal("minio", "delete", statusOf(err), time.Since(start))
	return err
}

func notFound(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("image: %w", domain.ErrNotFound)
	}
	return err
}

func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if code := minio.ToErrorResponse(err).StatusCode; code != 0 {
		return code
	}
	return 0
}
