package cos

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
	cossdk "github.com/tencentyun/cos-go-sdk-v5"
)

const listPageSize = 1000

type StorageConfig struct {
	BucketURL string
	SecretID  string
	SecretKey string
}

// Storage keeps objects in a single COS bucket.
type Storage struct {
	client *cossdk.Client
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	u, err := url.Parse(cfg.BucketURL)
	if err != nil {
		return nil, fmt.Errorf("parse cos bucket url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("cos bucket url %q must be absolute", cfg.BucketURL)
	}

	client := cossdk.NewClient(&cossdk.BaseURL{BucketURL: u}, &http.Client{
		Transport: &cossdk.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})
	return &Storage{client: client}, nil
}

func (s *Storage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	opt := &cossdk.ObjectPutOptions{
		ObjectPutHeaderOptions: &cossdk.ObjectPutHeaderOptions{
			ContentType: contentType,
		},
	}
	if _, err := s.client.Object.Put(ctx, key, bytes.NewReader(data), opt); err != nil {
		return &entity.PersistenceError{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, &entity.PersistenceError{Op: "get", Key: key, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &entity.PersistenceError{Op: "get", Key: key, Err: err}
	}
	return data, nil
}

func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	marker := ""
	for {
		res, _, err := s.client.Bucket.Get(ctx, &cossdk.BucketGetOptions{
			Prefix:  prefix,
			Marker:  marker,
			MaxKeys: listPageSize,
		})
		if err != nil {
			return nil, &entity.PersistenceError{Op: "list", Key: prefix, Err: err}
		}
		for _, obj := range res.Contents {
			keys = append(keys, obj.Key)
		}
		if !res.IsTruncated {
			return keys, nil
		}

		marker = res.NextMarker
		if marker == "" && len(res.Contents) > 0 {
			marker = res.Contents[len(res.Contents)-1].Key
		}
		if marker == "" {
			return keys, nil
		}
	}
}
