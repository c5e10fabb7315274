// Package mirror copies published release assets to an S3-compatible object
// store, so downloads keep working when the release host is unreachable. The
// mirror is optional: the pipeline only constructs one when an endpoint is
// configured.
package mirror

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"crosspub/internal/config"
)

// objectPutter is the slice of the object store client the mirror uses.
type objectPutter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Mirror uploads release assets under <binary>/<tag>/<asset-name>.
type Mirror struct {
	store  objectPutter
	bucket string
	binary string
}

// New builds a Mirror from the mirror config section. Credentials come from
// the environment variables the config names, never from the config file.
func New(cfg config.Mirror, binary string) (*Mirror, error) {
	accessKey := os.Getenv(cfg.AccessKeyEnv)
	secretKey := os.Getenv(cfg.SecretKeyEnv)
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("mirror credentials missing: %s or %s is unset", cfg.AccessKeyEnv, cfg.SecretKeyEnv)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("mirror client: %w", err)
	}

	return &Mirror{store: client, bucket: cfg.Bucket, binary: binary}, nil
}

// Upload copies the asset file at path into the mirror bucket and returns the
// object key it was stored under.
func (m *Mirror) Upload(ctx context.Context, tag, assetName, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open asset %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat asset %s: %w", path, err)
	}

	key := ObjectKey(m.binary, tag, assetName)
	_, err = m.store.PutObject(ctx, m.bucket, key, f, info.Size(),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", fmt.Errorf("mirror upload %s: %w", key, err)
	}
	return key, nil
}

// ObjectKey is the mirror layout: one prefix per binary, one per tag.
func ObjectKey(binary, tag, assetName string) string {
	return binary + "/" + tag + "/" + assetName
}
