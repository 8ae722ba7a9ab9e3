package importer

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bioplatforms/bpaworkflow/internal/config"
)

// Source produces catalogue downloads under workRoot.
type Source interface {
	Fetch(ctx context.Context, workRoot string) (Download, error)
}

// NewSource builds the Source described by conf.
func NewSource(conf config.SourceConf) (Source, error) {
	switch conf.Type {
	case config.SourceDir:
		return &dirSource{path: conf.Path}, nil
	case config.SourceS3:
		return newS3Source(conf)
	default:
		return nil, fmt.Errorf("unsupported source type %q", conf.Type)
	}
}

// download is a temporary directory removed on Release.
type download struct {
	dir  string
	once sync.Once
	err  error
}

func newDownload(workRoot string) (*download, error) {
	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create download root: %w", err)
	}
	dir, err := os.MkdirTemp(workRoot, "catalogue-")
	if err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}
	return &download{dir: dir}, nil
}

func (d *download) Dir() string { return d.dir }

// Release removes the download directory. Repeated calls return the first
// result.
func (d *download) Release() error {
	d.once.Do(func() {
		if err := os.RemoveAll(d.dir); err != nil {
			d.err = fmt.Errorf("remove download %s: %w", d.dir, err)
		}
	})
	return d.err
}

// dirSource copies the regular files of a local catalogue directory.
type dirSource struct {
	path string
}

func (s *dirSource) Fetch(ctx context.Context, workRoot string) (Download, error) {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue directory: %w", err)
	}

	dl, err := newDownload(workRoot)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			_ = dl.Release()
			return nil, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if err := CopyFile(filepath.Join(s.path, entry.Name()), filepath.Join(dl.dir, entry.Name())); err != nil {
			_ = dl.Release()
			return nil, err
		}
	}
	return dl, nil
}

// s3Source downloads every object directly under bucket/prefix.
type s3Source struct {
	client *minio.Client
	bucket string
	prefix string
}

func newS3Source(conf config.SourceConf) (*s3Source, error) {
	u, err := url.Parse(conf.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}
	endpoint := u.Host
	if endpoint == "" {
		endpoint = conf.Endpoint
	}
	useSSL := conf.UseSSL || u.Scheme == "https"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: useSSL,
		Region: conf.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	prefix := strings.TrimPrefix(conf.Prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &s3Source{client: client, bucket: conf.Bucket, prefix: prefix}, nil
}

func (s *s3Source) Fetch(ctx context.Context, workRoot string) (Download, error) {
	dl, err := newDownload(workRoot)
	if err != nil {
		return nil, err
	}

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix}) {
		if obj.Err != nil {
			_ = dl.Release()
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		name := path.Base(obj.Key)
		if err := s.client.FGetObject(ctx, s.bucket, obj.Key, filepath.Join(dl.dir, name), minio.GetObjectOptions{}); err != nil {
			_ = dl.Release()
			return nil, fmt.Errorf("download s3://%s/%s: %w", s.bucket, obj.Key, err)
		}
	}
	return dl, nil
}

// CopyFile copies src to dst, replacing dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}
