// Package archive keeps a copy of every risk snapshot in an S3-compatible
// object store (AWS S3, MinIO, R2).
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oiltrading/backoffice/internal/model"
)

// Prefix is the key prefix of every archived snapshot.
const Prefix = "risk-snapshots"

var ErrNoSnapshotID = errors.New("archive: snapshot has no ID")

// Config locates the bucket. An empty Endpoint means AWS S3.
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// objectAPI is the part of the S3 client the archive uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Archive writes snapshots as JSON objects.
type S3Archive struct {
	api    objectAPI
	bucket string
}

// New connects to the bucket described by cfg. Static credentials are used
// when an access key is given; otherwise the default AWS chain applies.
func New(ctx context.Context, cfg Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("archive: region is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(endpoint) })
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	return &S3Archive{api: s3.NewFromConfig(awsCfg, s3Opts...), bucket: cfg.Bucket}, nil
}

// Key is the object key of a snapshot: risk-snapshots/YYYY/MM/DD/<id>.json,
// dated by the snapshot timestamp in UTC.
func Key(m *model.RiskMetrics) string {
	ts := m.Timestamp.UTC()
	return path.Join(Prefix, ts.Format("2006"), ts.Format("01"), ts.Format("02"), m.ID+".json")
}

// PutSnapshot uploads m.
func (a *S3Archive) PutSnapshot(ctx context.Context, m *model.RiskMetrics) error {
	if m.ID == "" {
		return ErrNoSnapshotID
	}
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("archive: marshal snapshot %s: %w", m.ID, err)
	}
	key := Key(m)
	_, err = a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put %s/%s: %w", a.bucket, key, err)
	}
	return nil
}

// GetSnapshot downloads the snapshot stored under key.
func (a *S3Archive) GetSnapshot(ctx context.Context, key string) (*model.RiskMetrics, error) {
	out, err := a.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: get %s/%s: %w", a.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	var m model.RiskMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", key, err)
	}
	return &m, nil
}

// normaliseEndpoint prepends https:// to an endpoint given without a scheme.
func normaliseEndpoint(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}
