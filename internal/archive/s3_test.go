package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/model"
)

type memoryBucket struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (b *memoryBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if b.err != nil {
		return nil, b.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.objects[aws.ToString(in.Key)] = data
	b.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (b *memoryBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func snapshot() *model.RiskMetrics {
	return &model.RiskMetrics{
		ID:        "3f1c",
		Method:    model.MethodParametric,
		VaR95:     decimal.RequireFromString("32900.00"),
		Timestamp: time.Date(2024, 3, 5, 23, 30, 0, 0, time.FixedZone("EST", -5*3600)),
	}
}

func TestKeyUsesUTCDate(t *testing.T) {
	if got := Key(snapshot()); got != "risk-snapshots/2024/03/06/3f1c.json" {
		t.Errorf("unexpected key %s", got)
	}
}

func TestPutAndGetSnapshot(t *testing.T) {
	ctx := context.Background()
	bucket := newMemoryBucket()
	a := &S3Archive{api: bucket, bucket: "risk"}

	m := snapshot()
	if err := a.PutSnapshot(ctx, m); err != nil {
		t.Fatal(err)
	}
	if ct := bucket.types[Key(m)]; ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
	got, err := a.GetSnapshot(ctx, Key(m))
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != m.ID || !got.VaR95.Equal(m.VaR95) || !got.Timestamp.Equal(m.Timestamp) {
		t.Errorf("unexpected snapshot %+v", got)
	}
}

func TestPutSnapshotErrors(t *testing.T) {
	ctx := context.Background()
	bucket := newMemoryBucket()
	a := &S3Archive{api: bucket, bucket: "risk"}

	if err := a.PutSnapshot(ctx, &model.RiskMetrics{}); !errors.Is(err, ErrNoSnapshotID) {
		t.Errorf("expected ErrNoSnapshotID, got %v", err)
	}
	bucket.err = errors.New("access denied")
	if err := a.PutSnapshot(ctx, snapshot()); err == nil {
		t.Error("expected upload error")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{Region: "us-east-1"}); err == nil {
		t.Error("expected bucket required")
	}
	if _, err := New(context.Background(), Config{Bucket: "risk"}); err == nil {
		t.Error("expected region required")
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	if got := normaliseEndpoint("minio.local:9000"); got != "https://minio.local:9000" {
		t.Errorf("got %s", got)
	}
	if got := normaliseEndpoint("http://minio.local:9000"); got != "http://minio.local:9000" {
		t.Errorf("got %s", got)
	}
}
