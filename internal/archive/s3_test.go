package archive_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"assetkeeper/internal/ak"
	"assetkeeper/internal/archive"
)

// fakeS3 is an in-memory stand-in for the S3 client.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if aws.ToString(in.Bucket) != "assets" {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3Archive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("put applies prefix and content type", func(t *testing.T) {
		t.Parallel()
		client := newFakeS3()
		a := archive.NewS3ArchiveWithClient("s3", "assets", "published", client)
		data := []byte(`{"current_version": 1}`)

		if err := a.Put(ctx, "v1/version.json", bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if _, ok := client.objects["assets/published/v1/version.json"]; !ok {
			t.Errorf("object not stored under prefixed key, have %v", client.objects)
		}
		if got := client.types["published/v1/version.json"]; got != "application/json" {
			t.Errorf("ContentType = %q, want application/json", got)
		}

		var buf bytes.Buffer
		if err := a.Get(ctx, "v1/version.json", &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !bytes.Equal(buf.Bytes(), data) {
			t.Errorf("Get() = %q, want %q", buf.Bytes(), data)
		}
	})

	t.Run("missing key maps to not found", func(t *testing.T) {
		t.Parallel()
		a := archive.NewS3ArchiveWithClient("s3", "assets", "", newFakeS3())
		var buf bytes.Buffer
		if err := a.Get(ctx, "LATEST", &buf); !errors.Is(err, ak.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		t.Parallel()
		a := archive.NewS3ArchiveWithClient("s3", "assets", "", newFakeS3())
		if err := a.Put(ctx, "LATEST", bytes.NewReader([]byte("1\n")), 5); err == nil {
			t.Error("Put() expected size mismatch error, got nil")
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		t.Parallel()
		ok := archive.NewS3ArchiveWithClient("s3", "assets", "", newFakeS3())
		if err := ok.ValidateSetup(ctx); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
		missing := archive.NewS3ArchiveWithClient("s3", "nope", "", newFakeS3())
		if err := missing.ValidateSetup(ctx); err == nil {
			t.Error("ValidateSetup() on missing bucket expected error, got nil")
		}
	})

	t.Run("publisher round trip", func(t *testing.T) {
		t.Parallel()
		a := archive.NewS3ArchiveWithClient("s3", "assets", "p/", newFakeS3())
		p := archive.NewPublisher([]archive.Backend{a}, nil, nil)
		if err := p.Publish(ctx, ak.VersionRecord{CurrentVersion: 6}, testDocs()); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		latest, err := archive.Latest(ctx, a)
		if err != nil {
			t.Fatalf("Latest() error = %v", err)
		}
		if latest != 6 {
			t.Errorf("Latest() = %d, want 6", latest)
		}
	})
}
