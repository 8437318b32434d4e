package uploads

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type mockPutter struct {
	PutObjectFunc func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func (m mockPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.PutObjectFunc(ctx, params, optFns...)
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestPutStoresUnderRandomKey(t *testing.T) {
	var got *s3.PutObjectInput
	st := New(mockPutter{PutObjectFunc: func(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		got = in
		return &s3.PutObjectOutput{}, nil
	}}, "media", "/covers/", "https://cdn.example.com/", quiet())

	url, err := st.Put(context.Background(), "Photo.PNG", strings.NewReader("png"), 3)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	key := aws.ToString(got.Key)
	if !strings.HasPrefix(key, "covers/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("unexpected key %q", key)
	}
	if aws.ToString(got.Bucket) != "media" || aws.ToString(got.ContentType) != "image/png" {
		t.Fatalf("unexpected input %+v", got)
	}
	if url != "https://cdn.example.com/"+key {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestPutRejectsNonImages(t *testing.T) {
	st := New(mockPutter{PutObjectFunc: func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		t.Fatalf("PutObject must not be called")
		return nil, nil
	}}, "media", "", "https://cdn", quiet())
	if _, err := st.Put(context.Background(), "notes.txt", strings.NewReader("x"), 1); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestPutWrapsBackendError(t *testing.T) {
	boom := errors.New("boom")
	st := New(mockPutter{PutObjectFunc: func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return nil, boom
	}}, "media", "", "https://cdn", quiet())
	if _, err := st.Put(context.Background(), "a.webp", strings.NewReader("x"), 1); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
}

func TestNilStoreIsUnconfigured(t *testing.T) {
	var st *Store
	if _, err := st.Put(context.Background(), "a.jpg", strings.NewReader("x"), 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
