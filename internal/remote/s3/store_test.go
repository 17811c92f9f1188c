package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3 handles path-style PUT and DELETE on a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		f.objects[key] = string(body)
		f.types[key] = req.Header.Get("Content-Type")
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"ETag": {"\"etag\""}}}, nil
	case http.MethodDelete:
		delete(f.objects, key)
		return &http.Response{StatusCode: http.StatusNoContent, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
}

func newFakeStore(t *testing.T, cfg Config) (*Store, *fakeS3) {
	t.Helper()
	rt := &fakeS3{objects: make(map[string]string), types: make(map[string]string)}
	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	if err != nil {
		t.Fatalf("cfg: %v", err)
	}
	client := awsS3.NewFromConfig(awsCfg, func(o *awsS3.Options) {
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
	})
	return newStore(client, cfg, "us-east-1"), rt
}

func TestStore_UploadAndDelete(t *testing.T) {
	s, fake := newFakeStore(t, Config{Bucket: "animal-photos", Endpoint: "https://mock.s3.local"})
	ctx := context.Background()

	url, err := s.Upload(ctx, "animals/3/photo_a.jpg", strings.NewReader("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if want := "https://mock.s3.local/animal-photos/animals/3/photo_a.jpg"; url != want {
		t.Errorf("url = %q, want %q", url, want)
	}

	fake.mu.Lock()
	body, ok := fake.objects["animals/3/photo_a.jpg"]
	ct := fake.types["animals/3/photo_a.jpg"]
	fake.mu.Unlock()
	if !ok {
		t.Fatal("object not stored")
	}
	if !strings.Contains(body, "jpeg-bytes") {
		t.Errorf("body = %q, want it to contain payload", body)
	}
	if ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}

	if err := s.Delete(ctx, "animals/3/photo_a.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if _, ok := fake.objects["animals/3/photo_a.jpg"]; ok {
		t.Error("object still present after delete")
	}
}

func TestStore_PublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"aws default", Config{Bucket: "b"}, "https://b.s3.us-east-1.amazonaws.com/k.jpg"},
		{"custom endpoint", Config{Bucket: "b", Endpoint: "http://minio:9000/"}, "http://minio:9000/b/k.jpg"},
		{"explicit base", Config{Bucket: "b", PublicBaseURL: "https://cdn.example.com/photos/"}, "https://cdn.example.com/photos/k.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(nil, tt.cfg, "us-east-1")
			if got := s.PublicURL("/k.jpg"); got != tt.want {
				t.Errorf("PublicURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("New without bucket should fail")
	}
}
