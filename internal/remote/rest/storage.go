package rest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/farmsync/farmsync/internal/remote"
)

// Storage implements remote.ObjectStore against a Supabase-style storage
// API: objects are written under /storage/v1/object/<bucket>/<path> and
// served publicly from /storage/v1/object/public/<bucket>/<path>.
type Storage struct {
	baseURL    string
	apiKey     string
	bucket     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewStorage creates a storage client for bucket.
func NewStorage(baseURL, apiKey, bucket string) *Storage {
	return &Storage{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		bucket:  bucket,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: slog.New(slog.DiscardHandler),
	}
}

// WithHTTPClient sets a custom http.Client.
func (s *Storage) WithHTTPClient(client *http.Client) *Storage {
	s.httpClient = client
	return s
}

// WithLogger sets the logger used for request tracing at debug level.
func (s *Storage) WithLogger(logger *slog.Logger) *Storage {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Storage) objectURL(path string) string {
	return s.baseURL + "/storage/v1/object/" + s.bucket + "/" + strings.TrimPrefix(path, "/")
}

// PublicURL returns the public URL for path.
func (s *Storage) PublicURL(path string) string {
	return s.baseURL + "/storage/v1/object/public/" + s.bucket + "/" + strings.TrimPrefix(path, "/")
}

func (s *Storage) Upload(ctx context.Context, path string, r io.Reader, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(path), r)
	if err != nil {
		return "", &remote.Error{Operation: "upload", Err: err}
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age=3600")
	req.Header.Set("x-upsert", "false")

	if err := s.send(req, "upload"); err != nil {
		return "", err
	}
	return s.PublicURL(path), nil
}

func (s *Storage) Delete(ctx context.Context, path string) error {
	body, err := json.Marshal(map[string][]string{"prefixes": {path}})
	if err != nil {
		return &remote.Error{Operation: "delete_object", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		s.baseURL+"/storage/v1/object/"+s.bucket, strings.NewReader(string(body)))
	if err != nil {
		return &remote.Error{Operation: "delete_object", Err: err}
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	return s.send(req, "delete_object")
}

func (s *Storage) setHeaders(req *http.Request) {
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("User-Agent", "farmsync-client/1.0")
}

func (s *Storage) send(req *http.Request, op string) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &remote.Error{Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	s.logger.Debug("storage request", "op", op, "url", req.URL.Path, "status", resp.StatusCode)
	if resp.StatusCode >= 400 {
		return &remote.Error{Operation: op, StatusCode: resp.StatusCode, Message: truncate(body, 200)}
	}
	return nil
}
