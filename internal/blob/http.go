package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultHTTPTimeout = 60 * time.Second

// HTTPStore talks to a Vercel Blob compatible object store: PUT {base}/{key}
// uploads, the returned URL is the reference, POST {base}/delete removes.
type HTTPStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*HTTPStore)

func WithHTTPClient(client *http.Client) Option {
	return func(s *HTTPStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func NewHTTPStore(baseURL, token string, opts ...Option) *HTTPStore {
	s := &HTTPStore{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type statusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("blob %s: http %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}

type putResponse struct {
	URL         string `json:"url"`
	Pathname    string `json:"pathname"`
	ContentType string `json:"contentType"`
}

func (s *HTTPStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL+"/"+strings.TrimLeft(key, "/"), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("blob put: new request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("x-api-version", "7")
	req.Header.Set("x-content-type", contentType)
	req.Header.Set("x-add-random-suffix", "0")
	req.ContentLength = int64(len(data))

	body, err := s.do(req, "put")
	if err != nil {
		return "", err
	}
	var out putResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("blob put: decode response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("blob put: response missing url")
	}
	return out.URL, nil
}

func (s *HTTPStore) Open(ctx context.Context, ref string) (io.ReadCloser, Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, Object{}, fmt.Errorf("blob open: new request: %w", err)
	}
	s.authorize(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, Object{}, fmt.Errorf("blob open: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, Object{}, ErrNotFound
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, Object{}, &statusError{Op: "open", StatusCode: resp.StatusCode, Body: string(body)}
	}
	obj := Object{ContentType: resp.Header.Get("Content-Type"), Size: resp.ContentLength}
	if obj.ContentType == "" {
		obj.ContentType = contentTypeFor(ref)
	}
	if obj.Size < 0 {
		if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
			obj.Size = n
		}
	}
	return resp.Body, obj, nil
}

func (s *HTTPStore) Delete(ctx context.Context, ref string) error {
	payload, err := json.Marshal(map[string][]string{"urls": {ref}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/delete", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("blob delete: new request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("x-api-version", "7")
	req.Header.Set("Content-Type", "application/json")
	_, err = s.do(req, "delete")
	return err
}

func (s *HTTPStore) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

func (s *HTTPStore) do(req *http.Request, op string) ([]byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("blob %s: read body: %w", op, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &statusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
