package blob

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDecodeAudio(t *testing.T) {
	raw := []byte("fake-audio")
	encoded := base64.StdEncoding.EncodeToString(raw)

	data, ct, err := DecodeAudio("data:audio/mp4;codecs=mp4a;base64," + encoded)
	if err != nil {
		t.Fatalf("decode data url: %v", err)
	}
	if string(data) != "fake-audio" || ct != "audio/mp4" {
		t.Fatalf("unexpected decode %q %q", data, ct)
	}

	data, ct, err = DecodeAudio(encoded)
	if err != nil {
		t.Fatalf("decode bare: %v", err)
	}
	if string(data) != "fake-audio" || ct != "audio/webm" {
		t.Fatalf("unexpected bare decode %q %q", data, ct)
	}

	for _, bad := range []string{"", "data:audio/webm,plain", "data:audio/webm;base64", "!!!"} {
		if _, _, err := DecodeAudio(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestKeysAndExtensions(t *testing.T) {
	if got := Extension("audio/mp4; codecs=mp4a"); got != ".m4a" {
		t.Fatalf("expected .m4a, got %s", got)
	}
	if got := Extension("application/unknown"); got != ".webm" {
		t.Fatalf("expected .webm default, got %s", got)
	}
	if got := SessionRecordingKey("stu", "ses", ".webm"); got != "audio/stu/ses/recording.webm" {
		t.Fatalf("unexpected key %s", got)
	}
	at := time.UnixMilli(1700000000123)
	if got := SegmentKey("stu", "ses", at, ".ogg"); got != "audio/segments/stu/ses/1700000000123.ogg" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := FeedbackKey("seg", ".mp3"); got != "audio/feedback/seg/teacher-feedback.mp3" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	ref, err := store.Put(ctx, "audio/stu/ses/recording.webm", []byte("abc"), "audio/webm")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref != "/uploads/audio/stu/ses/recording.webm" {
		t.Fatalf("unexpected ref %s", ref)
	}

	rc, obj, err := store.Open(ctx, ref)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "abc" || obj.Size != 3 || obj.ContentType != "audio/webm" {
		t.Fatalf("unexpected object %q %+v", body, obj)
	}

	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := store.Open(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("expected idempotent delete, got %v", err)
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Put(context.Background(), "../escape.webm", []byte("x"), "audio/webm"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	if _, _, err := store.Open(context.Background(), "/uploads/../../etc/passwd"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}

func TestHTTPStore(t *testing.T) {
	var (
		mu      sync.Mutex
		objects = map[string][]byte{}
	)
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer blob-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			objects[r.URL.Path] = body
			_ = json.NewEncoder(w).Encode(map[string]string{
				"url":         server.URL + r.URL.Path,
				"pathname":    strings.TrimPrefix(r.URL.Path, "/"),
				"contentType": r.Header.Get("x-content-type"),
			})
		case r.Method == http.MethodPost && r.URL.Path == "/delete":
			var payload struct {
				URLs []string `json:"urls"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			for _, u := range payload.URLs {
				delete(objects, strings.TrimPrefix(u, server.URL))
			}
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet:
			body, ok := objects[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "audio/webm")
			_, _ = w.Write(body)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer server.Close()

	store := NewHTTPStore(server.URL, "blob-token")
	ctx := context.Background()

	ref, err := store.Put(ctx, "audio/stu/ses/recording.webm", []byte("hello"), "audio/webm")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref != server.URL+"/audio/stu/ses/recording.webm" {
		t.Fatalf("unexpected ref %s", ref)
	}

	rc, obj, err := store.Open(ctx, ref)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "hello" || obj.ContentType != "audio/webm" {
		t.Fatalf("unexpected object %q %+v", body, obj)
	}

	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := store.Open(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	bad := NewHTTPStore(server.URL, "wrong")
	if _, err := bad.Put(ctx, "k.webm", []byte("x"), "audio/webm"); err == nil {
		t.Fatalf("expected unauthorized put to fail")
	}
}
