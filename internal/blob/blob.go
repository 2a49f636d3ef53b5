// Package blob stores recorded audio. Callers hand it bytes and a content type
// and get back an opaque reference they persist and later pass to Open or
// Delete; nothing here inspects the audio itself.
package blob

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var ErrNotFound = errors.New("blob not found")

type Object struct {
	ContentType string
	Size        int64
}

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, Object, error)
	Delete(ctx context.Context, ref string) error
}

var extensions = map[string]string{
	"audio/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
	"audio/aac":   ".aac",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
}

var contentTypes = map[string]string{
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
}

// Extension maps an audio content type to a file extension, defaulting to
// .webm which is what browsers record by default.
func Extension(contentType string) string {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ext, ok := extensions[base]; ok {
		return ext
	}
	return ".webm"
}

func contentTypeFor(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		if ct, ok := contentTypes[strings.ToLower(name[i:])]; ok {
			return ct
		}
	}
	return "application/octet-stream"
}

func SessionRecordingKey(studentID, sessionID, ext string) string {
	return fmt.Sprintf("audio/%s/%s/recording%s", studentID, sessionID, ext)
}

func SegmentKey(studentID, sessionID string, at time.Time, ext string) string {
	return fmt.Sprintf("audio/segments/%s/%s/%d%s", studentID, sessionID, at.UnixMilli(), ext)
}

func FeedbackKey(targetID, ext string) string {
	return fmt.Sprintf("audio/feedback/%s/teacher-feedback%s", targetID, ext)
}

// DecodeAudio accepts either a data URL ("data:audio/webm;base64,...") or
// bare base64 and returns the raw bytes with their content type.
func DecodeAudio(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, "", errors.New("empty audio payload")
	}
	contentType := "audio/webm"
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, "", errors.New("malformed data url")
		}
		meta := payload[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", errors.New("data url must be base64 encoded")
		}
		if mediaType := strings.TrimSuffix(meta, ";base64"); mediaType != "" {
			contentType = strings.SplitN(mediaType, ";", 2)[0]
		}
		payload = payload[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode audio: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty audio payload")
	}
	return data, contentType, nil
}
