package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"cadence/practice/internal/blob"
	"cadence/practice/internal/model"
)

var errAudioTooLarge = errors.New("audio exceeds upload limit")

type upload struct {
	data        []byte
	contentType string
	ext         string
}

// limitBody caps request bodies carrying base64 audio at the configured
// upload size plus encoding overhead.
func (s *Server) limitBody(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxUploadBytes <= 0 {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*4/3+64<<10)
}

func (s *Server) decodeUpload(payload, fileName string) (upload, error) {
	data, contentType, err := blob.DecodeAudio(payload)
	if err != nil {
		return upload{}, err
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(data)) > s.cfg.MaxUploadBytes {
		return upload{}, errAudioTooLarge
	}
	ext := blob.Extension(contentType)
	if e := strings.ToLower(path.Ext(strings.TrimSpace(fileName))); validExt(e) {
		ext = e
	}
	return upload{data: data, contentType: contentType, ext: ext}, nil
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 || ext[0] != '.' {
		return false
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "audio_too_large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_json")
}

// writeDecodeError answers a request whose audio payload could not be used.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, errAudioTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "audio_too_large")
	default:
		writeError(w, http.StatusBadRequest, "invalid_audio")
	}
}

// audioRefs lists every blob a session owns, its segments included.
func audioRefs(session model.PracticeSession) []string {
	var refs []string
	add := func(ref *string) {
		if ref != nil && *ref != "" {
			refs = append(refs, *ref)
		}
	}
	add(session.AudioURL)
	add(session.TeacherFeedbackAudio)
	for i := range session.Segments {
		add(&session.Segments[i].AudioURL)
		add(session.Segments[i].TeacherFeedbackAudio)
	}
	return refs
}

// deleteBlobs removes audio no row references any more, best effort. It
// outlives a cancelled request.
func (s *Server) deleteBlobs(r *http.Request, refs []string) {
	ctx := context.WithoutCancel(r.Context())
	for _, ref := range refs {
		if err := s.blobs.Delete(ctx, ref); err != nil && !errors.Is(err, blob.ErrNotFound) {
			s.log.WithError(err).WithField("ref", ref).Warn("delete audio blob")
		}
	}
}

// streamAudio copies a stored recording to the client.
func (s *Server) streamAudio(w http.ResponseWriter, r *http.Request, ref string) {
	body, object, err := s.blobs.Open(r.Context(), ref)
	if errors.Is(err, blob.ErrNotFound) {
		writeError(w, http.StatusNotFound, "audio_not_found")
		return
	}
	if err != nil {
		s.serverError(w, r, err, "open audio")
		return
	}
	defer body.Close()

	contentType := object.ContentType
	if contentType == "" {
		contentType = "audio/webm"
	}
	w.Header().Set("Content-Type", contentType)
	if object.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(object.Size, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.log.WithError(err).WithField("ref", ref).Warn("stream audio")
	}
}
