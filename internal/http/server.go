package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"cadence/practice/internal/access"
	"cadence/practice/internal/analysis"
	"cadence/practice/internal/auth"
	"cadence/practice/internal/blob"
	"cadence/practice/internal/config"
	"cadence/practice/internal/db"
	"cadence/practice/internal/logger"
	"cadence/practice/internal/metrics"
	"cadence/practice/internal/model"
)

const tokenCookie = "token"

type Server struct {
	cfg      config.Config
	store    *db.Store
	revoker  auth.Revoker
	blobs    blob.Store
	analyzer *analysis.Analyzer
	log      logrus.FieldLogger

	now      func() time.Time
	location *time.Location
}

// NewServer wires the HTTP API. revoker may be nil, in which case logout only
// clears the cookie.
func NewServer(cfg config.Config, store *db.Store, revoker auth.Revoker, blobs blob.Store, analyzer *analysis.Analyzer, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		cfg:      cfg,
		store:    store,
		revoker:  revoker,
		blobs:    blobs,
		analyzer: analyzer,
		log:      log,
		now:      time.Now,
		location: time.Local,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Requests(s.log))
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/signup", s.handleSignup)
	r.Post("/auth/login", s.handleLogin)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)

	r.Route("/students", func(r chi.Router) {
		r.Get("/invite-info", s.handleInviteInfo)
		r.Post("/accept-invite", s.handleAcceptInvite)
		r.With(s.authMiddleware).Get("/streak", s.handleStreak)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware, s.requireRole(model.RoleTeacher))
			r.Get("/", s.handleListStudents)
			r.Post("/invite", s.handleInviteStudent)
			r.Delete("/{studentId}", s.handleDeleteStudent)
			r.Get("/{studentId}/stats", s.handleStudentStats)
		})
	})

	r.With(s.authMiddleware, s.requireRole(model.RoleTeacher)).Get("/teachers/sessions", s.handleTeacherSessions)

	r.Route("/practice", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireRole(model.RoleStudent)).Post("/session/start", s.handleStartSession)
		r.Get("/session/{sessionId}", s.handleGetPracticeSession)
		r.Patch("/session/{sessionId}/end", s.handleEndSession)
		r.Post("/session/{sessionId}/segment", s.handleAddSegment)

		r.With(s.requireRole(model.RoleStudent)).Post("/sessions", s.handleCreateRecording)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{sessionId}", s.handleGetSession)
		r.Delete("/sessions/{sessionId}", s.handleDeleteSession)
		r.Post("/sessions/{sessionId}/feedback", s.handleSessionFeedback)
		r.Get("/sessions/{sessionId}/audio", s.handleSessionAudio)

		r.Post("/segments/{segmentId}/feedback", s.handleSegmentFeedback)
		r.Get("/segments/{segmentId}/audio", s.handleSegmentAudio)
	})

	r.Route("/analysis", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/segment/{segmentId}", s.handleAnalyzeSegment)
		r.Get("/segment/{segmentId}", s.handleGetSegmentAnalysis)
		r.Post("/{sessionId}", s.handleAnalyzeSession)
		r.Get("/{sessionId}", s.handleGetSessionAnalysis)
	})

	r.Route("/pieces", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireRole(model.RoleStudent))
		r.Get("/", s.handleListPieces)
		r.Post("/", s.handleCreatePiece)
		r.Patch("/{pieceId}", s.handleUpdatePiece)
		r.Delete("/{pieceId}", s.handleDeletePiece)
	})

	return r
}

// instrument counts responses by route pattern so ids never become labels.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		var route string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		metrics.ObserveResponse(route, status)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			if cookie, err := r.Cookie(tokenCookie); err == nil {
				token = strings.TrimSpace(cookie.Value)
			}
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		if s.revoker != nil && claims.ID != "" {
			revoked, err := s.revoker.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				s.serverError(w, r, err, "check token revocation")
				return
			}
			if revoked {
				writeError(w, http.StatusUnauthorized, "invalid_token")
				return
			}
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil || model.Role(claims.Role) != role {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func callerFrom(r *http.Request) access.Caller {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		return access.Caller{}
	}
	return access.Caller{ID: claims.UserID, Role: model.Role(claims.Role)}
}

// loadSession fetches a session and the student owning it, answering 404
// itself when either is missing.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request, id string, detail bool) (model.PracticeSession, model.Account, bool) {
	var (
		session model.PracticeSession
		err     error
	)
	if detail {
		session, err = s.store.GetSessionDetail(r.Context(), id)
	} else {
		session, err = s.store.GetSession(r.Context(), id)
	}
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session_not_found")
		return session, model.Account{}, false
	}
	if err != nil {
		s.serverError(w, r, err, "load session")
		return session, model.Account{}, false
	}

	owner, err := s.store.GetAccountByID(r.Context(), session.StudentID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session_not_found")
		return session, owner, false
	}
	if err != nil {
		s.serverError(w, r, err, "load session owner")
		return session, owner, false
	}
	return session, owner, true
}

// loadSessionFor combines loadSession with a verdict for action.
func (s *Server) loadSessionFor(w http.ResponseWriter, r *http.Request, action access.Action, detail bool) (model.PracticeSession, model.Account, bool) {
	session, owner, ok := s.loadSession(w, r, chi.URLParam(r, "sessionId"), detail)
	if !ok {
		return session, owner, false
	}
	if !access.CanPerform(callerFrom(r), action, session, owner) {
		writeError(w, http.StatusForbidden, "forbidden")
		return session, owner, false
	}
	return session, owner, true
}

// loadSegmentFor fetches a segment with its session and owner, then asks the
// resolver for a verdict on action.
func (s *Server) loadSegmentFor(w http.ResponseWriter, r *http.Request, action access.Action) (model.PracticeSegment, model.PracticeSession, bool) {
	segment, err := s.store.GetSegment(r.Context(), chi.URLParam(r, "segmentId"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "segment_not_found")
		return segment, model.PracticeSession{}, false
	}
	if err != nil {
		s.serverError(w, r, err, "load segment")
		return segment, model.PracticeSession{}, false
	}
	session, owner, ok := s.loadSession(w, r, segment.SessionID, false)
	if !ok {
		return segment, session, false
	}
	if !access.CanPerformOnSegment(callerFrom(r), action, segment, session, owner) {
		writeError(w, http.StatusForbidden, "forbidden")
		return segment, session, false
	}
	return segment, session, true
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	s.log.WithError(err).WithFields(logrus.Fields{
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	}).Error(msg)
	writeError(w, http.StatusInternalServerError, "server_error")
}

func (s *Server) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cfg.AccessTokenTTL.Seconds()),
	})
}

func (s *Server) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
