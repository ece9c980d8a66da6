package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"cropadviser/internal/app"
	"cropadviser/internal/util"
	"cropadviser/pkg/domain"
)

const defaultMaxUploadBytes = 10 << 20

var defaultAllowedExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".csv", ".txt",
	".jpg", ".jpeg", ".png", ".webp",
}

// Limiter gates request bursts per client key.
type Limiter interface {
	Allow(key string) bool
}

// Config wires the HTTP edge. Nil limiters disable the corresponding gate.
type Config struct {
	App               *app.App
	CORSAllowOrigin   string
	LoginLimiter      Limiter
	SignupLimiter     Limiter
	PasswordLimiter   Limiter
	MaxUploadBytes    int64
	AllowedExtensions []string
}

// Server routes the Smart Crop Adviser REST API.
type Server struct {
	app             *app.App
	loginLimiter    Limiter
	signupLimiter   Limiter
	passwordLimiter Limiter
	maxUploadBytes  int64
	allowedExt      map[string]bool
	handler         http.Handler
}

func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	extensions := cfg.AllowedExtensions
	if len(extensions) == 0 {
		extensions = defaultAllowedExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(strings.TrimSpace(ext))] = true
	}

	s := &Server{
		app:             cfg.App,
		loginLimiter:    cfg.LoginLimiter,
		signupLimiter:   cfg.SignupLimiter,
		passwordLimiter: cfg.PasswordLimiter,
		maxUploadBytes:  maxUpload,
		allowedExt:      allowed,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/v1/users", s.limited(s.signupLimiter, s.handleRegister))
	mux.HandleFunc("POST /api/v1/users/login", s.limited(s.loginLimiter, s.handleLogin))
	mux.HandleFunc("POST /api/v1/users/refresh", s.limited(s.loginLimiter, s.handleRefresh))
	mux.HandleFunc("POST /api/v1/users/logout", s.handleLogout)
	mux.HandleFunc("GET /api/v1/users", s.authed(s.handleListUsers))
	mux.HandleFunc("GET /api/v1/users/{id}", s.authed(s.handleGetUser))
	mux.HandleFunc("PUT /api/v1/users/{id}", s.authed(s.handleUpdateUser))
	mux.HandleFunc("PATCH /api/v1/users/{id}/password", s.limited(s.passwordLimiter, s.authed(s.handleChangePassword)))
	mux.HandleFunc("POST /api/v1/users/{id}/avatar", s.authed(s.handleUploadAvatar))
	mux.HandleFunc("PATCH /api/v1/users/{id}/level", s.authed(s.handleSetUserLevel))
	mux.HandleFunc("GET /api/v1/stats", s.authed(s.handleStats))

	mux.HandleFunc("POST /api/v1/appointments", s.authed(s.handleCreateAppointment))
	mux.HandleFunc("GET /api/v1/appointments", s.authed(s.handleListAppointments))
	mux.HandleFunc("GET /api/v1/appointments/adviser/{id}", s.authed(s.handleAdviserAppointments))
	mux.HandleFunc("GET /api/v1/appointments/farmer/{id}", s.authed(s.handleFarmerAppointments))
	mux.HandleFunc("GET /api/v1/appointments/{id}", s.authed(s.handleGetAppointment))
	mux.HandleFunc("PUT /api/v1/appointments/{id}", s.authed(s.handleUpdateAppointment))

	mux.HandleFunc("POST /api/v1/cultivations", s.authed(s.handleCreateCultivation))
	mux.HandleFunc("GET /api/v1/cultivations", s.authed(s.handleListCultivations))
	mux.HandleFunc("GET /api/v1/cultivations/{id}", s.authed(s.handleGetCultivation))
	mux.HandleFunc("PUT /api/v1/cultivations/{id}", s.authed(s.handleUpdateCultivation))
	mux.HandleFunc("DELETE /api/v1/cultivations/{id}", s.authed(s.handleDeleteCultivation))

	mux.HandleFunc("POST /api/v1/fertilizers", s.authed(s.handleCreateFertilizer))
	mux.HandleFunc("GET /api/v1/fertilizers", s.authed(s.handleListFertilizers))
	mux.HandleFunc("GET /api/v1/fertilizers/{id}", s.authed(s.handleGetFertilizer))
	mux.HandleFunc("PUT /api/v1/fertilizers/{id}", s.authed(s.handleUpdateFertilizer))
	mux.HandleFunc("DELETE /api/v1/fertilizers/{id}", s.authed(s.handleDeleteFertilizer))

	mux.HandleFunc("POST /api/v1/user-files", s.authed(s.handleUploadFile))
	mux.HandleFunc("GET /api/v1/user-files", s.authed(s.handleListFiles))
	mux.HandleFunc("GET /api/v1/user-files/farmer/{id}", s.authed(s.handleFarmerFiles))
	mux.HandleFunc("PUT /api/v1/user-files/{id}", s.authed(s.handleUpdateFile))
	mux.HandleFunc("DELETE /api/v1/user-files/{id}", s.authed(s.handleDeleteFile))
	mux.HandleFunc("GET /api/v1/user-files/{id}/download", s.authed(s.handleDownloadFile))

	mux.HandleFunc("POST /api/v1/predictions", s.authed(s.handleCreatePrediction))
	mux.HandleFunc("GET /api/v1/predictions", s.authed(s.handleListPredictions))
	mux.HandleFunc("GET /api/v1/predictions/export", s.authed(s.handleExportPredictions))
	mux.HandleFunc("GET /api/v1/predictions/user/{id}", s.authed(s.handleUserPredictions))
	mux.HandleFunc("GET /api/v1/predictions/{id}", s.authed(s.handleGetPrediction))

	var handler http.Handler = mux
	handler = util.WithSecurityHeaders(handler)
	handler = util.WithCORS(cfg.CORSAllowOrigin, handler)
	handler = util.WithRequestLog(handler)
	handler = util.WithRequestID(handler)
	s.handler = handler
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authed resolves the bearer token to a user before calling the handler.
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, domain.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, r, app.ErrUnauthorized)
			return
		}
		actor, err := s.app.UserFromToken(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r, actor)
	}
}

// limited applies a per-client-IP rate limit gate.
func (s *Server) limited(limiter Limiter, next http.HandlerFunc) http.HandlerFunc {
	if limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(util.ClientIP(r)) {
			writeMessage(w, http.StatusTooManyRequests, "too many requests, try again later")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func pathID(r *http.Request) (uint, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, app.ValidationError{Msg: "invalid id in path"}
	}
	return uint(id), nil
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return app.ValidationError{Msg: "invalid request body"}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("encode response", "err", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": items, "count": len(items)})
}

func writePage[T any](w http.ResponseWriter, items []T, page, pageSize int, total int64) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"data":     items,
		"count":    len(items),
		"page":     page,
		"pageSize": pageSize,
		"total":    total,
	})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

// writeError maps application errors to HTTP statuses. Unexpected errors are
// logged with the request id and masked.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation app.ValidationError
	switch {
	case errors.As(err, &validation):
		writeMessage(w, http.StatusBadRequest, validation.Msg)
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrAccountDisabled):
		writeMessage(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, app.ErrForbidden):
		writeMessage(w, http.StatusForbidden, "operation not permitted")
	case errors.Is(err, app.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrEmailTaken):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidTransition):
		writeMessage(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", util.RequestIDFromRequest(r), "err", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
