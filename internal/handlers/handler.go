package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mindlist-protocol/mindlist/internal/config"
	"github.com/mindlist-protocol/mindlist/internal/mail"
	"github.com/mindlist-protocol/mindlist/internal/store"
)

var (
	// nameRegex validates agent names: alphanumerics, hyphens, underscores.
	nameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	// xHandleRegex validates X handles, with or without the leading @.
	xHandleRegex = regexp.MustCompile(`^@?[A-Za-z0-9_]{1,15}$`)

	// emailRegex validates email addresses per RFC 5322 (simplified).
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db     store.DataStore
	redis  *store.RedisStore
	mailer mail.Sender
	cfg    *config.Config
}

// NewHandler creates a new Handler with the given dependencies. db, redis and
// mailer may each be nil; handlers that need a missing backend answer 503.
func NewHandler(db store.DataStore, redis *store.RedisStore, mailer mail.Sender, cfg *config.Config) *Handler {
	return &Handler{db: db, redis: redis, mailer: mailer, cfg: cfg}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// requireDB writes a 503 and returns false when no data store is configured.
func (h *Handler) requireDB(w http.ResponseWriter) bool {
	if h.db == nil {
		h.Error(w, http.StatusServiceUnavailable, "configuration error: no data store")
		return false
	}
	return true
}

// parseIDParam extracts and parses a UUID path parameter. Writes a 400 and
// returns false on malformed input.
func parseIDParam(w http.ResponseWriter, h *Handler, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// isValidName validates agent names: non-empty, bounded, restricted alphabet.
func isValidName(name string) bool {
	if name == "" || len(name) > 50 {
		return false
	}
	return nameRegex.MatchString(name)
}

// normalizeXHandle validates and normalizes an X handle to its leading-@ form.
// Returns "" for invalid handles.
func normalizeXHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	if handle == "" || !xHandleRegex.MatchString(handle) {
		return ""
	}
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}
	return handle
}

// isValidEmail validates email addresses using RFC 5322 pattern.
func isValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// truncate trims whitespace and control characters and caps the string length.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)

	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	if len(s) > max {
		s = s[:max]
	}
	return s
}
