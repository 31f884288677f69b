package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/snipvault/snipvault/internal/adapter/outbound/executor"
	"github.com/snipvault/snipvault/internal/domain/admission"
	"github.com/snipvault/snipvault/internal/domain/audit"
	"github.com/snipvault/snipvault/internal/domain/auth"
	"github.com/snipvault/snipvault/internal/domain/snippet"
	"github.com/snipvault/snipvault/internal/service"
)

// maxBodyBytes bounds request bodies. Snippets are code, not uploads.
const maxBodyBytes = 1 << 20

// Handlers holds the HTTP endpoint implementations for the snippet API.
type Handlers struct {
	adm         *AdmissionMiddleware
	credentials auth.CredentialVerifier
	sessions    auth.SessionStore
	sessionTTL  time.Duration
	snippets    snippet.Store
	executor    *executor.Client
	auditSvc    *service.AuditService
	metrics     *Metrics
}

// NewHandlers creates the endpoint handlers.
func NewHandlers(
	adm *AdmissionMiddleware,
	credentials auth.CredentialVerifier,
	sessions auth.SessionStore,
	sessionTTL time.Duration,
	snippets snippet.Store,
	exec *executor.Client,
	auditSvc *service.AuditService,
	metrics *Metrics,
) *Handlers {
	return &Handlers{
		adm:         adm,
		credentials: credentials,
		sessions:    sessions,
		sessionTTL:  sessionTTL,
		snippets:    snippets,
		executor:    exec,
		auditSvc:    auditSvc,
		metrics:     metrics,
	}
}

// errorBody is the generic error envelope for non-denial failures.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	var body errorBody
	body.Error.Message = message
	writeJSON(w, status, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// loginRequest is the POST /api/auth/login payload.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the successful login payload.
type loginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login authenticates an email/password pair and issues a bearer token.
//
// Brute-force protection keys on (IP, email hash) and counts only failures:
// the admission check peeks the failure counter before credentials are
// verified, and a failed verification records one failure. Successful logins
// never consume quota, so a user on a shared IP is not locked out by
// neighbors logging in normally.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	caller := CallerFromContext(r.Context())
	caller.Email = req.Email

	if !h.adm.CheckCaller(w, r, admission.PolicyAuthAttempt, caller) {
		return
	}

	user, err := h.credentials.Verify(r.Context(), req.Email, req.Password)
	if err != nil {
		h.adm.RecordFailure(admission.PolicyAuthAttempt, caller)
		LoggerFromContext(r.Context()).Warn("login failed",
			"ip", caller.IP,
			"email_hash", admission.EmailHash(req.Email),
		)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	sess := &auth.Session{
		Token:     uuid.New().String(),
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: time.Now().Add(h.sessionTTL),
	}
	if err := h.sessions.Create(r.Context(), sess); err != nil {
		LoggerFromContext(r.Context()).Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     sess.Token,
		UserID:    sess.UserID,
		Email:     sess.Email,
		ExpiresAt: sess.ExpiresAt,
	})
}

// Logout deletes the caller's session. Idempotent.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		_ = h.sessions.Delete(r.Context(), token)
	}
	w.WriteHeader(http.StatusNoContent)
}

// createSnippetRequest is the POST /api/snippets payload.
type createSnippetRequest struct {
	Title    string `json:"title"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

// CreateSnippet stores a new snippet. Guests may create snippets; the
// author is recorded only for authenticated callers.
func (h *Handlers) CreateSnippet(w http.ResponseWriter, r *http.Request) {
	var req createSnippetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "title and content are required")
		return
	}

	caller := CallerFromContext(r.Context())
	sn := snippet.Snippet{
		ID:        uuid.New().String(),
		Title:     req.Title,
		Language:  req.Language,
		Content:   req.Content,
		AuthorID:  caller.UserID,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.snippets.CreateSnippet(r.Context(), sn); err != nil {
		LoggerFromContext(r.Context()).Error("failed to create snippet", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, sn)
}

// GetSnippet fetches a snippet by ID.
func (h *Handlers) GetSnippet(w http.ResponseWriter, r *http.Request) {
	sn, err := h.snippets.GetSnippet(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, snippet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "snippet not found")
		return
	}
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to fetch snippet", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// createCommentRequest is the POST /api/snippets/{id}/comments payload.
type createCommentRequest struct {
	Body string `json:"body"`
}

// CreateComment attaches a comment to a snippet.
func (h *Handlers) CreateComment(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	caller := CallerFromContext(r.Context())
	c := snippet.Comment{
		ID:        uuid.New().String(),
		SnippetID: chi.URLParam(r, "id"),
		AuthorID:  caller.UserID,
		Body:      req.Body,
		CreatedAt: time.Now().UTC(),
	}
	err := h.snippets.CreateComment(r.Context(), c)
	if errors.Is(err, snippet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "snippet not found")
		return
	}
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to create comment", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// starResponse is the POST /api/snippets/{id}/star payload.
type starResponse struct {
	Starred bool `json:"starred"`
	Stars   int  `json:"stars"`
}

// ToggleStar flips the caller's star on a snippet. Stars are keyed on the
// user ID when authenticated, otherwise on the client IP.
func (h *Handlers) ToggleStar(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	subject := caller.UserID
	if subject == "" {
		subject = caller.IP
	}

	starred, total, err := h.snippets.ToggleStar(r.Context(), chi.URLParam(r, "id"), subject)
	if errors.Is(err, snippet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "snippet not found")
		return
	}
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to toggle star", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, starResponse{Starred: starred, Stars: total})
}

// Execute submits code to the external execution backend.
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	var req executor.Request
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Language == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "language and code are required")
		return
	}

	result, err := h.executor.Execute(r.Context(), req)
	if errors.Is(err, executor.ErrNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, "code execution is not available")
		return
	}
	if err != nil {
		LoggerFromContext(r.Context()).Error("execution backend failed", "error", err)
		writeError(w, http.StatusBadGateway, "execution failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Webhook accepts inbound webhook deliveries. Payloads are acknowledged and
// logged; processing is out of band.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	LoggerFromContext(r.Context()).Info("webhook received",
		"source", source,
		"content_length", r.ContentLength,
	)
	writeJSON(w, http.StatusAccepted, map[string]any{"received": true, "source": source})
}

// RecentDenials returns the most recent denial audit records.
// Requires an authenticated session.
func (h *Handlers) RecentDenials(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if !caller.Authenticated() {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := parsePositiveInt(q); err == nil {
			limit = n
		}
	}

	records, err := h.auditSvc.Recent(r.Context(), limit)
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to read audit trail", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if records == nil {
		records = []audit.DenialRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// parsePositiveInt parses a positive decimal integer.
func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}
