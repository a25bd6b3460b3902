package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/zinses-rechner/calcsync/internal/api/shared"
	"github.com/zinses-rechner/calcsync/internal/config"
	"github.com/zinses-rechner/calcsync/internal/platform/logger"
	"github.com/zinses-rechner/calcsync/internal/redact"
	"github.com/zinses-rechner/calcsync/internal/service/auth"
)

// defaultTokenSubject is used when a token request names no subject.
const defaultTokenSubject = "operator"

// TokenRequest is the body of POST /auth/token. Operators exchange the
// admin key for a short-lived bearer token.
type TokenRequest struct {
	AdminKey string `json:"admin_key" validate:"required"`
	Subject  string `json:"subject"   validate:"omitempty,max=64"`
}

// TokenResponse carries a freshly minted bearer token.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// AuthHandler handles the token exchange endpoint of the calculation
// service.
type AuthHandler struct {
	jwtService    auth.JWTService
	keyVerifier   auth.KeyVerifier
	adminKeyHash  string
	tokenLifetime time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	jwtService auth.JWTService,
	keyVerifier auth.KeyVerifier,
	cfg config.AuthConfig,
	log *slog.Logger,
) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}

	return &AuthHandler{
		jwtService:    jwtService,
		keyVerifier:   keyVerifier,
		adminKeyHash:  cfg.AdminKeyHash,
		tokenLifetime: time.Duration(cfg.TokenLifetimeMinutes) * time.Minute,
		logger:        log.With(slog.String("component", "auth_handler")),
		now:           time.Now,
	}
}

// IssueToken handles POST /auth/token requests.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req TokenRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("malformed token request", slog.String("error", redact.Error(err)))
		shared.RespondWithEnvelope(w, r, http.StatusBadRequest, shared.ErrorEnvelope{
			Error:   "Bad Request",
			Message: "Invalid input parameters",
			Code:    codeInvalidInput,
		})
		return
	}

	if err := shared.Validate.Struct(req); err != nil {
		shared.RespondWithEnvelope(w, r, http.StatusUnprocessableEntity, shared.ErrorEnvelope{
			Error:   "Validation Error",
			Message: "Die Eingabedaten sind ungültig",
			Code:    codeValidationFailed,
		})
		return
	}

	if h.adminKeyHash == "" {
		log.Error("admin key hash not configured, refusing token request")
		h.respondServerError(w, r)
		return
	}

	if err := h.keyVerifier.Compare(h.adminKeyHash, req.AdminKey); err != nil {
		if errors.Is(err, auth.ErrInvalidAdminKey) {
			log.Warn("token request with invalid admin key",
				slog.String("remote_addr", r.RemoteAddr))
			shared.RespondWithEnvelope(w, r, http.StatusUnauthorized, shared.ErrorEnvelope{
				Error:   "INVALID_ADMIN_KEY",
				Message: "Ungültiger Admin-Schlüssel",
			})
			return
		}
		log.Error("admin key comparison failed", slog.String("error", redact.Error(err)))
		h.respondServerError(w, r)
		return
	}

	subject := req.Subject
	if subject == "" {
		subject = defaultTokenSubject
	}

	token, err := h.jwtService.GenerateToken(r.Context(), subject)
	if err != nil {
		log.Error("failed to generate token",
			slog.String("error", redact.Error(err)),
			slog.String("subject", subject))
		h.respondServerError(w, r)
		return
	}

	expiresAt := h.now().Add(h.tokenLifetime).UTC()

	log.Info("token issued",
		slog.String("subject", subject),
		slog.Time("expires_at", expiresAt))
	shared.RespondWithJSON(w, r, http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}

func (h *AuthHandler) respondServerError(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithEnvelope(w, r, http.StatusInternalServerError, shared.ErrorEnvelope{
		Error:   "Internal Server Error",
		Message: "Ein unerwarteter Serverfehler ist aufgetreten",
		Code:    codeInternalError,
	})
}
