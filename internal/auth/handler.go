package auth

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/redmonkez12/chatty-auth/internal/account"
	"github.com/redmonkez12/chatty-auth/internal/httputil"
	"github.com/redmonkez12/chatty-auth/internal/logging"
)

// RequestLimiter throttles requests per subject and purpose. The subject is
// the client IP or, for code and credential checks, the account email.
type RequestLimiter interface {
	Allow(ctx context.Context, subject, purpose string) (bool, time.Duration, error)
	Reset(ctx context.Context, subject, purpose string) error
}

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service  *Service
	limiter  RequestLimiter
	cookies  *CookieSink
	validate *validator.Validate
}

func NewHandler(service *Service, limiter RequestLimiter, cookies *CookieSink) *Handler {
	validate := validator.New()
	// report json field names in validation errors
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		service:  service,
		limiter:  limiter,
		cookies:  cookies,
		validate: validate,
	}
}

// FullName is the display name in request bodies
type FullName struct {
	FirstName string `json:"firstName" validate:"required,min=3,max=64"`
	LastName  string `json:"lastName" validate:"required,min=3,max=64"`
}

// SignupRequest represents the signup request body
type SignupRequest struct {
	Email    string   `json:"email" validate:"required,email,max=254"`
	Password string   `json:"password" validate:"required,min=6,max=72"`
	FullName FullName `json:"fullname"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// EmailRequest carries only an email address
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// CodeRequest carries an email address and a one-time code
type CodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// ResetPasswordRequest represents the password reset confirmation
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

// UpdateProfileRequest carries a reference to an already stored avatar image
type UpdateProfileRequest struct {
	Avatar string `json:"avatar" validate:"required,max=2048"`
}

// AccountView is the public projection of an account
type AccountView struct {
	ID         uuid.UUID        `json:"id"`
	Email      string           `json:"email"`
	FullName   account.Name     `json:"fullname"`
	Avatar     string           `json:"avatar"`
	Presence   account.Presence `json:"presence"`
	IsVerified bool             `json:"isVerified"`
	CreatedAt  time.Time        `json:"createdAt"`
}

func NewAccountView(a *account.Account) AccountView {
	return AccountView{
		ID:         a.ID,
		Email:      a.Email,
		FullName:   a.Name,
		Avatar:     a.AvatarRef,
		Presence:   a.Presence,
		IsVerified: a.Verification.IsVerified,
		CreatedAt:  a.CreatedAt,
	}
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// AccountResponse wraps an account view
type AccountResponse struct {
	Message string      `json:"message,omitempty"`
	User    AccountView `json:"user"`
}

// SessionResponse is returned whenever a session is started
type SessionResponse struct {
	Message string      `json:"message,omitempty"`
	User    AccountView `json:"user"`
	Token   string      `json:"token"`
}

// Signup handles account registration
// @Summary      Register a new account
// @Description  Create an unverified account. A 6-digit verification code is emailed.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body SignupRequest true "Signup data"
// @Success      201 {object} AccountResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or validation error"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /api/auth/signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "signup") {
		return
	}

	var req SignupRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.service.Signup(r.Context(), SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     account.Name{First: req.FullName.FirstName, Last: req.FullName.LastName},
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	httputil.RespondJSON(w, AccountResponse{
		Message: "Account created. Please verify your email to continue",
		User:    NewAccountView(created),
	}, http.StatusCreated)
}

// VerifyEmail handles email verification by code
// @Summary      Verify email address
// @Description  Consume the verification code, mark the account verified and start a session.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body CodeRequest true "Email and code"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} httputil.ErrorResponse "Expired or invalid code"
// @Failure      404 {object} httputil.ErrorResponse "Account not found"
// @Failure      409 {object} httputil.ErrorResponse "Already verified"
// @Failure      429 {object} httputil.ErrorResponse "Too many attempts"
// @Router       /api/auth/verify-email [post]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "verify_email") {
		return
	}

	var req CodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.allowAccount(w, r, "verify_email", req.Email) {
		return
	}

	result, err := h.service.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondSession(w, result, "Email verified successfully")
}

// ResendVerification handles verification code resend
// @Summary      Resend verification code
// @Description  Issue a new verification code. Limited to one request per cooldown window.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body EmailRequest true "Email address"
// @Success      200 {object} MessageResponse
// @Failure      404 {object} httputil.ErrorResponse "Account not found"
// @Failure      409 {object} httputil.ErrorResponse "Already verified"
// @Failure      429 {object} httputil.ErrorResponse "Requested too recently"
// @Router       /api/auth/resend-verification [post]
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "resend") {
		return
	}

	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	httputil.RespondJSON(w, MessageResponse{Message: "Verification code sent"}, http.StatusOK)
}

// Login handles credential login
// @Summary      Log in
// @Description  Check email and password and start a session. Verification is not required.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /api/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "login") {
		return
	}

	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.allowAccount(w, r, "login", req.Email) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.resetAccount(r, "login", req.Email)

	h.respondSession(w, result, "")
}

// RequestPasswordReset handles reset code requests
// @Summary      Request a password reset code
// @Description  Email a 6-digit reset code. Any earlier reset authorization is revoked.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body EmailRequest true "Email address"
// @Success      200 {object} MessageResponse
// @Failure      404 {object} httputil.ErrorResponse "Account not found"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /api/auth/request-password-reset [post]
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "password_reset") {
		return
	}

	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	httputil.RespondJSON(w, MessageResponse{Message: "Password reset code sent"}, http.StatusOK)
}

// VerifyResetCode handles reset code verification
// @Summary      Verify a password reset code
// @Description  Consume the reset code and authorize one password change.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body CodeRequest true "Email and code"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Expired or invalid code"
// @Failure      404 {object} httputil.ErrorResponse "Account not found"
// @Failure      429 {object} httputil.ErrorResponse "Too many attempts"
// @Router       /api/auth/verify-reset-code [post]
func (h *Handler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "verify_reset") {
		return
	}

	var req CodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.allowAccount(w, r, "verify_reset", req.Email) {
		return
	}

	if err := h.service.VerifyResetCode(r.Context(), req.Email, req.Code); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	httputil.RespondJSON(w, MessageResponse{Message: "Reset code verified"}, http.StatusOK)
}

// ResetPassword handles the password change after a verified reset code
// @Summary      Reset password
// @Description  Set a new password. Requires a verified reset code; starts a fresh session.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ResetPasswordRequest true "Email and new password"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Reset code not verified"
// @Failure      404 {object} httputil.ErrorResponse "Account not found"
// @Router       /api/auth/reset-password [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.ResetPassword(r.Context(), req.Email, req.NewPassword)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondSession(w, result, "Password reset successfully")
}

// Logout clears the session cookie
// @Summary      Log out
// @Description  Clear the session cookie
// @Tags         auth
// @Produce      json
// @Success      200 {object} MessageResponse
// @Router       /api/auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.ClearSession(w)
	httputil.RespondJSON(w, MessageResponse{Message: "Logged out successfully"}, http.StatusOK)
}

// CheckAuth returns the current account
// @Summary      Current account
// @Description  Return the account behind the session
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} AccountResponse
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Router       /api/auth/check [get]
func (h *Handler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	current, ok := GetAccountFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "unauthorized", httputil.CodeUnauthorized, http.StatusUnauthorized)
		return
	}

	httputil.RespondJSON(w, AccountResponse{User: NewAccountView(current)}, http.StatusOK)
}

// UpdateProfile replaces the avatar of the current account
// @Summary      Update profile
// @Description  Replace the avatar reference of the current account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdateProfileRequest true "Avatar reference"
// @Success      200 {object} AccountResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Router       /api/auth/update-profile [put]
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	current, ok := GetAccountFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "unauthorized", httputil.CodeUnauthorized, http.StatusUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), current.ID, req.Avatar)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	httputil.RespondJSON(w, AccountResponse{
		Message: "Profile updated successfully",
		User:    NewAccountView(updated),
	}, http.StatusOK)
}

func (h *Handler) respondSession(w http.ResponseWriter, result *AuthResult, message string) {
	h.cookies.SetSession(w, result.Session)
	httputil.RespondJSON(w, SessionResponse{
		Message: message,
		User:    NewAccountView(result.Account),
		Token:   result.Session.Token,
	}, http.StatusOK)
}

// decode reads a JSON body into dst, normalizes it and validates it.
// It writes the error response itself and reports whether to continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	logger := logging.GetLoggerFromContext(r.Context())

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.Warn("invalid request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return false
	}

	normalizeRequest(dst)

	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			logger.Warn("request validation failed", "field", first.Field(), "rule", first.Tag())
			httputil.RespondValidationError(w, first.Field(), validationMessage(first))
			return false
		}
		logger.Error("request validation error", "error", err)
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return false
	}

	return true
}

func normalizeRequest(dst any) {
	switch req := dst.(type) {
	case *SignupRequest:
		req.Email = account.NormalizeEmail(req.Email)
		req.FullName.FirstName = strings.TrimSpace(req.FullName.FirstName)
		req.FullName.LastName = strings.TrimSpace(req.FullName.LastName)
	case *LoginRequest:
		req.Email = account.NormalizeEmail(req.Email)
	case *EmailRequest:
		req.Email = account.NormalizeEmail(req.Email)
	case *CodeRequest:
		req.Email = account.NormalizeEmail(req.Email)
		req.Code = strings.TrimSpace(req.Code)
	case *ResetPasswordRequest:
		req.Email = account.NormalizeEmail(req.Email)
	case *UpdateProfileRequest:
		req.Avatar = strings.TrimSpace(req.Avatar)
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "len", "numeric":
		return fe.Field() + " must be a 6-digit code"
	default:
		return fe.Field() + " is invalid"
	}
}

// allow applies the per-IP throttle. A limiter failure lets the request through.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, purpose string) bool {
	return h.throttle(w, r, purpose, getClientIP(r))
}

// allowAccount applies the per-account throttle, so guesses against one
// email are capped no matter how many addresses they come from.
func (h *Handler) allowAccount(w http.ResponseWriter, r *http.Request, purpose, email string) bool {
	return h.throttle(w, r, accountPurpose(purpose), account.NormalizeEmail(email))
}

// resetAccount clears the per-account counter after a successful check
func (h *Handler) resetAccount(r *http.Request, purpose, email string) {
	if h.limiter == nil {
		return
	}
	if err := h.limiter.Reset(r.Context(), account.NormalizeEmail(email), accountPurpose(purpose)); err != nil {
		logging.GetLoggerFromContext(r.Context()).Warn("failed to reset account rate limit", "purpose", purpose, "error", err.Error())
	}
}

func (h *Handler) throttle(w http.ResponseWriter, r *http.Request, purpose, subject string) bool {
	if h.limiter == nil {
		return true
	}

	logger := logging.GetLoggerFromContext(r.Context())

	allowed, retryAfter, err := h.limiter.Allow(r.Context(), subject, purpose)
	if err != nil {
		logger.Error("failed to check rate limit", "purpose", purpose, "error", err.Error())
		return true
	}
	if !allowed {
		logger.Warn("rate limit exceeded", "subject", subject, "purpose", purpose)
		httputil.RespondRateLimited(w, "too many requests, please try again later",
			httputil.CodeTooManyRequests, int(math.Ceil(retryAfter.Seconds())))
		return false
	}
	return true
}

func accountPurpose(purpose string) string {
	return purpose + "_account"
}

// respondServiceError maps a service error onto a status, code and safe message
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.GetLoggerFromContext(r.Context())

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		logger.Warn("code requested during cooldown", "purpose", rateErr.Purpose, "remaining_seconds", rateErr.RemainingSeconds)
		httputil.RespondRateLimited(w, rateErr.Error(), httputil.CodeRateLimited, rateErr.RemainingSeconds)
		return
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		logger.Warn("validation failed", "field", validationErr.Field)
		httputil.RespondValidationError(w, validationErr.Field, validationErr.Error())
		return
	}

	kind := KindOf(err)
	if kind == KindInternal {
		logger.Error("request failed: internal error", "error", err)
		httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Warn("request failed", "kind", kind.String(), "error", err.Error())

	switch {
	case errors.Is(err, ErrAccountNotFound):
		httputil.RespondErrorWithCode(w, "account not found", httputil.CodeAccountNotFound, http.StatusNotFound)
	case errors.Is(err, ErrEmailExists):
		httputil.RespondErrorWithCode(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
	case errors.Is(err, ErrAlreadyVerified):
		httputil.RespondErrorWithCode(w, "email already verified", httputil.CodeAlreadyVerified, http.StatusConflict)
	case errors.Is(err, ErrCodeExpired):
		httputil.RespondErrorWithCode(w, "code expired, please request a new one", httputil.CodeCodeExpired, http.StatusBadRequest)
	case errors.Is(err, ErrCodeMismatch):
		httputil.RespondErrorWithCode(w, "invalid code", httputil.CodeCodeMismatch, http.StatusBadRequest)
	case errors.Is(err, ErrInvalidCredentials):
		httputil.RespondErrorWithCode(w, "invalid credentials", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
	case errors.Is(err, ErrResetNotAuthorized):
		httputil.RespondErrorWithCode(w, "verify reset code first", httputil.CodeResetNotAuthorized, http.StatusUnauthorized)
	default:
		httputil.RespondErrorWithCode(w, "unauthorized", httputil.CodeUnauthorized, http.StatusUnauthorized)
	}
}

// getClientIP returns the client IP. chi's RealIP middleware has already
// folded X-Forwarded-For and X-Real-IP into RemoteAddr.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
