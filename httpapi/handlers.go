package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/otpauth"
	"github.com/MrEthical07/otpauth/middleware"
	"github.com/MrEthical07/otpauth/validation"
)

type handler struct {
	service   Service
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

type okResponse struct {
	OK bool `json:"ok"`
}

type healthResponse struct {
	OK   bool   `json:"ok"`
	Time string `json:"time"`
}

type signupUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type accountUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type signupResponse struct {
	AccessToken string     `json:"accessToken"`
	User        signupUser `json:"user"`
}

type loginResponse struct {
	AccessToken string      `json:"accessToken"`
	User        accountUser `json:"user"`
}

func toAccountUser(u otpauth.User) accountUser {
	return accountUser{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{OK: true, Time: h.now().UTC().Format(time.RFC3339Nano)})
}

func (h *handler) signupRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req validation.SignupRequestOTP
	if !h.bind(w, r, &req) {
		return
	}

	if err := h.service.RequestSignupOTP(r.Context(), req.Email, req.Name); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *handler) signupVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req validation.SignupVerifyOTP
	if !h.bind(w, r, &req) {
		return
	}

	res, err := h.service.VerifySignupOTP(r.Context(), req.Email, req.OTP, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, signupResponse{
		AccessToken: res.AccessToken,
		User:        signupUser{ID: res.User.ID, Name: res.User.Name, Email: res.User.Email},
	})
}

func (h *handler) loginRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req validation.LoginRequestOTP
	if !h.bind(w, r, &req) {
		return
	}

	err := h.service.RequestLoginOTP(r.Context(), req.Email)
	if errors.Is(err, otpauth.ErrUserNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: CodeEmailNotFound, Hint: "Sign up first"})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *handler) loginVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req validation.LoginVerifyOTP
	if !h.bind(w, r, &req) {
		return
	}

	res, err := h.service.VerifyLoginOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{AccessToken: res.AccessToken, User: toAccountUser(res.User)})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: CodeNoToken})
		return
	}

	user, err := h.service.CurrentUser(r.Context(), id.UserID)
	if errors.Is(err, otpauth.ErrUserNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: CodeNotFound})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountUser(user))
}

// bind decodes and validates the body into req, writing the failure
// response itself when it returns false.
func (h *handler) bind(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := decodeJSON(w, r, req); err != nil {
		h.writeError(w, r, err)
		return false
	}
	if err := h.validator.Validate(req); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}
