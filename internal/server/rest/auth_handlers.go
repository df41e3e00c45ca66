package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/contactbook/internal/common"
)

const enumerationSafeMsg = "If email exists, verification email has been sent"

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	u, err := h.users.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(u))
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	pair, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	pair, err := h.users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			unauthorized(w, "Invalid refresh token")
			return
		}
		h.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (h *handlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	if _, err := h.users.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, "Invalid or expired verification token")
			return
		}
		h.fail(w, r, err, "")
		return
	}
	writeMessage(w, "Email verified successfully")
}

func (h *handlers) resendVerification(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if err := check(forgotPasswordRequest{Email: email}); err != nil {
		h.fail(w, r, err, "")
		return
	}
	if err := h.users.ResendVerification(r.Context(), email); err != nil {
		h.fail(w, r, err, "")
		return
	}
	writeMessage(w, enumerationSafeMsg)
}

func (h *handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}
	if err := h.users.ForgotPassword(r.Context(), req.Email); err != nil {
		h.fail(w, r, err, "")
		return
	}
	writeMessage(w, "If email exists, password reset instructions have been sent")
}

func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}
	if err := h.users.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
			return
		}
		h.fail(w, r, err, "")
		return
	}
	writeMessage(w, "Password has been reset successfully")
}

func (h *handlers) verifyResetToken(w http.ResponseWriter, r *http.Request) {
	if err := h.users.VerifyResetToken(r.Context(), r.URL.Query().Get("token")); err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
			return
		}
		h.fail(w, r, err, "")
		return
	}
	writeMessage(w, "Token is valid")
}
