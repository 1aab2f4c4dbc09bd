package http

import (
	"errors"
	"net/http"

	"github.com/coinpulse/coinpulse/internal/api/domain"
	"github.com/coinpulse/coinpulse/internal/api/service"
	"github.com/coinpulse/coinpulse/pkg/httpx"
)

type UserHandler struct {
	Users    *service.UserService
	Sessions *service.SessionService
	Cookies  CookieConfig
}

// Register godoc
//
//	@Summary		Register a password account
//	@Description	Creates a user. Username and email are lowercased and must be unique.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RegisterRequest		true	"fullName, email, username, password"
//	@Success		201		{object}	httpx.Success		"data: user"
//	@Failure		400		{object}	httpx.Failure		"missing fields, validation failure or duplicate user"
//	@Failure		429		{object}	httpx.Failure		"rate limited"
//	@Failure		500		{object}	httpx.Failure
//	@Router			/v1/users/register [post].
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	user, err := h.Users.Register(r.Context(), service.RegisterInput{
		FullName: req.FullName,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusCreated, user.Sanitized(), "user registered successfully")
}

// Login godoc
//
//	@Summary		Log in with a password
//	@Description	Verifies the credentials, rotates the refresh slot and sets the session cookies.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LoginRequest	true	"email or username, password"
//	@Success		200		{object}	httpx.Success	"data: user, accessToken, refreshToken"
//	@Failure		400		{object}	httpx.Failure
//	@Failure		401		{object}	httpx.Failure	"invalid user credentials"
//	@Failure		429		{object}	httpx.Failure
//	@Router			/v1/users/login [post].
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	sess, err := h.Users.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSession(w, h.Cookies, sess, "user logged in successfully")
}

// Logout godoc
//
//	@Summary		Log out
//	@Description	Clears the stored refresh token and both session cookies. Every refresh token issued so far stops working.
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	httpx.Success
//	@Failure		401	{object}	httpx.Failure
//	@Router			/v1/users/logout [post].
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		httpx.WriteFailure(w, http.StatusUnauthorized, "unauthorized request", nil)
		return
	}

	if err := h.Sessions.Logout(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}

	h.Cookies.ClearSession(w)
	httpx.WriteSuccess(w, http.StatusOK, struct{}{}, "user logged out successfully")
}

// Refresh godoc
//
//	@Summary		Rotate the session
//	@Description	Exchanges the current refresh token (cookie, or body field refreshToken) for a new pair.
//	@Description	A refresh token that has already been rotated or logged out is rejected.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RefreshRequest	false	"refreshToken, when not sent as a cookie"
//	@Success		200		{object}	httpx.Success	"data: accessToken, refreshToken"
//	@Failure		401		{object}	httpx.Failure	"refresh token is expired or used"
//	@Router			/v1/users/refresh-token [post].
func (h *UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := ""
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		raw = c.Value
	}
	if raw == "" {
		var req RefreshRequest
		if err := httpx.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
			writeBadRequest(w, err.Error())
			return
		}
		raw = req.RefreshToken
	}

	sess, err := h.Sessions.Refresh(r.Context(), raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.Cookies.SetSession(w, sess.Tokens)
	httpx.WriteSuccess(w, http.StatusOK, SessionResponse{
		AccessToken:  sess.Tokens.AccessToken,
		RefreshToken: sess.Tokens.RefreshToken,
	}, "access token refreshed")
}

// Me godoc
//
//	@Summary		Current user
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	httpx.Success	"data: user"
//	@Failure		401	{object}	httpx.Failure
//	@Router			/v1/users/me [get].
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		httpx.WriteFailure(w, http.StatusUnauthorized, "unauthorized request", nil)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, user.Sanitized(), "current user fetched successfully")
}

func writeSession(w http.ResponseWriter, cookies CookieConfig, sess domain.Session, message string) {
	cookies.SetSession(w, sess.Tokens)
	user := sess.User.Sanitized()
	httpx.WriteSuccess(w, http.StatusOK, SessionResponse{
		User:         &user,
		AccessToken:  sess.Tokens.AccessToken,
		RefreshToken: sess.Tokens.RefreshToken,
	}, message)
}
