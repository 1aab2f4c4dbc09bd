package http

import (
	"net/http"

	"github.com/coinpulse/coinpulse/internal/api/domain"
	"github.com/coinpulse/coinpulse/internal/api/service"
)

type FederatedHandler struct {
	Federated         *service.FederatedService
	Cookies           CookieConfig
	PostLoginRedirect string
}

// Begin godoc
//
//	@Summary		Start federated sign-in
//	@Description	Stores a single-use state and nonce and redirects to the identity provider.
//	@Description	method=register additionally requests offline access and forced consent.
//	@Tags			Federated
//	@Param			provider	path		string			true	"identity provider, e.g. google"
//	@Param			method		query		string			false	"login (default) or register"
//	@Success		302
//	@Failure		400			{object}	httpx.Failure	"unsupported provider or method"
//	@Router			/v1/auth/{provider} [get].
func (h *FederatedHandler) Begin(w http.ResponseWriter, r *http.Request) {
	method := domain.FlowMethod(r.URL.Query().Get("method"))

	target, err := h.Federated.Begin(r.Context(), r.PathValue("provider"), method)
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// Callback godoc
//
//	@Summary		Complete federated sign-in
//	@Description	Consumes the state, exchanges the code, verifies the ID token and its nonce, then opens a session.
//	@Tags			Federated
//	@Produce		json
//	@Param			provider	path		string			true	"identity provider"
//	@Param			code		query		string			true	"authorization code"
//	@Param			state		query		string			true	"state issued by the start endpoint"
//	@Success		200			{object}	httpx.Success	"data: user, accessToken, refreshToken"
//	@Success		302			"when a post-login redirect is configured"
//	@Failure		400			{object}	httpx.Failure	"missing, invalid or expired state or nonce"
//	@Failure		401			{object}	httpx.Failure	"invalid identity token or no linked account"
//	@Failure		502			{object}	httpx.Failure	"identity provider failure"
//	@Router			/v1/auth/{provider}/callback [get].
func (h *FederatedHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sess, err := h.Federated.Complete(r.Context(), r.PathValue("provider"), q.Get("code"), q.Get("state"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.PostLoginRedirect != "" {
		h.Cookies.SetSession(w, sess.Tokens)
		http.Redirect(w, r, h.PostLoginRedirect, http.StatusFound)
		return
	}
	writeSession(w, h.Cookies, sess, "user logged in successfully")
}
