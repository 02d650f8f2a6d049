package handler

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/daryonoff/postboard/internal/apperror"
	"github.com/daryonoff/postboard/internal/auth"
	"github.com/daryonoff/postboard/internal/config"
	"github.com/daryonoff/postboard/internal/model"
	"github.com/daryonoff/postboard/internal/service"
	"github.com/daryonoff/postboard/internal/vkid"
)

// stateCookieName holds the CSRF state between redirect and callback when
// the cookie state mode is active.
const stateCookieName = "oauth_state"

// OAuthProvider is what the handler needs from a provider adapter. Declared
// on the consumer side so tests can substitute a fake without spinning up
// HTTP stubs for VK.
type OAuthProvider interface {
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken, hintedID string) (*vkid.Profile, error)
}

// OAuthHandler orchestrates the two-legged OAuth flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRedirect → send the browser to the provider's authorization page
//   - HandleCallback → turn the provider's callback into a logged-in session
//
// The callback is deliberately linear: provider error → state check → obtain
// access token → fetch profile → resolve account → issue session. The first
// failing step answers the request; no later step runs after a failure.
type OAuthHandler struct {
	provider OAuthProvider
	auth     *service.AuthService
	state    *auth.StateService // nil unless state mode is "stateless"
	cfg      config.Config
	logger   *slog.Logger
}

// NewOAuthHandler creates an OAuthHandler. state may be nil when the cookie
// state mode is configured.
func NewOAuthHandler(
	provider OAuthProvider,
	authSvc *service.AuthService,
	state *auth.StateService,
	cfg config.Config,
	logger *slog.Logger,
) *OAuthHandler {
	return &OAuthHandler{
		provider: provider,
		auth:     authSvc,
		state:    state,
		cfg:      cfg,
		logger:   logger,
	}
}

// checkProvider rejects every provider segment except "vkid". Unknown
// providers are a 404, not a 400: the route itself doesn't exist.
func checkProvider(r *http.Request) error {
	if p := chi.URLParam(r, "provider"); p != model.ProviderVKID {
		return apperror.UnsupportedProvider(p)
	}
	return nil
}

// HandleRedirect starts the OAuth flow.
//
// HTTP: GET /api/v1/auth/{provider}/redirect
//
// CSRF PROTECTION VIA STATE:
// In stateless mode the state is a short-lived signed token, so the callback
// can verify it without any server-side storage — this survives the browser
// switching devices mid-flow (VK's app-to-app handoff). In cookie mode the
// state is a random nonce held in a short-lived HttpOnly cookie, matched on
// callback.
func (h *OAuthHandler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	if err := checkProvider(r); err != nil {
		writeError(w, err)
		return
	}

	var state string
	if h.cfg.StateMode == config.StateModeStateless {
		signed, err := h.state.Issue()
		if err != nil {
			h.logger.Error("oauth redirect: issuing state failed", slog.String("error", err.Error()))
			writeError(w, err)
			return
		}
		state = signed
	} else {
		state = xid.New().String()
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookieName,
			Value:    state,
			Path:     "/",
			MaxAge:   600, // 10 minutes
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	http.Redirect(w, r, h.provider.AuthorizationURL(state), http.StatusFound)
}

// HandleCallback completes the OAuth flow.
//
// HTTP: GET /api/v1/auth/{provider}/callback
//
// FLOW:
//  1. Provider-reported error (user hit "deny") short-circuits everything —
//     even a missing state, because there is no session to protect.
//  2. Verify the state parameter per the configured mode.
//  3. Obtain an access token: exchange ?code, or accept ?access_token
//     directly (VK's mobile SDK hands the token to the app, which forwards
//     it here with a ?user_id hint).
//  4. Fetch the profile and resolve it onto a local account.
//  5. Issue a session token and answer per the configured response mode.
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if err := checkProvider(r); err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()

	// --- Step 1: provider-reported error ---
	if errCode := q.Get("error"); errCode != "" {
		h.logger.Info("oauth callback: provider reported error",
			slog.String("error", errCode),
			slog.String("description", q.Get("error_description")))
		h.fail(w, r, apperror.ProviderDenied(errCode, q.Get("error_description")))
		return
	}

	// --- Step 2: state verification ---
	if err := h.verifyState(w, r); err != nil {
		h.fail(w, r, err)
		return
	}

	// --- Step 3: obtain an access token ---
	accessToken, hintedID, err := h.obtainToken(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// --- Step 4: profile + account resolution ---
	profile, err := h.provider.FetchProfile(r.Context(), accessToken, hintedID)
	if err != nil {
		h.logger.Error("oauth callback: profile fetch failed", slog.String("error", err.Error()))
		h.fail(w, r, apperror.ProfileFetchFailed(err))
		return
	}

	result, err := h.auth.LoginExternal(r.Context(), profile, model.ProviderVKID)
	if err != nil {
		h.logger.Error("oauth callback: account resolution failed", slog.String("error", err.Error()))
		h.fail(w, r, err)
		return
	}

	// --- Step 5: answer ---
	if h.cfg.ResponseMode == config.ResponseModeRedirect {
		h.redirectToFrontend(w, r, result.Token, "")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		Message: "logged in",
		User:    result.User,
		Token:   result.Token,
	})
}

// verifyState checks the callback's state parameter per the configured mode.
//
// In stateless mode an absent state is accepted: the signed state proves the
// flow started here when it is present, but VK's app-to-app flow sometimes
// drops the parameter entirely and there is no cookie to fall back on.
func (h *OAuthHandler) verifyState(w http.ResponseWriter, r *http.Request) error {
	state := r.URL.Query().Get("state")

	if h.cfg.StateMode == config.StateModeStateless {
		if state == "" {
			return nil
		}
		if err := h.state.Verify(state); err != nil {
			h.logger.Warn("oauth callback: state rejected", slog.String("error", err.Error()))
			return apperror.ValidationFailed("state", "invalid OAuth state")
		}
		return nil
	}

	// Cookie mode: the state must match the nonce set at redirect time.
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || state != cookie.Value {
		h.logger.Warn("oauth callback: state cookie mismatch")
		return apperror.ValidationFailed("state", "invalid OAuth state")
	}

	// Single-use: clear the cookie.
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})
	return nil
}

// obtainToken turns callback query parameters into a provider access token.
func (h *OAuthHandler) obtainToken(r *http.Request) (accessToken, hintedID string, err error) {
	q := r.URL.Query()

	if code := q.Get("code"); code != "" {
		token, err := h.provider.ExchangeCode(r.Context(), code)
		if err != nil {
			h.logger.Error("oauth callback: code exchange failed", slog.String("error", err.Error()))
			return "", "", apperror.TokenExchangeFailed(err)
		}
		return token, "", nil
	}

	// No code: the client may hand us a ready access token plus the user id
	// it belongs to, so the profile fetch has a fallback identity.
	if token := q.Get("access_token"); token != "" {
		return token, q.Get("user_id"), nil
	}

	return "", "", apperror.MissingAuthData("callback carried neither a code nor an access token")
}

// fail answers a flow failure per the configured response mode.
func (h *OAuthHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.cfg.ResponseMode == config.ResponseModeRedirect {
		h.redirectToFrontend(w, r, "", clientMessage(err))
		return
	}

	if h.cfg.Debug {
		// Surface the upstream detail during development. The wrapped cause
		// carries VK's actual error payload. The status stays whatever the
		// error would normally map to.
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			status, errorType := classify(err)
			writeJSON(w, status, ErrorResponse{
				Error:   errorType,
				Message: err.Error(),
				Field:   appErr.Field,
			})
			return
		}
	}
	writeError(w, err)
}

// clientMessage extracts the safe, client-facing message from a flow error.
func clientMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "authentication failed"
}

// frontendPage is the interstitial served in redirect response mode. The
// token travels in the URL fragment, which browsers never send to servers —
// it exists only for the frontend script that picks it up.
var frontendPage = template.Must(template.New("oauth").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="0;url={{.URL}}">
<title>Signing in…</title>
</head>
<body>
<script>window.location.replace({{.URL}});</script>
<p>Redirecting… <a href="{{.URL}}">Continue</a></p>
</body>
</html>
`))

// redirectToFrontend hands the flow result to the frontend. Exactly one of
// token and errMsg is non-empty.
func (h *OAuthHandler) redirectToFrontend(w http.ResponseWriter, r *http.Request, token, errMsg string) {
	fragment := url.Values{}
	if token != "" {
		fragment.Set("token", token)
	} else {
		fragment.Set("error", errMsg)
	}
	dest := h.cfg.FrontendURL + "/auth/callback#" + fragment.Encode()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := frontendPage.Execute(w, struct{ URL string }{URL: dest}); err != nil {
		h.logger.Error("oauth callback: rendering redirect page failed", slog.String("error", err.Error()))
	}
}
