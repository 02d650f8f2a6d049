// Package vkid talks to the VK ID identity provider.
//
// VK ID is OAuth 2.1-ish with history. The authorization and token endpoints
// live on id.vk.com and speak OpenID-flavoured OAuth; the legacy profile API
// lives on api.vk.com and speaks the classic VK method protocol. Depending on
// how a token was minted (full authorization-code flow vs the VK client SDK),
// either the OpenID userinfo endpoint or the legacy users.get call may work —
// and VK's error codes don't reliably distinguish "invalid token" from "wrong
// endpoint for this token type". The adapter therefore tries the OpenID path
// first, degrades to the legacy API, and as a last resort accepts an external
// user id hinted by the caller. Every degrade path is logged so the flow
// stays observable.
//
// Nothing in this package decides anything about accounts: it returns
// normalized identity facts (a Profile) and errors, and the service layer
// does the resolving.
package vkid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultAuthBase = "https://id.vk.com"
	defaultAPIBase  = "https://api.vk.com"

	// apiVersion is the legacy VK API version we pin. users.get responses
	// are stable within a version; never call the API unversioned.
	apiVersion = "5.199"

	// requestTimeout bounds every call to VK. One attempt, no retries — a
	// login that takes longer than this is dead anyway.
	requestTimeout = 10 * time.Second

	// maxResponseBytes caps how much of a VK response we read.
	maxResponseBytes = 1 << 20
)

// Profile is the normalized identity record produced by this adapter.
// It is ephemeral — the resolver maps it onto a stored user and discards it.
type Profile struct {
	ExternalID string // VK user id, always as a string
	FirstName  string
	LastName   string
	ScreenName string // VK nickname, may be empty
	Email      string // empty unless the email scope was granted
	AvatarURL  string
}

// DisplayName joins the name parts. It can legitimately be empty (synthetic
// fallback profiles carry only an id); the resolver substitutes its own
// label when creating an account.
func (p *Profile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ProviderError is a structured error reported by VK itself, as opposed to a
// transport failure reaching VK. Callers that care (logging, metrics) can
// pull it out with errors.As; both kinds abort the flow the same way.
type ProviderError struct {
	Code    string // "access_denied", "5", ...
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("vkid: provider error %s", e.Code)
	}
	return fmt.Sprintf("vkid: provider error %s: %s", e.Code, e.Message)
}

// Provider implements the three-call VK ID contract: build the authorization
// URL, exchange a code for an access token, and fetch a profile.
type Provider struct {
	oauth       *oauth2.Config
	client      *http.Client
	userInfoURL string
	apiBase     string
	logger      *slog.Logger
}

// New creates a Provider for the given VK ID application.
//
// redirectURI must match the callback URL registered with VK exactly —
// VK rejects the token exchange otherwise, with an unhelpful error.
func New(clientID, clientSecret, redirectURI string, logger *slog.Logger) *Provider {
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			// VK requires the scope string space-joined ("openid email").
			// oauth2.Config joins Scopes with single spaces, which is
			// exactly the format VK parses; anything else makes VK
			// silently drop scopes instead of erroring.
			Scopes: []string{"openid", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  defaultAuthBase + "/oauth/authorize",
				TokenURL: defaultAuthBase + "/oauth/token",
			},
		},
		client:      &http.Client{Timeout: requestTimeout},
		userInfoURL: defaultAuthBase + "/oauth/user_info",
		apiBase:     defaultAPIBase,
		logger:      logger,
	}
}

// AuthorizationURL returns the URL to send the user's browser to.
// The caller supplies the anti-forgery state; response_type=code and the
// scope string are fixed here.
func (p *Provider) AuthorizationURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// tokenResponse is the shape of VK's token endpoint reply. The bearer token
// historically shows up under either "access_token" (canonical) or "token"
// (VK ID quirk); we accept both.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	Token            string `json:"token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeCode trades an authorization code for an access token.
//
// This is a manual form-encoded POST rather than oauth2.Config.Exchange
// because the x/oauth2 machinery only understands the canonical
// access_token field and would report VK's "token" alias as a missing token.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {p.oauth.ClientID},
		"client_secret": {p.oauth.ClientSecret},
		"redirect_uri":  {p.oauth.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.oauth.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("vkid: building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		// Transport failure (timeout, refused) — distinct from a
		// structured refusal by VK below.
		return "", fmt.Errorf("vkid: token endpoint request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("vkid: reading token response: %w", err)
	}

	var tr tokenResponse
	// A parse failure only matters if we also can't explain the response
	// by its status code, so it is folded into the checks below.
	parseErr := json.Unmarshal(body, &tr)

	if tr.Error != "" {
		return "", &ProviderError{Code: tr.Error, Message: tr.ErrorDescription}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("vkid: token endpoint returned status %d", resp.StatusCode)
	}
	if parseErr != nil {
		return "", fmt.Errorf("vkid: decoding token response: %w", parseErr)
	}

	token := tr.AccessToken
	if token == "" && tr.Token != "" {
		// VK ID alias field. Normalize and note it — if VK ever fixes
		// this, the log line tells us when the alias stopped appearing.
		p.logger.Debug("vkid: token endpoint used alias field 'token'")
		token = tr.Token
	}
	if token == "" {
		return "", fmt.Errorf("vkid: token endpoint response has no access token")
	}

	return token, nil
}

// FetchProfile obtains a normalized profile for the given access token.
//
// Order of attempts:
//  1. OpenID userinfo (works for tokens from the full code flow). On
//     success the result is additionally enriched from the legacy API,
//     without letting empty legacy fields clobber userinfo fields.
//  2. Legacy users.get on its own (works for SDK-minted tokens).
//  3. If both fail and the caller carried an external user id from the
//     client SDK, a minimal synthetic profile with just that id.
//
// Only when all three are unavailable does it return an error.
func (p *Provider) FetchProfile(ctx context.Context, accessToken, hintedID string) (*Profile, error) {
	profile, uiErr := p.fetchUserInfo(ctx, accessToken)
	if uiErr == nil {
		if err := p.enrichFromAPI(ctx, accessToken, profile); err != nil {
			p.logger.Warn("vkid: users.get enrichment failed, keeping userinfo data",
				slog.String("error", err.Error()))
		}
		p.logger.Debug("vkid: profile via openid userinfo", slog.String("externalID", profile.ExternalID))
		return profile, nil
	}
	p.logger.Warn("vkid: userinfo failed, falling back to users.get",
		slog.String("error", uiErr.Error()))

	profile, apiErr := p.fetchFromAPI(ctx, accessToken, "")
	if apiErr == nil {
		p.logger.Debug("vkid: profile via legacy users.get", slog.String("externalID", profile.ExternalID))
		return profile, nil
	}

	if hintedID != "" {
		// Both endpoints refused the token but the client SDK told us who
		// this is. VK's error codes can't tell "bad token" apart from
		// "wrong endpoint for this token type", so a usable id wins over
		// a hard failure. The profile carries nothing but the id.
		p.logger.Warn("vkid: profile endpoints unavailable, using hinted external id",
			slog.String("hintedID", hintedID),
			slog.String("userinfoError", uiErr.Error()),
			slog.String("apiError", apiErr.Error()))
		return &Profile{ExternalID: hintedID}, nil
	}

	return nil, fmt.Errorf("vkid: no profile available (userinfo: %v): %w", uiErr, apiErr)
}

// userInfoResponse is VK's OpenID userinfo shape. sub arrives as a string or
// a number depending on VK's mood, hence the any type.
type userInfoResponse struct {
	Sub        any    `json:"sub"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
	Picture    string `json:"picture"`
}

func (p *Provider) fetchUserInfo(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("vkid: building userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vkid: userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vkid: userinfo returned status %d", resp.StatusCode)
	}

	var ui userInfoResponse
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	dec.UseNumber()
	if err := dec.Decode(&ui); err != nil {
		return nil, fmt.Errorf("vkid: decoding userinfo response: %w", err)
	}

	sub := scalarString(ui.Sub)
	if sub == "" {
		return nil, fmt.Errorf("vkid: userinfo response has no sub")
	}

	return &Profile{
		ExternalID: sub,
		FirstName:  ui.GivenName,
		LastName:   ui.FamilyName,
		Email:      ui.Email,
		AvatarURL:  ui.Picture,
	}, nil
}

// apiUser is one element of a users.get response.
type apiUser struct {
	ID         any    `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	ScreenName string `json:"screen_name"`
	Photo200   string `json:"photo_200"`
}

// apiResponse is the legacy VK envelope: either a response array or a
// structured error, never both.
type apiResponse struct {
	Response []apiUser `json:"response"`
	Error    *struct {
		Code    json.Number `json:"error_code"`
		Message string      `json:"error_msg"`
	} `json:"error"`
}

// fetchFromAPI calls the legacy users.get method. userIDs may be empty, in
// which case VK resolves the token's owner.
func (p *Provider) fetchFromAPI(ctx context.Context, accessToken, userIDs string) (*Profile, error) {
	q := url.Values{
		"access_token": {accessToken},
		"v":            {apiVersion},
		"fields":       {"photo_200,screen_name"},
	}
	if userIDs != "" {
		q.Set("user_ids", userIDs)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.apiBase+"/method/users.get?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("vkid: building users.get request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vkid: users.get request: %w", err)
	}
	defer resp.Body.Close()

	var ar apiResponse
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	dec.UseNumber()
	if err := dec.Decode(&ar); err != nil {
		return nil, fmt.Errorf("vkid: decoding users.get response: %w", err)
	}

	if ar.Error != nil {
		return nil, &ProviderError{Code: ar.Error.Code.String(), Message: ar.Error.Message}
	}
	if len(ar.Response) == 0 {
		return nil, fmt.Errorf("vkid: users.get returned no users")
	}

	u := ar.Response[0]
	id := scalarString(u.ID)
	if id == "" {
		return nil, fmt.Errorf("vkid: users.get returned a user without id")
	}

	return &Profile{
		ExternalID: id,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		ScreenName: u.ScreenName,
		AvatarURL:  u.Photo200,
	}, nil
}

// enrichFromAPI merges legacy API fields into an existing profile. Non-empty
// legacy values win (the legacy API tends to have fresher names and the
// larger photo_200 avatar); empty legacy values never erase userinfo data.
func (p *Provider) enrichFromAPI(ctx context.Context, accessToken string, base *Profile) error {
	extra, err := p.fetchFromAPI(ctx, accessToken, base.ExternalID)
	if err != nil {
		return err
	}

	if extra.FirstName != "" {
		base.FirstName = extra.FirstName
	}
	if extra.LastName != "" {
		base.LastName = extra.LastName
	}
	if extra.ScreenName != "" {
		base.ScreenName = extra.ScreenName
	}
	if extra.AvatarURL != "" {
		base.AvatarURL = extra.AvatarURL
	}
	return nil
}

// scalarString renders a decoded JSON scalar (string or number) as a string.
// Decoders in this package run with UseNumber, so numbers arrive as
// json.Number rather than float64.
func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return ""
	}
}
