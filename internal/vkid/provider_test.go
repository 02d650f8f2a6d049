package vkid

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestProvider points every VK endpoint at the given test server.
func newTestProvider(srv *httptest.Server) *Provider {
	p := New("client-id", "client-secret", "http://localhost:8080/api/v1/auth/vkid/callback", testLogger())
	p.oauth.Endpoint.AuthURL = srv.URL + "/oauth/authorize"
	p.oauth.Endpoint.TokenURL = srv.URL + "/oauth/token"
	p.userInfoURL = srv.URL + "/oauth/user_info"
	p.apiBase = srv.URL
	return p
}

// =========================================================================
// AuthorizationURL
// =========================================================================

func TestAuthorizationURL_ContainsRequiredParameters(t *testing.T) {
	p := New("client-id", "client-secret", "http://localhost:8080/cb", testLogger())

	raw := p.AuthorizationURL("state-123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthorizationURL returned unparseable URL: %v", err)
	}

	q := u.Query()
	if got := q.Get("response_type"); got != "code" {
		t.Errorf("response_type = %q, want %q", got, "code")
	}
	if got := q.Get("scope"); got != "openid email" {
		t.Errorf("scope = %q, want %q (VK requires the space-joined form)", got, "openid email")
	}
	if got := q.Get("client_id"); got != "client-id" {
		t.Errorf("client_id = %q, want %q", got, "client-id")
	}
	if got := q.Get("redirect_uri"); got != "http://localhost:8080/cb" {
		t.Errorf("redirect_uri = %q", got)
	}
	if got := q.Get("state"); got != "state-123" {
		t.Errorf("state = %q, want %q", got, "state-123")
	}
}

// =========================================================================
// ExchangeCode
// =========================================================================

func TestExchangeCode_CanonicalField(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = r.ParseForm()
		gotForm = r.PostForm
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-abc"})
	}))
	defer srv.Close()

	p := newTestProvider(srv)
	token, err := p.ExchangeCode(context.Background(), "the-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if token != "tok-abc" {
		t.Errorf("token = %q, want %q", token, "tok-abc")
	}

	if gotForm.Get("grant_type") != "authorization_code" {
		t.Errorf("grant_type = %q, want authorization_code", gotForm.Get("grant_type"))
	}
	if gotForm.Get("code") != "the-code" {
		t.Errorf("code = %q", gotForm.Get("code"))
	}
	if gotForm.Get("client_secret") != "client-secret" {
		t.Errorf("client_secret not sent")
	}
	if gotForm.Get("redirect_uri") == "" {
		t.Error("redirect_uri not sent")
	}
}

func TestExchangeCode_AliasTokenField(t *testing.T) {
	// VK ID sometimes returns the bearer token as "token" instead of
	// "access_token". The adapter must normalize.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-alias"})
	}))
	defer srv.Close()

	token, err := newTestProvider(srv).ExchangeCode(context.Background(), "c")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if token != "tok-alias" {
		t.Errorf("token = %q, want %q", token, "tok-alias")
	}
}

func TestExchangeCode_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "code expired",
		})
	}))
	defer srv.Close()

	_, err := newTestProvider(srv).ExchangeCode(context.Background(), "stale")
	if err == nil {
		t.Fatal("ExchangeCode() should fail on a provider error payload")
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error should be a *ProviderError, got %T: %v", err, err)
	}
	if pe.Code != "invalid_grant" || pe.Message != "code expired" {
		t.Errorf("ProviderError = %+v", pe)
	}
}

func TestExchangeCode_NonSuccessStatusWithoutPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestProvider(srv).ExchangeCode(context.Background(), "c")
	if err == nil {
		t.Fatal("ExchangeCode() should fail on a non-2xx status")
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		t.Error("a bare 502 is a transport-ish failure, not a ProviderError")
	}
}

func TestExchangeCode_MissingTokenField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"token_type": "bearer"})
	}))
	defer srv.Close()

	if _, err := newTestProvider(srv).ExchangeCode(context.Background(), "c"); err == nil {
		t.Fatal("ExchangeCode() should fail when no token field is present")
	}
}

func TestExchangeCode_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	p := newTestProvider(srv)
	srv.Close() // connection refused from here on

	_, err := p.ExchangeCode(context.Background(), "c")
	if err == nil {
		t.Fatal("ExchangeCode() should surface transport errors")
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		t.Error("a refused connection must not look like a ProviderError")
	}
}

// =========================================================================
// FetchProfile
// =========================================================================

// vkStub builds a test server with controllable userinfo and users.get
// behaviour.
type vkStub struct {
	userinfo func(w http.ResponseWriter, r *http.Request)
	usersGet func(w http.ResponseWriter, r *http.Request)
}

func (s *vkStub) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/user_info", s.userinfo)
	mux.HandleFunc("/method/users.get", s.usersGet)
	return httptest.NewServer(mux)
}

func serve404(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }

func TestFetchProfile_UserInfoWithEnrichment(t *testing.T) {
	stub := &vkStub{
		userinfo: func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("userinfo Authorization = %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"sub":         "123",
				"given_name":  "Anna",
				"family_name": "K",
				"email":       "anna@example.com",
				"picture":     "https://pics/openid.jpg",
			})
		},
		usersGet: func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("v"); got != "5.199" {
				t.Errorf("users.get v = %q, want 5.199", got)
			}
			if got := r.URL.Query().Get("user_ids"); got != "123" {
				t.Errorf("users.get user_ids = %q, want 123", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"response": []map[string]any{{
					"id":          123,
					"first_name":  "Anna",
					"last_name":   "", // must NOT erase the userinfo value
					"screen_name": "anna_k",
					"photo_200":   "https://pics/photo200.jpg",
				}},
			})
		},
	}
	srv := stub.server()
	defer srv.Close()

	profile, err := newTestProvider(srv).FetchProfile(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}

	if profile.ExternalID != "123" {
		t.Errorf("ExternalID = %q, want 123", profile.ExternalID)
	}
	if profile.LastName != "K" {
		t.Errorf("LastName = %q — empty enrichment value overwrote userinfo data", profile.LastName)
	}
	if profile.ScreenName != "anna_k" {
		t.Errorf("ScreenName = %q — enrichment did not merge", profile.ScreenName)
	}
	if profile.AvatarURL != "https://pics/photo200.jpg" {
		t.Errorf("AvatarURL = %q — non-empty enrichment value should win", profile.AvatarURL)
	}
	if profile.Email != "anna@example.com" {
		t.Errorf("Email = %q", profile.Email)
	}
	if profile.DisplayName() != "Anna K" {
		t.Errorf("DisplayName() = %q, want %q", profile.DisplayName(), "Anna K")
	}
}

func TestFetchProfile_EnrichmentFailureIsNotFatal(t *testing.T) {
	stub := &vkStub{
		userinfo: func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"sub": "9", "given_name": "Lone"})
		},
		usersGet: serve404,
	}
	srv := stub.server()
	defer srv.Close()

	profile, err := newTestProvider(srv).FetchProfile(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	if profile.ExternalID != "9" || profile.FirstName != "Lone" {
		t.Errorf("profile = %+v, want the userinfo data untouched", profile)
	}
}

func TestFetchProfile_LegacyFallback(t *testing.T) {
	stub := &vkStub{
		userinfo: serve404,
		usersGet: func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("user_ids"); got != "" {
				t.Errorf("fallback users.get should not pass user_ids, got %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"response": []map[string]any{{
					"id":         456,
					"first_name": "Boris",
					"last_name":  "V",
					"photo_200":  "https://pics/boris.jpg",
				}},
			})
		},
	}
	srv := stub.server()
	defer srv.Close()

	profile, err := newTestProvider(srv).FetchProfile(context.Background(), "sdk-token", "")
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	if profile.ExternalID != "456" {
		t.Errorf("ExternalID = %q, want 456 (numeric id normalized to string)", profile.ExternalID)
	}
	if profile.DisplayName() != "Boris V" {
		t.Errorf("DisplayName() = %q", profile.DisplayName())
	}
	if profile.Email != "" {
		t.Errorf("Email = %q, want empty from the legacy path", profile.Email)
	}
}

func TestFetchProfile_HintedIDFallback(t *testing.T) {
	stub := &vkStub{userinfo: serve404, usersGet: serve404}
	srv := stub.server()
	defer srv.Close()

	profile, err := newTestProvider(srv).FetchProfile(context.Background(), "opaque-sdk-token", "789")
	if err != nil {
		t.Fatalf("FetchProfile() with hinted id should not fail: %v", err)
	}
	if profile.ExternalID != "789" {
		t.Errorf("ExternalID = %q, want the hinted id", profile.ExternalID)
	}
	if profile.Email != "" || profile.AvatarURL != "" {
		t.Errorf("synthetic profile must carry no email/avatar: %+v", profile)
	}
}

func TestFetchProfile_NoProfileNoHint(t *testing.T) {
	stub := &vkStub{userinfo: serve404, usersGet: serve404}
	srv := stub.server()
	defer srv.Close()

	if _, err := newTestProvider(srv).FetchProfile(context.Background(), "tok", ""); err == nil {
		t.Fatal("FetchProfile() should fail when every path is exhausted")
	}
}

func TestFetchProfile_LegacyStructuredError(t *testing.T) {
	stub := &vkStub{
		userinfo: serve404,
		usersGet: func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"error_code": 5, "error_msg": "User authorization failed"},
			})
		},
	}
	srv := stub.server()
	defer srv.Close()

	_, err := newTestProvider(srv).FetchProfile(context.Background(), "tok", "")
	if err == nil {
		t.Fatal("FetchProfile() should fail")
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected the VK structured error in the chain, got %v", err)
	}
	if pe.Code != "5" {
		t.Errorf("ProviderError.Code = %q, want %q", pe.Code, "5")
	}
}

// =========================================================================
// helpers
// =========================================================================

func TestScalarString(t *testing.T) {
	if got := scalarString("abc"); got != "abc" {
		t.Errorf("scalarString(string) = %q", got)
	}
	if got := scalarString(json.Number("123")); got != "123" {
		t.Errorf("scalarString(json.Number) = %q", got)
	}
	if got := scalarString(nil); got != "" {
		t.Errorf("scalarString(nil) = %q, want empty", got)
	}
}

func TestDisplayName_Empty(t *testing.T) {
	p := &Profile{ExternalID: "1"}
	if got := p.DisplayName(); got != "" {
		t.Errorf("DisplayName() of a synthetic profile = %q, want empty", got)
	}
}
