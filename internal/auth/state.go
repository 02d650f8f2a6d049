package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

// Signed OAuth state.
//
// The state parameter exists to prove that the callback hitting us was
// started by us — otherwise an attacker could splice their own authorization
// code into a victim's session (login CSRF).
//
// In stateless mode nothing is stored server-side, so the state has to carry
// its own proof: we mint a short-lived HS256-signed token holding a random
// nonce. Any callback presenting a state we can verify (signature intact,
// not expired) was necessarily minted by us within the last few minutes.
// Cookie mode doesn't use this service at all: there the state is a plain
// random nonce held in an HttpOnly cookie and compared verbatim on callback.

// stateTTL bounds one authorization round trip. Long enough for a user to
// read the VK consent screen, short enough to limit replay.
const stateTTL = 10 * time.Minute

const stateIssuer = "postboard"

// StateService mints and verifies anti-forgery state values.
type StateService struct {
	secret []byte
}

// NewStateService creates a StateService. The secret should be at least 32
// bytes of random data in production (OAUTH_STATE_SECRET).
func NewStateService(secret string) (*StateService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: state secret must be at least 16 characters")
	}
	return &StateService{secret: []byte(secret)}, nil
}

// stateClaims is the signed payload. The nonce (JWT ID) makes every state
// unique; the registered expiry bounds the round trip.
type stateClaims struct {
	jwt.RegisteredClaims
}

// Issue mints a fresh signed state value.
func (s *StateService) Issue() (string, error) {
	now := time.Now()
	c := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing state: %w", err)
	}
	return signed, nil
}

// Verify checks that a state value was minted by us and has not expired.
//
// Pinning the algorithm to HS256 (jwt.WithValidMethods) closes the classic
// algorithm-confusion hole where a token signed with "none" slips through.
func (s *StateService) Verify(state string) error {
	token, err := jwt.ParseWithClaims(
		state,
		&stateClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("auth: state expired")
		}
		return fmt.Errorf("auth: invalid state: %w", err)
	}

	c, ok := token.Claims.(*stateClaims)
	if !ok || !token.Valid || c.ID == "" {
		return fmt.Errorf("auth: invalid state claims")
	}
	return nil
}
