package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/daryonoff/postboard/internal/apperror"
	"github.com/daryonoff/postboard/internal/model"
	"github.com/daryonoff/postboard/internal/vkid"
)

// Account resolution: mapping an external profile onto exactly one local
// user. This is the only place that decides whether an OAuth login finds,
// links, or creates an account.
//
// The order of lookups matters:
//
//  1. provider identity — a returning OAuth user; refresh mutable fields.
//  2. email — an account that exists through another channel (password
//     registration) with the same email; link the external identity to it.
//  3. neither — create a fresh OAuth-only account.
//
// Linking is an irreversible merge: the pre-existing account becomes
// permanently associated with the external identity. Only one external
// identity is ever stored; a later link with a different provider overwrites
// the fields ("last link wins" — a deliberate single-provider
// simplification, recorded in DESIGN.md).

// fallbackDisplayName is used when the provider supplies no usable name
// (synthetic hinted-id profiles, privacy-restricted accounts).
const fallbackDisplayName = "VK User"

// placeholderEmail derives a deterministic stand-in email for profiles
// without one, e.g. "vkid_123@vkid.local". Stable across logins with the
// same external id, so repeated logins hit the same row; the .local TLD can
// never collide with a real address.
func placeholderEmail(provider, externalID string) string {
	return fmt.Sprintf("%s_%s@%s.local", provider, externalID, provider)
}

// ResolveExternal finds, links, or creates the local user for an external
// profile. It never returns two different users for the same
// (provider, externalID) and never creates a duplicate email row — the
// store's UNIQUE constraints backstop the concurrent case, and a create
// conflict is handled by re-reading the winner.
func (s *AuthService) ResolveExternal(ctx context.Context, profile *vkid.Profile, provider string) (*model.User, error) {
	if profile == nil || profile.ExternalID == "" {
		return nil, fmt.Errorf("service/auth: external profile must carry an id")
	}

	// 1. Returning OAuth user?
	user, err := s.users.GetByProviderID(ctx, provider, profile.ExternalID)
	if err == nil {
		return s.refreshFromProfile(ctx, user, profile)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up provider identity: %w", err)
	}

	email := profile.Email
	if email == "" {
		email = placeholderEmail(provider, profile.ExternalID)
	}

	// 2. Existing account under the same email via another channel?
	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.Provider != provider:
		return s.linkIdentity(ctx, existing, profile, provider)
	case err == nil:
		// Same provider tag but a different external id owns this email —
		// step 1 would have found it otherwise. Only reachable when VK
		// reports one real email for two VK accounts; refuse rather than
		// silently merging distinct identities.
		return nil, &apperror.AppError{
			Err:     apperror.ErrConflict,
			Message: "email already belongs to a different external identity",
			Field:   "email",
		}
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	// 3. First login ever — create an OAuth-only account.
	name := profile.DisplayName()
	if name == "" {
		name = fallbackDisplayName
	}
	user = &model.User{
		Name:       name,
		Email:      email,
		Provider:   provider,
		ProviderID: profile.ExternalID,
		AvatarURL:  profile.AvatarURL,
		// PasswordHash stays empty: this account can never password-login.
	}

	err = s.users.Create(ctx, user)
	if err == nil {
		s.logger.Info("created user from external profile",
			slog.String("userID", user.ID),
			slog.String("provider", provider),
			slog.String("externalID", profile.ExternalID))
		return user, nil
	}

	if errors.Is(err, apperror.ErrConflict) {
		// A concurrent callback for the same identity (duplicate browser
		// tab, double click) created the row between our lookup and our
		// insert. The other request won; use its row.
		winner, rerr := s.users.GetByProviderID(ctx, provider, profile.ExternalID)
		if rerr == nil {
			s.logger.Info("lost create race to concurrent callback, reusing existing user",
				slog.String("userID", winner.ID),
				slog.String("externalID", profile.ExternalID))
			return s.refreshFromProfile(ctx, winner, profile)
		}
		// Conflict but not on the provider identity — e.g. an email race.
		return nil, fmt.Errorf("service/auth: creating user after conflict: %w", err)
	}

	return nil, fmt.Errorf("service/auth: creating user: %w", err)
}

// linkIdentity attaches the external identity to a pre-existing account
// found by email. Name and password are left alone — the user chose those;
// the avatar is adopted only if the account has none.
func (s *AuthService) linkIdentity(ctx context.Context, user *model.User, profile *vkid.Profile, provider string) (*model.User, error) {
	user.Provider = provider
	user.ProviderID = profile.ExternalID
	if user.AvatarURL == "" && profile.AvatarURL != "" {
		user.AvatarURL = profile.AvatarURL
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			// The identity got linked elsewhere concurrently; defer to
			// that row.
			winner, rerr := s.users.GetByProviderID(ctx, provider, profile.ExternalID)
			if rerr == nil {
				return s.refreshFromProfile(ctx, winner, profile)
			}
		}
		return nil, fmt.Errorf("service/auth: linking identity to user %s: %w", user.ID, err)
	}

	s.logger.Info("linked external identity to existing account",
		slog.String("userID", user.ID),
		slog.String("provider", provider),
		slog.String("externalID", profile.ExternalID))
	return user, nil
}

// refreshFromProfile is the update path for a known user: mutable fields are
// refreshed from the incoming profile, but only when the incoming value is
// non-empty — a degraded profile (hinted-id fallback, hidden fields) must
// never erase data we already have.
func (s *AuthService) refreshFromProfile(ctx context.Context, user *model.User, profile *vkid.Profile) (*model.User, error) {
	changed := false

	if name := profile.DisplayName(); name != "" && name != user.Name {
		user.Name = name
		changed = true
	}
	if profile.AvatarURL != "" && profile.AvatarURL != user.AvatarURL {
		user.AvatarURL = profile.AvatarURL
		changed = true
	}

	if !changed {
		return user, nil
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: refreshing user %s: %w", user.ID, err)
	}
	return user, nil
}
