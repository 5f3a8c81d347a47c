package federation

import (
	"context"
	"errors"

	"github.com/notelab/notelab/backend/idp-service/internal/authcodes"
	"github.com/notelab/notelab/backend/idp-service/internal/models"
	"github.com/notelab/notelab/backend/idp-service/internal/sessions"
	"github.com/notelab/notelab/backend/idp-service/internal/users"
	"github.com/notelab/notelab/backend/idp-service/pkg/logger"
)

// Bridge completes a federated login: it runs the upstream round trips
// first, then writes local state. No database write happens before the
// upstream HTTP calls have finished, so nothing is held open across the
// network.
type Bridge struct {
	provider   *Provider
	users      *users.Service
	identities IdentityRepository
	sessions   *sessions.Service
	codes      *authcodes.Service
}

func NewBridge(p *Provider, u *users.Service, ids IdentityRepository, s *sessions.Service, c *authcodes.Service) *Bridge {
	return &Bridge{provider: p, users: u, identities: ids, sessions: s, codes: c}
}

// Result carries the local session and authorization code minted for the
// original local client request.
type Result struct {
	SessionID string
	Code      *authcodes.Code
}

// Complete exchanges the upstream code, resolves the local user and
// identity link, opens a session and mints the local authorization code
// bound to the request captured in the state blob.
func (b *Bridge) Complete(ctx context.Context, upstreamCode string, st *State) (*Result, error) {
	tok, err := b.provider.Exchange(ctx, upstreamCode, st.UpstreamVerifier)
	if err != nil {
		return nil, err
	}
	profile, err := b.provider.UserInfo(ctx, tok)
	if err != nil {
		return nil, err
	}

	user, err := b.resolveUser(ctx, profile)
	if err != nil {
		return nil, err
	}

	sessionID, err := b.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	code, err := b.codes.Issue(ctx, authcodes.Issuance{
		ClientID:            st.ClientID,
		UserID:              user.ID,
		RedirectURI:         st.RedirectURI,
		CodeChallenge:       st.CodeChallenge,
		CodeChallengeMethod: st.CodeChallengeMethod,
		Scope:               st.Scope,
		Nonce:               st.Nonce,
	})
	if err != nil {
		return nil, err
	}
	return &Result{SessionID: sessionID, Code: code}, nil
}

// resolveUser finds or creates the local user and its identity link. The
// (provider, subject) pair is unique: repeated logins by the same upstream
// identity reuse the existing link, and a losing racer on first login
// re-reads the winner's link.
func (b *Bridge) resolveUser(ctx context.Context, profile *Profile) (*models.User, error) {
	link, err := b.identities.Get(ctx, b.provider.Name(), profile.Subject)
	if err != nil {
		return nil, err
	}
	if link != nil {
		u, err := b.users.GetByID(ctx, link.UserID)
		if err != nil {
			return nil, err
		}
		if u != nil {
			return u, nil
		}
		logger.Warnf("federated link %s/%s points at missing user %s; re-provisioning", link.Provider, link.Subject, link.UserID)
	}

	user, err := b.users.GetOrCreateFederated(ctx, profile.Email, profile.Name)
	if err != nil {
		return nil, err
	}

	if link == nil {
		err = b.identities.Create(ctx, &models.FederatedIdentity{
			Provider: b.provider.Name(),
			Subject:  profile.Subject,
			UserID:   user.ID,
			Email:    profile.Email,
		})
		if err != nil && !errors.Is(err, ErrLinkExists) {
			return nil, err
		}
	}
	return user, nil
}
