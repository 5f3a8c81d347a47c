package clients

import (
	"github.com/notelab/notelab/backend/idp-service/internal/config"
)

// Client is a registered relying party. These public clients authenticate
// with PKCE only; the secret is stored but not enforced at the token
// endpoint.
type Client struct {
	ID           string
	Secret       string
	Name         string
	RedirectURIs []string
}

// RedirectURIAllowed reports whether uri is an exact member of the
// registered set. No prefix or wildcard matching: a trailing slash or an
// extra query parameter is a different URI and gets rejected.
func (c *Client) RedirectURIAllowed(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// Registry holds the statically seeded client set. Clients are not created
// by runtime flows.
type Registry struct {
	clients map[string]*Client
}

func NewRegistry(seed []config.OAuthClient) *Registry {
	r := &Registry{clients: make(map[string]*Client, len(seed))}
	for _, c := range seed {
		uris := make([]string, len(c.RedirectURIs))
		copy(uris, c.RedirectURIs)
		r.clients[c.ID] = &Client{
			ID:           c.ID,
			Secret:       c.Secret,
			Name:         c.Name,
			RedirectURIs: uris,
		}
	}
	return r
}

// Lookup returns the client or nil when unknown.
func (r *Registry) Lookup(id string) *Client {
	if id == "" {
		return nil
	}
	return r.clients[id]
}
