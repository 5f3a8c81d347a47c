package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiscoveryDocument(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/.well-known/openid-configuration")
	require.Equal(t, http.StatusOK, w.Code)

	doc := decodeJSON(t, w)
	require.Equal(t, "http://localhost:5002", doc["issuer"])
	require.Equal(t, "http://localhost:5002/authorize", doc["authorization_endpoint"])
	require.Equal(t, "http://localhost:5002/token", doc["token_endpoint"])
	require.Equal(t, "http://localhost:5002/userinfo", doc["userinfo_endpoint"])

	require.Equal(t, []interface{}{"code"}, doc["response_types_supported"])
	require.Equal(t, []interface{}{"S256"}, doc["code_challenge_methods_supported"])
	require.Equal(t, []interface{}{"authorization_code", "refresh_token"}, doc["grant_types_supported"])
	require.Equal(t, []interface{}{"HS256"}, doc["id_token_signing_alg_values_supported"])
}

func TestDiscoveryIssuerTrailingSlashTrimmed(t *testing.T) {
	h := NewDiscoveryHandler("http://idp.example.com/")
	require.Equal(t, "http://idp.example.com", h.issuer)
}
