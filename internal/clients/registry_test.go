package clients

import (
	"testing"

	"github.com/notelab/notelab/backend/idp-service/internal/config"
)

func testRegistry() *Registry {
	return NewRegistry([]config.OAuthClient{
		{ID: "taskapp", Name: "Tasks", RedirectURIs: []string{"https://a.example/callback"}},
		{ID: "docsapp", Name: "Docs", RedirectURIs: []string{"http://localhost:3002/callback", "http://localhost:3002/alt"}},
	})
}

func TestLookup(t *testing.T) {
	r := testRegistry()
	if c := r.Lookup("taskapp"); c == nil || c.Name != "Tasks" {
		t.Fatalf("lookup taskapp: %+v", c)
	}
	if c := r.Lookup("unknown"); c != nil {
		t.Fatalf("unknown client must resolve to nil")
	}
	if c := r.Lookup(""); c != nil {
		t.Fatalf("empty id must resolve to nil")
	}
}

func TestRedirectURIExactMatchOnly(t *testing.T) {
	c := testRegistry().Lookup("taskapp")

	if !c.RedirectURIAllowed("https://a.example/callback") {
		t.Fatalf("registered uri must be allowed")
	}
	for _, uri := range []string{
		"https://a.example/callback/",
		"https://a.example/callback?x=1",
		"https://a.example/callback#f",
		"https://a.example/callbac",
		"https://a.example/",
		"HTTPS://A.EXAMPLE/CALLBACK",
		"",
	} {
		if c.RedirectURIAllowed(uri) {
			t.Fatalf("uri %q must be rejected, exact match only", uri)
		}
	}
}

func TestMultipleRedirectURIs(t *testing.T) {
	c := testRegistry().Lookup("docsapp")
	if !c.RedirectURIAllowed("http://localhost:3002/alt") {
		t.Fatalf("every registered uri must be allowed")
	}
}
