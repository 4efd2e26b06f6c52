package testutil

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"testing"

	"outweb/lib/backends"
	"outweb/lib/telemetry"
)

// SetupBackend serves handler on a test server and builds a backend of module
// against it, the way a config would. The server url is given as the "url"
// param unless params sets it.
func SetupBackend[B any](t testing.TB, module backends.Module, name string, handler http.Handler, params map[string]string) (B, *httptest.Server) {
	t.Helper()
	cleanup := telemetry.SetupForTesting(fmt.Sprintf("test:%s", module.Name))
	t.Cleanup(cleanup)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	given := map[string]string{"url": server.URL}
	maps.Copy(given, params)
	resolved, err := module.ResolveParams(given)
	if err != nil {
		t.Fatal(err)
	}

	impl, err := module.New(context.Background(), backends.Env{
		Name:   name,
		Params: resolved,
	})
	if err != nil {
		t.Fatal(err)
	}
	backend, ok := impl.(B)
	if !ok {
		t.Fatalf("module %s built a %T", module.Name, impl)
	}
	return backend, server
}
