package identity_test

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kaiyote/envoycfgd/internal/identity"
)

func TestEndpointIsDeterministic(t *testing.T) {
	a := identity.Endpoint("18080", "/")
	b := identity.Endpoint("18080", "/")
	require.Equal(t, a, b)
	require.Len(t, a, 32)
}

func TestEndpointMatchesExpectedDigest(t *testing.T) {
	sum := md5.Sum([]byte("18080" + "/" + "\n")) //nolint:gosec
	want := hex.EncodeToString(sum[:])
	require.Equal(t, want, identity.Endpoint("18080", "/"))
}

func TestEndpointDistinguishesPrefix(t *testing.T) {
	require.NotEqual(t, identity.Endpoint("18080", "/a"), identity.Endpoint("18080", "/b"))
}

func TestServerIsDeterministic(t *testing.T) {
	a := identity.Server("10.0.0.1", 8080)
	b := identity.Server("10.0.0.1", 8080)
	require.Equal(t, a, b)
	require.Len(t, a, 32)
}

func TestServerDistinguishesPort(t *testing.T) {
	require.NotEqual(t, identity.Server("10.0.0.1", 8080), identity.Server("10.0.0.1", 8081))
}
