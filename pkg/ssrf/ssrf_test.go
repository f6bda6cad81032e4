package ssrf

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

var errLookupFailed = errors.New("lookup failed")

type fixedResolver struct {
	addrs map[string][]net.IPAddr
}

func (f fixedResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	return f.addrs[host], nil
}

func TestValidateRejectsNonHTTPSSchemeByDefault(t *testing.T) {
	guard := New(Config{Enabled: true})
	_, err := guard.ParseAndValidate(context.Background(), "http://api.telegram.org/botX/sendMessage")
	require.Error(t, err)
	violation, ok := err.(*Violation)
	require.True(t, ok)
	require.Equal(t, ReasonBlockedScheme, violation.ReasonCode)
}

func TestValidateAllowsHTTPWhenConfigured(t *testing.T) {
	resolver := fixedResolver{addrs: map[string][]net.IPAddr{
		"example.com": {{IP: net.ParseIP("93.184.216.34")}},
	}}
	guard := NewWithResolver(Config{Enabled: true, AllowHTTP: true}, resolver)
	_, err := guard.ParseAndValidate(context.Background(), "http://example.com/path")
	require.NoError(t, err)
}

func TestValidateRejectsMetadataEndpointRegardlessOfAllowPrivateNetwork(t *testing.T) {
	resolver := fixedResolver{addrs: map[string][]net.IPAddr{
		"metadata.internal": {{IP: net.ParseIP("169.254.169.254")}},
	}}
	guard := NewWithResolver(Config{Enabled: true, AllowPrivateNetwork: true}, resolver)
	_, err := guard.ParseAndValidate(context.Background(), "https://metadata.internal/latest/meta-data")
	require.Error(t, err)
	violation, ok := err.(*Violation)
	require.True(t, ok)
	require.Equal(t, ReasonBlockedMetadata, violation.ReasonCode)
}

func TestValidateRejectsPrivateNetworkUnlessAllowed(t *testing.T) {
	resolver := fixedResolver{addrs: map[string][]net.IPAddr{
		"internal.local": {{IP: net.ParseIP("10.0.0.5")}},
	}}
	guard := NewWithResolver(Config{Enabled: true}, resolver)
	_, err := guard.ParseAndValidate(context.Background(), "https://internal.local/hook")
	require.Error(t, err)
	violation, ok := err.(*Violation)
	require.True(t, ok)
	require.Equal(t, ReasonBlockedPrivateNetwork, violation.ReasonCode)

	allowed := NewWithResolver(Config{Enabled: true, AllowPrivateNetwork: true}, resolver)
	_, err = allowed.ParseAndValidate(context.Background(), "https://internal.local/hook")
	require.NoError(t, err)
}

func TestValidateDisabledSkipsNetworkPolicy(t *testing.T) {
	guard := New(Config{Enabled: false})
	_, err := guard.ParseAndValidate(context.Background(), "http://169.254.169.254/latest/meta-data")
	require.NoError(t, err)
}

type erroringResolver struct{}

func (erroringResolver) LookupIPAddr(_ context.Context, _ string) ([]net.IPAddr, error) {
	return nil, errLookupFailed
}

func TestValidatePropagatesDNSFailureWithRetryableReason(t *testing.T) {
	guard := NewWithResolver(Config{Enabled: true}, erroringResolver{})
	_, err := guard.ParseAndValidate(context.Background(), "https://unresolvable.example/hook")
	require.Error(t, err)
	violation, ok := err.(*Violation)
	require.True(t, ok)
	require.Equal(t, ReasonDNSResolutionFailed, violation.ReasonCode)
}
