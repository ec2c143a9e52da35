package config

import (
	"flag"
	"testing"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextWithArgs(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags {
		f.Apply(set)
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(nil, set, nil)
}

func TestFromCLIAppliesDefaults(t *testing.T) {
	cfg, err := FromCLI(contextWithArgs(t))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.ListenAddress)
	assert.EqualValues(t, 8888, cfg.ListenPort)
	assert.Equal(t, 250, cfg.MaxAllowedNodes)
	assert.False(t, cfg.BootstrapperMode)
}

func TestFromCLIParsesNetworkIDs(t *testing.T) {
	cfg, err := FromCLI(contextWithArgs(t, "-network-id", "1", "-network-id", "42"))
	require.NoError(t, err)
	require.Len(t, cfg.Networks, 2)
	assert.EqualValues(t, 1, cfg.Networks[0])
	assert.EqualValues(t, 42, cfg.Networks[1])
}

func TestFromCLIRejectsOutOfRangeNetworkID(t *testing.T) {
	_, err := FromCLI(contextWithArgs(t, "-network-id", "70000"))
	assert.Error(t, err)
}

func TestFromCLIRejectsInvalidExternalIP(t *testing.T) {
	_, err := FromCLI(contextWithArgs(t, "-external-ip", "not-an-ip"))
	assert.Error(t, err)
}

func TestFromCLIAcceptsValidExternalIP(t *testing.T) {
	cfg, err := FromCLI(contextWithArgs(t, "-external-ip", "203.0.113.9"))
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", cfg.ExternalIP.String())
}

func TestFromCLIRejectsNonPositiveMaxAllowedNodes(t *testing.T) {
	_, err := FromCLI(contextWithArgs(t, "-max-allowed-nodes", "0"))
	assert.Error(t, err)
}

func TestFromCLIRejectsZeroListenPort(t *testing.T) {
	_, err := FromCLI(contextWithArgs(t, "-listen-port", "0"))
	assert.Error(t, err)
}

func TestFromCLIParsesBootstrapNodes(t *testing.T) {
	cfg, err := FromCLI(contextWithArgs(t, "-bootstrap-node", "a.example.com:8888", "-bootstrap-node", "b.example.com:8888"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example.com:8888", "b.example.com:8888"}, cfg.BootstrapNodes)
}
