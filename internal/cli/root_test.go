package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakmind/coach/internal/config"
)

func TestRootCommandRunsServe(t *testing.T) {
	require.NotNil(t, RootCmd.RunE)

	// An invalid config stops serve during bootstrap, before anything listens.
	t.Setenv("STORE_BACKEND", "bogus")

	for _, args := range [][]string{{}, {"serve"}} {
		RootCmd.SetArgs(args)
		err := RootCmd.ExecuteContext(context.Background())
		assert.ErrorIs(t, err, config.ErrConfiguration, "args %v", args)
	}
}

func TestRootCommandListsSubcommands(t *testing.T) {
	names := make([]string, 0, len(RootCmd.Commands()))
	for _, c := range RootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "token"})
}
