package chromedprenderer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	r := New(Config{})
	defer r.Close()

	require.Equal(t, defaultNavigationTimeout, r.cfg.NavigationTimeout)
	require.Equal(t, defaultSettleDelay, r.cfg.SettleDelay)
}

func TestNewKeepsExplicitTimeouts(t *testing.T) {
	t.Parallel()

	r := New(Config{NavigationTimeout: time.Minute, SettleDelay: time.Second})
	defer r.Close()

	require.Equal(t, time.Minute, r.cfg.NavigationTimeout)
	require.Equal(t, time.Second, r.cfg.SettleDelay)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	r := New(Config{})
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	// A closed renderer can start a new browser later.
	require.NotNil(t, r.ensureAllocator())
	require.NoError(t, r.Close())
}
