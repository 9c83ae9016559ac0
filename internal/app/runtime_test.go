package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTestModeFlag(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "true")
	RefreshTestMode()
	require.True(t, InTestMode())

	for _, v := range []string{"", "0", "yes-please"} {
		t.Setenv(testModeEnv, v)
		RefreshTestMode()
		require.False(t, InTestMode(), v)
	}
}
