package app

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

const testModeEnv = "MSBOT_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode caches MSBOT_TEST_MODE. Any value strconv.ParseBool accepts
// as true enables test mode.
func detectTestMode() {
	on, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(testModeEnv)))
	testModeFlag.Store(err == nil && on)
}

// InTestMode reports whether binaries should return before opening stores,
// listeners or queues.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the environment after it changed.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	detectTestMode()
}
