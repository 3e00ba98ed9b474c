// Package testing flips docflow into test mode for packages that import it.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("DOCFLOW_TEST_MODE", "1")
		if os.Getenv("HOLDED_API_KEY") == "" {
			_ = os.Setenv("HOLDED_API_KEY", "test-key")
		}
		if os.Getenv("GOTENBERG_URL") == "" {
			_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
		}
		if os.Getenv("CATALOG_SNAPSHOT_PATH") == "" {
			_ = os.Setenv("CATALOG_SNAPSHOT_PATH", os.TempDir()+"/docflow_products_snapshot.json")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain runs the package tests with the test-mode environment applied.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
