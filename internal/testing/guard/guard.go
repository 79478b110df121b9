// Package guard puts the process into test mode when imported. HTTP stacks
// built afterwards skip side effects such as per-client rate limiting.
package guard

import (
	"os"
	"sync"

	"github.com/odyssey-erp/odyssey-stock/internal/app"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ODYSSEY_TEST_MODE") == "" {
			_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		}
		app.RefreshTestMode()
	})
}
