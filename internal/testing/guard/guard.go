package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("EATTHAT_TEST_MODE") == "" {
			_ = os.Setenv("EATTHAT_TEST_MODE", "1")
		}
	})
}
