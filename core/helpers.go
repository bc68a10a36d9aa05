package orchestration

import (
	"fmt"
)

// runCleanupStep runs a teardown step so that a failing or panicking step
// never prevents the next one from running.
func runCleanupStep(name string, step func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s: %w: %v", name, errCleanupPanicked, recovered)
		}
	}()

	if err = step(); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}

	return nil
}
