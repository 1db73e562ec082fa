package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when a show is requested before Initialize.
	ErrNotInitialized = errors.New("ad manager not initialized")
	// ErrLoadFailed wraps provider load failures. They are retried with backoff.
	ErrLoadFailed = errors.New("ad load failed")
	// ErrShowFailed wraps provider show failures, including recovered panics.
	ErrShowFailed = errors.New("ad show failed")
	// ErrProviderPanic marks a panic recovered from a provider call.
	ErrProviderPanic = errors.New("ad provider panicked")
	// ErrUnknownUnit is returned when no ad unit is configured for a kind.
	ErrUnknownUnit = errors.New("no ad unit configured")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("ad manager closed")
)

// safeCall runs a provider call and converts a panic into an error so a
// faulty SDK can never take down the host.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrProviderPanic, r)
		}
	}()
	return fn()
}

func showError(err error) error {
	if err == nil {
		return ErrShowFailed
	}
	if errors.Is(err, ErrShowFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrShowFailed, err)
}

func loadError(err error) error {
	if err == nil {
		return ErrLoadFailed
	}
	return fmt.Errorf("%w: %w", ErrLoadFailed, err)
}
