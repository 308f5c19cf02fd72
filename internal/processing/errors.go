package processing

import (
	"errors"
	"fmt"

	"github.com/chriskillpack/alttagger/internal/session"
)

var (
	// ErrConfiguration is returned before any image is attempted when the
	// step configuration cannot work: unknown provider, missing model, bad
	// batch size and so on. Fixing the configuration and calling again is safe.
	ErrConfiguration = errors.New("configuration error")

	// ErrStore means the run-state store or the image repository failed. The
	// step is abandoned rather than guessing at session state.
	ErrStore = session.ErrStore

	// ErrRateLimited is returned by admission control in front of the
	// processor when a caller has used up its step quota.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrStepInProgress is returned when another step holds the step lock.
	ErrStepInProgress = errors.New("a processing step is already running")
)

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// ItemError records why one image did not get alt text in a step. The image
// stays pending and is picked up again by a later step.
type ItemError struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("image %d: %s", e.ID, e.Message)
}
