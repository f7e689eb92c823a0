package rflab

import "errors"

// Core errors
var (
	// ErrInvalidConfig indicates invalid core configuration
	ErrInvalidConfig = errors.New("rflab: invalid core configuration")

	// ErrInvalidPulse indicates an out-of-range pulse level or width
	ErrInvalidPulse = errors.New("rflab: invalid pulse")

	// ErrInvalidFrame indicates an out-of-range frame length
	ErrInvalidFrame = errors.New("rflab: invalid frame")

	// ErrNotHealthy indicates the core detected internal corruption and
	// refuses further analysis
	ErrNotHealthy = errors.New("rflab: core is not healthy")

	// ErrConfigVersion indicates an unsupported config file version
	ErrConfigVersion = errors.New("rflab: unsupported configuration version")
)
