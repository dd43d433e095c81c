package sesame

import "errors"

var (
	// ErrInvalidConfig is returned when the estimator configuration is invalid
	ErrInvalidConfig = errors.New("invalid config")
	// ErrDimensionMismatch is returned when forward model and data dimensions do not match
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrEmptyWindow is returned when the analysis time window contains no samples
	ErrEmptyWindow = errors.New("empty time window")
	// ErrNotApplied is returned when results are requested before the estimator was applied
	ErrNotApplied = errors.New("estimator not applied")
)
