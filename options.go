package sesame

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Options are SESAME estimator options
type Options struct {
	// Logger logs estimator progress
	Logger *zap.Logger
	// NoiseCov is sensor noise covariance used to pre-whiten data and lead field
	NoiseCov mat.Symmetric
}

// Option configures SESAME estimator
type Option func(*Options)

// WithLogger sets estimator logger
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithNoiseCov sets sensor noise covariance which is used to pre-whiten
// both data and lead field before the estimation
func WithNoiseCov(cov mat.Symmetric) Option {
	return func(o *Options) {
		o.NoiseCov = cov
	}
}
