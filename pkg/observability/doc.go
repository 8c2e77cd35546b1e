// Package observability provides structured logging and Prometheus metrics
// for the Gatehouse authentication layer.
//
// # Overview
//
// Logging is a thin wrapper over stdlib slog with JSON output and chainable
// field helpers. Metrics cover every externally visible outcome of the login
// flow: attempts, callbacks, token validations, key set refreshes, and
// session lifecycle events.
//
// # Usage Example
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//
//	logger.WithComponent("keyset").WithError(err).Warn("JWKS refresh failed")
//	metrics.KeySetRefreshTotal.WithLabelValues("error").Inc()
package observability
