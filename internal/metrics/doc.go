// Package metrics exposes Prometheus collectors for the candle ingester and
// the side HTTP server that serves them.
//
// All recording methods are safe on a nil *Metrics, so components can be
// built without metrics in tests and one-off commands.
package metrics
