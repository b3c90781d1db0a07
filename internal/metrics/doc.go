// Package metrics provides observability hooks for pagesmith runs.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection never requires nil checks at call
// sites. The daemon swaps in a PrometheusRecorder and serves its registry on
// the admin endpoint:
//
//	reg := prometheus.NewRegistry()
//	recorder := metrics.NewPrometheusRecorder(reg)
//	runner := pipeline.NewRunner(cfg).WithRecorder(recorder)
//	mux.Handle("/metrics", metrics.HTTPHandler(reg))
package metrics
