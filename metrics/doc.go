// Package metrics exports binder activity to Prometheus.
//
// A Recorder is handed to each Process with binder.WithRecorder and
// registered on an explicit registry:
//
//	rec := metrics.New(metrics.WithTracker(tracker), metrics.WithCodes(codeGet, codePut))
//	rec.MustRegister(prometheus.DefaultRegisterer)
//	proc := binder.NewProcess(binder.WithRecorder(rec), binder.WithProcessTracker(tracker))
package metrics
