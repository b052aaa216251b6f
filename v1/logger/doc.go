// Package logger provides structured logging for the engine.
//
// The package wraps Uber's zap behind a small interface so that engine packages
// depend on Logger and never on zap directly:
//   - Logger interface: the contract every component accepts
//   - LoggerClient struct: the zap-backed implementation
//   - NewLoggerClient: returns *LoggerClient
//   - FXModule: provides both *LoggerClient and Logger
//
// Every log method takes a message, an optional error and optional field maps:
//
//	log := logger.NewLoggerClient(logger.Config{Level: logger.Info, ServiceName: "lexgraph"})
//	log.Info("cluster run activated", nil, map[string]interface{}{
//		"run_id": runID,
//		"family": "density",
//	})
//
// The *WithContext variants additionally attach the trace_id and span_id of the
// OpenTelemetry span stored in ctx when tracing is enabled, so log lines of a
// clustering run or a search request can be joined with their traces.
//
// Tests use NewNop, which discards everything.
package logger
