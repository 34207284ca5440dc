// Package logger builds the zap logger shared by the CLI and the HTTP server.
//
// Level debug switches to zap's development config; any other level uses the
// production config at that level. Format console gives colored, human
// readable lines; json gives one object per line. Output goes to stderr so
// commands can write results to stdout.
//
// Every CLI run is tagged with a run_id and every HTTP request with a ray_id:
//
//	log = logger.WithRunID(log, uuid.NewString())
//	l := logger.WithRayID(log, c)
//	l.Error("Handler failed", zap.Error(err))
package logger
