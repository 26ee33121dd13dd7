// Package logging holds the process-wide zap logger for appliancectl.
//
// Logging is silent until Initialize is given a level, either directly or
// through APPLIANCECTL_LOG_LEVEL. The CLI passes --log-level:
//
//	if err := logging.Initialize(level); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// Library packages never read the global directly. They take a *zap.Logger,
// and the CLI hands each one a named child:
//
//	verifier := verify.New(exec, retrier, logging.Named("verify"))
//
// Entries carry structured fields (method, path, status_code, attempt,
// transaction_id) and are written to stderr in console format.
package logging
