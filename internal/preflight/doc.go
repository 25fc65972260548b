// Package preflight runs the checks behind `amanrag doctor`.
//
// Required checks (a failure means indexing or asking will not work):
//   - The data directory is writable
//   - At least 100 MB of free disk space at the data directory
//   - The file descriptor limit is at least 1024
//   - The embedding provider answers a probe
//
// Advisory checks only warn:
//   - The generation provider answers a probe
//   - The collection has been built
//
//	checker := preflight.New(dataDir, preflight.Dependencies{Embedder: e})
//	results := checker.RunAll(ctx)
//	if preflight.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
