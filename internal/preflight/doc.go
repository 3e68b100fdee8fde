// Package preflight runs the `docsearch doctor` checks: the embedding
// provider answers and has the model, the docs tree has documents, the
// index artifacts load, and the index directory is writable with enough
// free space. Checks run concurrently; results keep their declared order.
//
//	checker := preflight.New(preflight.Target{...})
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
