// Package staging owns the temporary trees a run writes into and promotes
// them to their final locations once the run has succeeded.
//
// Nothing is written to the configured output directories until Promote;
// a failed run leaves them exactly as they were.
package staging
