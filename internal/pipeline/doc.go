// Package pipeline executes the stages of a localization run in sequence.
//
// A run is processed through four stages: the fixpoint (scan, download and
// rewrite until nothing new appears), runtime discovery in a browser,
// promotion of the staging trees into place and export of the mapping
// file. Each stage is a Step that receives the run and adds its results.
//
// Discovery and mapping export are optional steps. A failed run records
// the error of the step that stopped it; steps after it do not run, so
// nothing is promoted.
package pipeline
