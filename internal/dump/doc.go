// Package dump defines the data model shared by the acquisition pipeline.
//
// A dump (e.g. "enwiki") has many dated versions ("20230301"); each version
// runs a set of jobs ("metacurrentdumprecombine") that publish files. The
// canonical host describes them; see package metadata.
//
// # Version specs
//
//	spec, err := dump.ParseVersionSpec("latest")   // resolved later
//	spec, err := dump.ParseVersionSpec("20230301") // used as-is
//
// # Errors
//
// The pipeline reports failures by wrapping the sentinel errors in this
// package, so callers classify them with errors.Is:
//
//	if errors.Is(err, dump.ErrJobNotFound) { ... }
package dump
