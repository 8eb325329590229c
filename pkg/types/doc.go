// Package types defines the shared data model of a competitive run: the
// task, its decomposition, worker specifications and instances, and the
// results produced by supervision and assessment.
package types
