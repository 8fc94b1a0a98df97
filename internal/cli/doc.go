// Package cli implements the interactive inventory shell: listing and
// editing items, uploading a model file for an item with a live progress
// line, and watching the collection change.
package cli
