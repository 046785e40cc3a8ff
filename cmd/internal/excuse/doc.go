// Package excuse owns the excuse record list: an ordered in-memory sequence
// backed by a flat JSON file that is rewritten wholesale after every mutation.
//
// A Store is built once at startup and shared by every handler. All operations
// are serialized under one mutex, including the synchronous file write, so
// handler bodies that touch the list never interleave.
package excuse
