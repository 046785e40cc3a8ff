// Package web renders the site's pages and the shared response shapes.
//
// Pages come from an embedded static tree that can be overridden file by file
// from a directory on disk. Failures are rendered either as a JSON error body
// or as the matching HTML error page, depending on what the client asked for.
package web
