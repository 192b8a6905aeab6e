// Package dom wraps golang.org/x/net/html trees with the selector, cleaning
// and tree-editing helpers used by the detail, feed and pagination engines.
package dom
