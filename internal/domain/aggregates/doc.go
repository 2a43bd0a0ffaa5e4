// Package aggregates declares the write boundaries of the studio: which component
// is the only writer of a table and what a failed write means to callers.
package aggregates
