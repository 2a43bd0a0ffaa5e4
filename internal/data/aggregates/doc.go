// Package aggregates implements the studio write boundaries over GORM.
//
// Every write runs in one transaction through executeWrite, which maps driver
// failures onto aggregate codes, retries transient ones and reports the outcome
// to Hooks.
package aggregates
