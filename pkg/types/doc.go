// Package types defines the Store and Table interfaces, the entity types of
// the laboratory and quarantine domains, the workflow stage model, and the
// standard errors for the vetlab record store.
package types
