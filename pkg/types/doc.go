// Package types defines the entities, store interfaces, and standard errors
// shared by the oilsync cache, queue, and sync packages.
//
// Every persisted entity is scoped by an owner ID (the authenticated
// tenant). Server-assigned numbers that may be absent are pointers: a nil
// value means "unknown", never zero.
package types
