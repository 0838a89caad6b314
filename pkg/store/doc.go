// Package store provides a small transactional key-value store used to
// persist the override table and the active-policy record.
//
// Two backends are available: SQLite (durable, WAL mode) and memory (for
// tests). The interface is buckets of key/value pairs plus View/Update
// transactions; callers depend on the read-after-restart and atomic-replace
// guarantees, not on the on-disk schema.
package store
