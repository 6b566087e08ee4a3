// Package storage persists the watcher's only durable fact: the receipt
// number of the last disclosure that was announced.
//
// It also keeps an append-only run journal (one record per run) for
// operators. The journal is never read back for deduplication.
package storage
