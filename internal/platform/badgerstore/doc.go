// Package badgerstore provides the BadgerDB-backed implementation of the
// task persistence interface defined in the internal/store package. It
// handles the details of the embedded key-value layout, record encoding,
// the ready index that drives claim ordering, and storage budget
// accounting.
package badgerstore
