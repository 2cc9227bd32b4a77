// Package records defines the write operation handed from the mapping engine
// to storage writers. A WriteOp is created once per (mapping, data row) pair
// and is read-only afterwards, so batches may be shared across goroutines.
package records

// Bin is one named destination field.
type Bin struct {
	Name  string
	Value any
}

// WriteOp is a single destination-record write: the record key, its
// set/namespace, and the ordered bins derived from one data row by one
// mapping definition.
type WriteOp struct {
	// Key is the typed record key (string, int64, float64, or []byte).
	Key any

	// SetName is the destination set or namespace.
	SetName string

	// Bins are the record's fields in mapping declaration order.
	Bins []Bin

	// Secondary marks ops produced by a secondary mapping.
	Secondary bool
}
