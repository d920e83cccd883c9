package kernel

// PropertyType names the wire type of a property's value.
type PropertyType int

const (
	PropertyInt PropertyType = iota
	PropertyBytes
)

// Property is a small piece of kernel-published state, keyed by a
// (category, key) pair, with at most one property per pair (spec.md §4.4).
type Property struct {
	Category int
	Key      int
	Type     PropertyType
	Size     int

	IntValue   int32
	BytesValue []byte
}
