// Package tensor provides the tensor substrate for the flashattn adapter.
package tensor

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types.
//
// Float16 and BFloat16 are the two reduced-precision formats accepted by the
// attention entry points; the remaining types back offset tables, diagnostic
// outputs and RNG state.
const (
	Float16 DataType = iota
	BFloat16
	Float32
	Int32
	Int64
	Uint8
)

// Size returns the byte size of one element of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float16, BFloat16:
		return 2
	case Float32, Int32:
		return 4
	case Int64:
		return 8
	case Uint8:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// IsReducedFloat reports whether the type is one of the two 16-bit floating
// formats the attention primitive accepts.
func (dt DataType) IsReducedFloat() bool {
	return dt == Float16 || dt == BFloat16
}
