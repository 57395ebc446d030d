// types.go - Datentypen fuer die Tensor-Engine
// Dieses Modul definiert grundlegende Typen wie DType.
package ml

// DType represents the data type of tensor elements.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeI32
)

func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeI32:
		return "i32"
	default:
		return "other"
	}
}
