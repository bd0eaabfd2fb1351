package frame

// Symbol is a single JJY second: a position marker or a data bit.
// Each symbol occupies exactly one second on air.
type Symbol uint8

const (
	Bit0 Symbol = iota
	Bit1
	Mark
)

func (s Symbol) String() string {
	switch s {
	case Bit0:
		return "0"
	case Bit1:
		return "1"
	case Mark:
		return "M"
	default:
		return "?"
	}
}

// Bit returns the data value of a symbol. Markers carry no data
// and count as zero.
func (s Symbol) Bit() int {
	if s == Bit1 {
		return 1
	}
	return 0
}
