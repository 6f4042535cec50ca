package shared

// Direction represents the direction of a trend or trade.
type Direction int

const (
	Long Direction = iota
	Short
)

// String stringifies the provided direction.
func (d *Direction) String() string {
	switch *d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// Sign returns the signed unit exposure for the provided direction.
func (d *Direction) Sign() int {
	if *d == Short {
		return -1
	}
	return 1
}
