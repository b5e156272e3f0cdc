package canopy

import "strconv"

// Bytes is a size in bytes which prints in the largest binary unit it fills,
// e.g. 1.5K or 12M.
type Bytes uint64

var byteUnits = []struct {
	suffix string
	size   uint64
}{
	{"T", 1 << 40},
	{"G", 1 << 30},
	{"M", 1 << 20},
	{"K", 1 << 10},
}

// String formats b with at most one decimal place. Sizes under 1K print as a
// bare byte count with a B suffix.
func (b Bytes) String() string {
	if b == 0 {
		return "0"
	}
	for _, u := range byteUnits {
		if uint64(b) >= u.size {
			return strconv.FormatFloat(roundTenth(float64(b)/float64(u.size)), 'f', -1, 64) + u.suffix
		}
	}
	return strconv.FormatUint(uint64(b), 10) + "B"
}

func roundTenth(f float64) float64 {
	return float64(int64(f*10+0.5)) / 10
}
