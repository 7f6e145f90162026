package pipeline

import "math"

// LockedDimension derives the other axis from an edited one using the
// natural dimensions only, so repeated edits never accumulate rounding.
func LockedDimension(edited, naturalEdited, naturalOther int) int {
	if naturalEdited <= 0 || naturalOther <= 0 {
		return max(1, naturalOther)
	}
	derived := math.Round(float64(edited) / float64(naturalEdited) * float64(naturalOther))
	return max(1, int(derived))
}
