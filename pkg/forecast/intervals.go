package forecast

// Intervals returns lo, lo+1, ..., hi. A nil or invalid range yields no intervals.
func Intervals(r *Range) []int {
	if r == nil || !r.Valid() {
		return nil
	}
	out := make([]int, 0, r.Len())
	for i := r.Lo; i <= r.Hi; i++ {
		out = append(out, i)
	}
	return out
}

// Clamp bounds a playback position to [0, length-1]. Empty sequences clamp to 0.
func Clamp(position, length int) int {
	if position < 0 || length <= 0 {
		return 0
	}
	if position >= length {
		return length - 1
	}
	return position
}

// Wrap bounds a playback position by looping: past the end goes to 0,
// before the start goes to the last index.
func Wrap(position, length int) int {
	if length <= 0 {
		return 0
	}
	if position >= length {
		return 0
	}
	if position < 0 {
		return length - 1
	}
	return position
}

// IntervalAt clamps position and returns the interval value at it.
func IntervalAt(position int, r *Range) (int, bool) {
	if r == nil || !r.Valid() {
		return 0, false
	}
	return r.Lo + Clamp(position, r.Len()), true
}
