package utils

import "golang.org/x/exp/constraints"

// Clamp returns `value` bounded to [lo, hi].
func Clamp[T constraints.Ordered](value, lo, hi T) T {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
