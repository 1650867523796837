package math

import "golang.org/x/exp/constraints"

func Clamp[T constraints.Ordered](value, min, max T) T {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// AlignUp rounds size up to the next multiple of alignment. An alignment of
// zero or one returns size unchanged.
func AlignUp[T constraints.Integer](size, alignment T) T {
	if alignment <= 1 {
		return size
	}
	return ((size + alignment - 1) / alignment) * alignment
}
