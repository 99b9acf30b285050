package core

import "math"

// Saturating int64 arithmetic for window boundary computation. Products and
// sums at extreme timestamps must clamp to the representable range rather
// than wrap.

// SaturatingAdd returns a+b clamped to [MinInt64, MaxInt64].
func SaturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

// SaturatingSub returns a-b clamped to [MinInt64, MaxInt64].
func SaturatingSub(a, b int64) int64 {
	if b < 0 && a > math.MaxInt64+b {
		return math.MaxInt64
	}
	if b > 0 && a < math.MinInt64+b {
		return math.MinInt64
	}
	return a - b
}

// SaturatingMul returns a*b clamped to [MinInt64, MaxInt64].
func SaturatingMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if (a == math.MinInt64 && b == -1) || (b == math.MinInt64 && a == -1) {
		return math.MaxInt64
	}
	res := a * b
	if res/b != a {
		if (a > 0) == (b > 0) {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return res
}
