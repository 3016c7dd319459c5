// Package fib computes values of the Fibonacci sequence over the index
// domain the device exposes.
package fib

// MaxIndex is the largest index whose value fits in an int64.
// F(93) overflows, so the domain is [0, 92].
const MaxIndex = 92

// Compute returns F(k) using the linear recurrence with two rolling scalars.
//
// The caller guarantees 0 <= k <= MaxIndex; the device clamps positions
// before they reach this function.
func Compute(k int) int64 {
	if k < 2 {
		return int64(k)
	}
	// b never runs past F(k), so F(92) is reached without overflow.
	var a, b int64 = 0, 1
	for i := 2; i <= k; i++ {
		a, b = b, a+b
	}
	return b
}

// InDomain reports whether k is a valid index.
func InDomain(k int64) bool {
	return k >= 0 && k <= MaxIndex
}

// Clamp bounds k to [0, MaxIndex].
func Clamp(k int64) int64 {
	if k > MaxIndex {
		return MaxIndex
	}
	if k < 0 {
		return 0
	}
	return k
}
