// Package math holds the numeric helpers mgl32 does not cover: generic
// clamping and polygon triangulation for user defined shapes.
package math

import "golang.org/x/exp/constraints"

// Clamp limits v to [low, high]. low must not exceed high.
func Clamp[T constraints.Ordered](v, low, high T) T {
	return max(low, min(v, high))
}
