package tensor

import (
	"fmt"
	"slices"
)

// Shape lists the dimensions of a tensor, outermost first. Images are
// [N, C, H, W]; an empty shape is a scalar.
type Shape []int

// NumElements returns the product of the dimensions (1 for a scalar).
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Validate rejects zero and negative dimensions.
func (s Shape) Validate() error {
	if i := slices.IndexFunc(s, func(d int) bool { return d <= 0 }); i >= 0 {
		return fmt.Errorf("tensor: shape %v: dimension %d is %d", []int(s), i, s[i])
	}
	return nil
}

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s, other)
}

// Clone returns a copy that does not alias s.
func (s Shape) Clone() Shape {
	return append(Shape(make([]int, 0, len(s))), s...)
}

// ComputeStrides returns the row-major element strides of s.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	step := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = step
		step *= s[i]
	}
	return strides
}

// BroadcastShapes aligns a and b from the right and returns the shape
// their elementwise combination produces. Missing leading dimensions
// count as 1 and a dimension of 1 stretches to match the other side:
//
//	[1 3 1 1] with [1 3 8 8] -> [1 3 8 8], stretched
//	[3 5] with [3 5]         -> [3 5], not stretched
//
// The boolean reports whether either operand has to be stretched.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	rank := max(len(a), len(b))
	out := make(Shape, rank)
	stretched := len(a) != len(b)

	dim := func(s Shape, i int) int {
		if j := len(s) - rank + i; j >= 0 {
			return s[j]
		}
		return 1
	}
	for i := range out {
		da, db := dim(a, i), dim(b, i)
		switch {
		case da == db:
			out[i] = da
		case da == 1:
			out[i], stretched = db, true
		case db == 1:
			out[i], stretched = da, true
		default:
			return nil, false, fmt.Errorf("tensor: cannot broadcast %v with %v: axis %d is %d vs %d",
				[]int(a), []int(b), i, da, db)
		}
	}
	return out, stretched, nil
}
