package matrix

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// MaxAbs returns the largest absolute value stored in m.
func MaxAbs(m mat.Matrix) float64 {
	rows, cols := m.Dims()
	max := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := math.Abs(m.At(i, j)); v > max {
				max = v
			}
		}
	}

	return max
}

// Frob2 returns squared Frobenius norm of m.
func Frob2(m mat.Matrix) float64 {
	n := mat.Norm(m, 2)
	return n * n
}

// ColBlocks returns a new matrix which contains the column blocks of m
// given by idx, each block being size columns wide.
// Block i of m spans the columns [i*size, (i+1)*size).
// It panics if any of the blocks is out of m bounds.
func ColBlocks(m mat.Matrix, idx []int, size int) *mat.Dense {
	rows, _ := m.Dims()
	out := mat.NewDense(rows, len(idx)*size, nil)

	for b, i := range idx {
		for c := 0; c < size; c++ {
			for r := 0; r < rows; r++ {
				out.Set(r, b*size+c, m.At(r, i*size+c))
			}
		}
	}

	return out
}

// RowBlocks returns a new matrix which contains the row blocks of m
// given by idx, each block being size rows tall.
// It panics if any of the blocks is out of m bounds.
func RowBlocks(m mat.Matrix, idx []int, size int) *mat.Dense {
	_, cols := m.Dims()
	out := mat.NewDense(len(idx)*size, cols, nil)

	for b, i := range idx {
		for r := 0; r < size; r++ {
			for c := 0; c < cols; c++ {
				out.Set(b*size+r, c, m.At(i*size+r, c))
			}
		}
	}

	return out
}

// ColsFrom returns a new matrix which contains m columns from start up to end (exclusive)
// taking every step-th column.
// It panics if step is not positive or the range is out of m bounds.
func ColsFrom(m mat.Matrix, start, end, step int) *mat.Dense {
	rows, _ := m.Dims()
	n := (end - start + step - 1) / step
	out := mat.NewDense(rows, n, nil)

	for j := 0; j < n; j++ {
		for r := 0; r < rows; r++ {
			out.Set(r, j, m.At(r, start+j*step))
		}
	}

	return out
}
