// Package source provides utilities for working with discretised source spaces:
// source grid radius initialization, neighbour graphs and neighbour proposal probabilities.
package source

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dist2 returns squared Euclidean distance between source points i and j.
// Source points are stored in rows of points.
func Dist2(points mat.Matrix, i, j int) float64 {
	_, cols := points.Dims()
	d := 0.0
	for c := 0; c < cols; c++ {
		diff := points.At(i, c) - points.At(j, c)
		d += diff * diff
	}

	return d
}

// InitRadius returns the default neighbourhood radius for the source space
// whose points are stored in rows of points.
// The radius depends on the largest extent of the source space along any axis,
// which makes it work for source spaces expressed either in metres or millimetres.
func InitRadius(points mat.Matrix) float64 {
	rows, cols := points.Dims()

	maxLen := 0.0
	col := make([]float64, rows)
	for c := 0; c < cols; c++ {
		mat.Col(col, c, points)
		if l := floats.Max(col) - floats.Min(col); l > maxLen {
			maxLen = l
		}
	}

	switch {
	case maxLen > 50:
		return 10
	case maxLen > 1:
		return 1
	default:
		return 0.01
	}
}

// Neighbours is a symmetric neighbour graph over source points.
// Every point stores a list of its neighbours along with the probabilities
// of proposing a move to each of them.
type Neighbours struct {
	// idx stores neighbour indices of each point
	idx [][]int
	// prob stores neighbour proposal probabilities of each point
	prob [][]float64
	// radius is the neighbourhood radius
	radius float64
}

// NewNeighbours computes neighbour graph of source points stored in rows of points.
// Two distinct points are neighbours if their distance is not larger than radius.
// A point with no neighbour within radius is connected to its nearest point.
// Proposal probabilities decay with the squared distance as a Gaussian kernel
// whose standard deviation is radius/3.
// A single point has no neighbours.
// It returns error if radius is not positive or points has no rows.
func NewNeighbours(points mat.Matrix, radius float64) (*Neighbours, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("invalid neighbourhood radius: %f", radius)
	}

	n, _ := points.Dims()
	if n < 1 {
		return nil, fmt.Errorf("invalid number of source points: %d", n)
	}

	r2 := radius * radius
	idx := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if Dist2(points, i, j) <= r2 {
				idx[i] = append(idx[i], j)
				idx[j] = append(idx[j], i)
			}
		}
	}

	for i := 0; i < n && n > 1; i++ {
		if len(idx[i]) > 0 {
			continue
		}
		nearest, best := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			if d := Dist2(points, i, j); d < best {
				nearest, best = j, d
			}
		}
		idx[i] = append(idx[i], nearest)
		if !contains(idx[nearest], i) {
			idx[nearest] = append(idx[nearest], i)
		}
	}

	sigma := radius / 3
	prob := make([][]float64, n)
	for i := 0; i < n; i++ {
		prob[i] = make([]float64, len(idx[i]))
		for k, j := range idx[i] {
			prob[i][k] = math.Exp(-Dist2(points, i, j) / (2 * sigma * sigma))
		}
		sum := floats.Sum(prob[i])
		if sum == 0 {
			// all neighbours are far beyond the kernel support
			for k := range prob[i] {
				prob[i][k] = 1
			}
			sum = float64(len(prob[i]))
		}
		floats.Scale(1/sum, prob[i])
	}

	return &Neighbours{
		idx:    idx,
		prob:   prob,
		radius: radius,
	}, nil
}

// Len returns the number of source points in the graph
func (n *Neighbours) Len() int {
	return len(n.idx)
}

// Radius returns neighbourhood radius
func (n *Neighbours) Radius() float64 {
	return n.radius
}

// Of returns neighbours of point i.
func (n *Neighbours) Of(i int) []int {
	out := make([]int, len(n.idx[i]))
	copy(out, n.idx[i])

	return out
}

// Probs returns proposal probabilities of neighbours of point i.
// The probabilities are ordered the same way as the neighbours returned by Of.
func (n *Neighbours) Probs(i int) []float64 {
	out := make([]float64, len(n.prob[i]))
	copy(out, n.prob[i])

	return out
}

// Prob returns the probability of proposing a move from point i to point j.
// It returns 0 if j is not a neighbour of i.
func (n *Neighbours) Prob(i, j int) float64 {
	for k, nb := range n.idx[i] {
		if nb == j {
			return n.prob[i][k]
		}
	}

	return 0
}

// Draw picks a neighbour of point i according to the proposal probabilities given a uniform number u in [0, 1).
// It returns -1 if i has no neighbours.
func (n *Neighbours) Draw(i int, u float64) int {
	if len(n.idx[i]) == 0 {
		return -1
	}

	acc := 0.0
	for k, p := range n.prob[i] {
		acc += p
		if u < acc {
			return n.idx[i][k]
		}
	}

	return n.idx[i][len(n.idx[i])-1]
}

// IsNeighbour returns true if points i and j are neighbours.
func (n *Neighbours) IsNeighbour(i, j int) bool {
	return contains(n.idx[i], j)
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}

	return false
}
