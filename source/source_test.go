package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func line(n int, step float64) *mat.Dense {
	points := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		points.Set(i, 0, float64(i)*step)
	}

	return points
}

func TestDist2(t *testing.T) {
	assert := assert.New(t)

	points := mat.NewDense(2, 3, []float64{0, 0, 0, 3, 4, 0})
	assert.InDelta(25.0, Dist2(points, 0, 1), 1e-12)
	assert.InDelta(25.0, Dist2(points, 1, 0), 1e-12)
	assert.Equal(0.0, Dist2(points, 1, 1))
}

func TestInitRadius(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		extent float64
		radius float64
	}{
		{extent: 120, radius: 10},
		{extent: 20, radius: 1},
		{extent: 0.12, radius: 0.01},
	}

	for _, tc := range testCases {
		points := mat.NewDense(2, 3, []float64{0, 0, 0, 0, tc.extent, 0})
		assert.Equal(tc.radius, InitRadius(points))
	}
}

func TestNewNeighbours(t *testing.T) {
	assert := assert.New(t)

	points := line(6, 1.0)

	n, err := NewNeighbours(points, -1)
	assert.Nil(n)
	assert.Error(err)

	n, err = NewNeighbours(&mat.Dense{}, 1)
	assert.Nil(n)
	assert.Error(err)

	// a single point has no neighbours
	n, err = NewNeighbours(line(1, 1.0), 1)
	assert.NoError(err)
	assert.Equal(1, n.Len())
	assert.Empty(n.Of(0))
	assert.Empty(n.Probs(0))
	assert.Equal(-1, n.Draw(0, 0.5))

	n, err = NewNeighbours(points, 1.5)
	assert.NotNil(n)
	assert.NoError(err)
	assert.Equal(6, n.Len())
	assert.Equal(1.5, n.Radius())

	assert.ElementsMatch([]int{1}, n.Of(0))
	assert.ElementsMatch([]int{1, 3}, n.Of(2))

	for i := 0; i < n.Len(); i++ {
		assert.False(n.IsNeighbour(i, i))
		for _, j := range n.Of(i) {
			assert.True(n.IsNeighbour(j, i), "neighbours of %d and %d not symmetric", i, j)
		}
		assert.InDelta(1.0, floats.Sum(n.Probs(i)), 1e-12)
	}

	// equidistant neighbours are equally likely
	assert.InDelta(0.5, n.Prob(2, 1), 1e-12)
	assert.InDelta(0.5, n.Prob(2, 3), 1e-12)
	assert.Equal(0.0, n.Prob(2, 5))
}

func TestNeighboursFallback(t *testing.T) {
	assert := assert.New(t)

	// point 3 is isolated for the given radius
	points := mat.NewDense(4, 3, []float64{
		0, 0, 0,
		1, 0, 0,
		2, 0, 0,
		10, 0, 0,
	})

	n, err := NewNeighbours(points, 1.0)
	assert.NotNil(n)
	assert.NoError(err)

	assert.Equal([]int{2}, n.Of(3))
	assert.True(n.IsNeighbour(2, 3))
	for i := 0; i < n.Len(); i++ {
		assert.NotEmpty(n.Of(i))
		assert.InDelta(1.0, floats.Sum(n.Probs(i)), 1e-12)
	}
}

func TestDraw(t *testing.T) {
	assert := assert.New(t)

	n, err := NewNeighbours(line(5, 1.0), 1.0)
	assert.NotNil(n)
	assert.NoError(err)

	// neighbours of 2 are 1 and 3, each with probability 0.5
	assert.Equal(n.Of(2)[0], n.Draw(2, 0.1))
	assert.Equal(n.Of(2)[1], n.Draw(2, 0.9))
	assert.Equal(n.Of(2)[1], n.Draw(2, 0.999999999999))
}
