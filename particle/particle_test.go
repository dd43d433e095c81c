package particle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	assert := assert.New(t)

	p, err := New([]int{1, 2}, -1.0)
	assert.Nil(p)
	assert.Error(err)

	p, err = New([]int{1, 1}, 1.0)
	assert.Nil(p)
	assert.Error(err)

	p, err = New([]int{-1}, 1.0)
	assert.Nil(p)
	assert.Error(err)

	p, err = New([]int{3, 1}, 2.0)
	assert.NotNil(p)
	assert.NoError(err)
	assert.Equal(2, p.NumDips())
	assert.Equal([]int{3, 1}, p.Locs())
	assert.Equal(2.0, p.DipMomStd())
	assert.True(p.Has(1))
	assert.False(p.Has(2))
}

func TestAddRemoveDipole(t *testing.T) {
	assert := assert.New(t)

	p, err := New(nil, 1.0)
	assert.NoError(err)
	assert.Equal(0, p.NumDips())

	assert.NoError(p.AddDipole(4))
	assert.NoError(p.AddDipole(7))
	assert.Error(p.AddDipole(4))
	assert.Equal([]Dipole{{Loc: 4}, {Loc: 7}}, p.Dipoles())

	assert.Error(p.RemoveDipole(2))
	assert.Error(p.RemoveDipole(-1))
	assert.NoError(p.RemoveDipole(0))
	assert.Equal([]int{7}, p.Locs())
}

func TestClone(t *testing.T) {
	assert := assert.New(t)

	p, err := New([]int{1, 2}, 1.0)
	assert.NoError(err)
	p.logLik = -3.0

	c := p.Clone()
	assert.Equal(p.Locs(), c.Locs())
	assert.Equal(p.LogLik(), c.LogLik())

	// clones do not share dipoles
	assert.NoError(c.RemoveDipole(0))
	assert.NoError(c.AddDipole(5))
	assert.Equal([]int{1, 2}, p.Locs())
	assert.Equal([]int{2, 5}, c.Locs())
}
