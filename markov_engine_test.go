// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"math"

	"golang.org/x/exp/rand"
	"gopkg.in/check.v1"
)

type markovEngineSuite struct{}

var _ = check.Suite(&markovEngineSuite{})

// identityFixture builds a 2-state, M-marker scenario where state 0 copies
// observed exactly at every marker and state 1 never matches, with no
// recombination, so a correctly-implemented engine should impute strongly
// toward the observed/major allele at every position.
func identityFixture(m int) (major, observed []Allele, haps [][]Allele, freqs [5][]float64, params *Parameters) {
	major = make([]Allele, m)
	observed = make([]Allele, m)
	haps = make([][]Allele, 2)
	haps[0] = make([]Allele, m)
	haps[1] = make([]Allele, m)
	freqs[A] = make([]float64, m)
	freqs[C] = make([]float64, m)
	freqs[G] = make([]float64, m)
	freqs[T] = make([]float64, m)
	for i := 0; i < m; i++ {
		major[i] = A
		observed[i] = A
		haps[0][i] = A
		haps[1][i] = T
		freqs[A][i] = 0.5
		freqs[T][i] = 0.5
	}
	params = &Parameters{}
	params.Allocate(m)
	for i := range params.E {
		params.E[i] = 0.01
	}
	params.empiricalFlipRate = 0.80
	return
}

func (s *markovEngineSuite) TestClampStates(c *check.C) {
	c.Check(ClampStates(500, 120), check.Equals, 120)
	c.Check(ClampStates(80, 120), check.Equals, 80)
}

func (s *markovEngineSuite) TestNewEnginePadsOddStates(c *check.C) {
	e := NewEngine(3, 5, &Parameters{})
	c.Check(e.states, check.Equals, 5)
	c.Check(e.paddedStates, check.Equals, 6)
	for _, row := range e.matrix {
		c.Check(len(row), check.Equals, 6)
	}
}

func (s *markovEngineSuite) TestWalkLeftProducesFiniteNonNegativeMatrix(c *check.C) {
	major, observed, haps, freqs, params := identityFixture(5)
	for i := range params.R {
		params.R[i] = 0.1
	}
	e := NewEngine(5, 2, params)
	e.WalkLeft(observed, haps, freqs)
	for _, row := range e.matrix {
		for _, v := range row[:e.states] {
			c.Check(math.IsNaN(v), check.Equals, false)
			c.Check(v >= 0, check.Equals, true)
		}
	}
	_ = major
}

func (s *markovEngineSuite) TestImputeStaysInBounds(c *check.C) {
	major, observed, haps, freqs, params := identityFixture(5)
	for i := range params.R {
		params.R[i] = 0.1
	}
	e := NewEngine(5, 2, params)
	e.WalkLeft(observed, haps, freqs)
	e.Impute(major, observed, haps, freqs)

	for m := 0; m < 5; m++ {
		c.Check(e.ImputedHap[m] >= 0 && e.ImputedHap[m] <= 1, check.Equals, true)
		c.Check(e.LeaveOneOut[m] >= 0 && e.LeaveOneOut[m] <= 1, check.Equals, true)
		switch e.ImputedAlleles[m] {
		case A, C, G, T:
		default:
			c.Fatalf("unexpected imputed allele %v at marker %d", e.ImputedAlleles[m], m)
		}
	}
}

func (s *markovEngineSuite) TestDegenerateIdentityFavorsMatchingState(c *check.C) {
	major, observed, haps, freqs, params := identityFixture(4)
	// No recombination: the forward/backward conditioning never gets
	// diluted by a uniform mixing term, so state 0 (which copies observed
	// exactly) should dominate at every marker.
	e := NewEngine(4, 2, params)
	e.WalkLeft(observed, haps, freqs)
	e.Impute(major, observed, haps, freqs)

	for m := 0; m < 4; m++ {
		c.Check(e.ImputedHap[m] > 0.9, check.Equals, true)
		c.Check(e.ImputedAlleles[m], check.Equals, A)
	}
}

func (s *markovEngineSuite) TestOneMissingSiteIsSkippedByCondition(c *check.C) {
	major, observed, haps, freqs, params := identityFixture(4)
	for i := range params.R {
		params.R[i] = 0.1
	}
	observed[2] = Missing

	e := NewEngine(4, 2, params)
	e.WalkLeft(observed, haps, freqs)
	e.Impute(major, observed, haps, freqs)

	for m := 0; m < 4; m++ {
		c.Check(math.IsNaN(e.ImputedHap[m]), check.Equals, false)
		c.Check(e.ImputedHap[m] >= 0 && e.ImputedHap[m] <= 1, check.Equals, true)
	}
}

func (s *markovEngineSuite) TestClearImputedDose(c *check.C) {
	_, observed, haps, freqs, params := identityFixture(3)
	e := NewEngine(3, 2, params)
	for i := range e.ImputedDose {
		e.ImputedDose[i] = 0.7
	}
	e.ClearImputedDose()
	for _, v := range e.ImputedDose {
		c.Check(v, check.Equals, 0.0)
	}
	_ = observed
	_ = haps
	_ = freqs
}

func (s *markovEngineSuite) TestCountErrorsScalarMissingReturnsErrRate(c *check.C) {
	e := NewEngine(1, 2, &Parameters{})
	c.Check(e.CountErrorsScalar(A, Missing, 0.02, 0.5), check.Equals, 0.02)
}

func (s *markovEngineSuite) TestCountErrorsVectorMatchesLowerThanMismatch(c *check.C) {
	_, _, haps, _, params := identityFixture(1)
	e := NewEngine(1, 2, params)
	vector := []float64{0.9, 0.1}
	matchErr := e.CountErrorsVector(vector, haps, 0, A, 0.02, 0.5)
	mismatchErr := e.CountErrorsVector(vector, haps, 0, T, 0.02, 0.5)
	c.Check(matchErr < mismatchErr, check.Equals, true)
}

func (s *markovEngineSuite) TestCountRecombinantsZeroRateReturnsZero(c *check.C) {
	e := NewEngine(1, 2, &Parameters{empiricalFlipRate: 0.8})
	from := []float64{0.5, 0.5}
	to := []float64{0.5, 0.5}
	c.Check(e.CountRecombinants(from, to, 0), check.Equals, 0.0)
}

func (s *markovEngineSuite) TestCountExpectedAccumulatesOneObservation(c *check.C) {
	major, observed, haps, freqs, params := identityFixture(4)
	for i := range params.R {
		params.R[i] = 0.1
	}
	e := NewEngine(4, 2, params)
	e.WalkLeft(observed, haps, freqs)
	e.CountExpected(observed, haps, freqs)

	c.Check(params.empiricalCount, check.Equals, 1.0)
	for _, v := range params.empE {
		c.Check(math.IsNaN(v), check.Equals, false)
		c.Check(v >= 0, check.Equals, true)
	}
	for _, v := range params.empR {
		c.Check(math.IsNaN(v), check.Equals, false)
		c.Check(v >= 0, check.Equals, true)
	}
	_ = major
}

func (s *markovEngineSuite) TestProfileModelAccumulatesOneObservation(c *check.C) {
	major, observed, haps, freqs, params := identityFixture(4)
	for i := range params.R {
		params.R[i] = 0.1
	}
	e := NewEngine(4, 2, params)
	e.WalkLeft(observed, haps, freqs)
	rng := NewWorkerRand(12345, 0)
	e.ProfileModel(observed, haps, freqs, rng)

	c.Check(params.empiricalCount, check.Equals, 1.0)
	for _, v := range params.empE {
		c.Check(math.IsNaN(v), check.Equals, false)
	}
	_ = major
}

func (s *markovEngineSuite) TestNewWorkerRandIsDeterministic(c *check.C) {
	r1 := NewWorkerRand(42, 3)
	r2 := NewWorkerRand(42, 3)
	c.Check(r1.Uint64(), check.Equals, r2.Uint64())
}

func (s *markovEngineSuite) TestNewWorkerRandVariesByWorker(c *check.C) {
	r1 := rand.New(rand.NewSource(0))
	_ = r1
	r2 := NewWorkerRand(42, 1)
	r3 := NewWorkerRand(42, 2)
	c.Check(r2.Uint64() == r3.Uint64(), check.Equals, false)
}
