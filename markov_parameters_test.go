// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"bytes"
	"math"

	"gopkg.in/check.v1"
)

type parametersSuite struct{}

var _ = check.Suite(&parametersSuite{})

func (s *parametersSuite) TestAllocateDefaults(c *check.C) {
	var p Parameters
	p.Allocate(5)
	c.Check(p.empiricalFlipRate, check.Equals, 0.80)
	for _, e := range p.E {
		c.Check(e, check.Equals, 0.0)
	}
}

func (s *parametersSuite) TestAddIsCommutative(c *check.C) {
	var p1, p2, a, b Parameters
	p1.Allocate(4)
	p2.Allocate(4)
	a.Allocate(4)
	b.Allocate(4)
	for i := range a.empE {
		a.empE[i] = float64(i + 1)
		b.empE[i] = float64(10 - i)
	}
	a.empiricalFlips = 3
	b.empiricalFlips = 7

	p1.Add(&a)
	p1.Add(&b)
	p2.Add(&b)
	p2.Add(&a)

	c.Check(p1.empE, check.DeepEquals, p2.empE)
	c.Check(p1.empiricalFlips, check.Equals, p2.empiricalFlips)
}

func (s *parametersSuite) TestWriteReadErrorRatesRoundTrip(c *check.C) {
	names := []string{"rs1", "rs2", "rs3"}
	var p Parameters
	p.Allocate(3)
	p.E = []float64{0.01, 0.02, 0.03}

	var buf bytes.Buffer
	c.Assert(p.WriteErrorRates(&buf, names), check.IsNil)

	var q Parameters
	q.Allocate(3)
	applied, err := q.ReadErrorRates(bytes.NewReader(buf.Bytes()), "erate")
	c.Assert(err, check.IsNil)
	c.Check(applied, check.Equals, true)
	for i := range p.E {
		c.Check(math.Abs(q.E[i]-p.E[i]) < 1e-5, check.Equals, true)
	}
}

func (s *parametersSuite) TestReadErrorRatesShapeMismatchIsNonFatal(c *check.C) {
	var q Parameters
	q.Allocate(3)
	q.E = []float64{0.01, 0.01, 0.01}
	applied, err := q.ReadErrorRates(bytes.NewReader([]byte("MarkerName\tErrorRate\nrs1\t0.5\n")), "erate")
	c.Check(applied, check.Equals, false)
	c.Check(err, check.NotNil)
	c.Check(q.E, check.DeepEquals, []float64{0.01, 0.01, 0.01})
}

func (s *parametersSuite) TestUpdateModelPositiveRates(c *check.C) {
	var p Parameters
	p.Allocate(4)
	p.empiricalCount = 10
	p.empE = []float64{3, 0.2, 5, 4}
	p.empR = []float64{3, 0.5, 2}
	p.empiricalFlips = 2
	p.UpdateModel()
	for _, e := range p.E {
		c.Check(e > 0, check.Equals, true)
	}
	for _, r := range p.R {
		c.Check(r >= 0, check.Equals, true)
	}
}
