// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"fmt"
	"sync/atomic"

	"gopkg.in/check.v1"
)

type roundSuite struct{}

var _ = check.Suite(&roundSuite{})

func (s *roundSuite) TestThrottleLimitsConcurrency(c *check.C) {
	th := &throttle{Max: 2}
	var active, maxActive int32

	for i := 0; i < 8; i++ {
		err := th.Go(func() error {
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxActive)
				if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
					break
				}
			}
			atomic.AddInt32(&active, -1)
			return nil
		})
		c.Assert(err, check.IsNil)
	}
	c.Assert(th.Wait(), check.IsNil)
	c.Check(maxActive <= 2, check.Equals, true)
}

func (s *roundSuite) TestThrottleShortCircuitsOnError(c *check.C) {
	th := &throttle{Max: 1}
	boom := fmt.Errorf("boom")

	var ran int32
	_ = th.Go(func() error { return boom })
	_ = th.Wait()

	err := th.Go(func() error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	c.Check(err, check.Equals, boom)
	_ = th.Wait()
	c.Check(atomic.LoadInt32(&ran), check.Equals, int32(0))
}

func (s *roundSuite) TestGroupIndividuals(c *check.C) {
	groups := GroupIndividuals([]string{"a", "a", "b", "c", "c", "c"})
	c.Assert(groups, check.HasLen, 3)
	c.Check(groups[0], check.Equals, [2]int{0, 2})
	c.Check(groups[1], check.Equals, [2]int{2, 3})
	c.Check(groups[2], check.Equals, [2]int{3, 6})
}

func (s *roundSuite) TestGroupIndividualsEmpty(c *check.C) {
	c.Check(GroupIndividuals(nil), check.HasLen, 0)
}

func (s *roundSuite) TestLeaveOneOutRowsExcludesIndex(c *check.C) {
	rows := [][]Allele{{A}, {C}, {G}, {T}}
	out := LeaveOneOutRows(rows, 1)
	c.Assert(out, check.HasLen, 3)
	c.Check(out[0][0], check.Equals, A)
	c.Check(out[1][0], check.Equals, G)
	c.Check(out[2][0], check.Equals, T)
}

func toyPanels(c *check.C) (reference, target *Panel) {
	reference = loadPanelString(c, "ref1 ACGT\nref2 ACGT\nref3 ACGT\nref4 TGCA\n", 4, false, false)
	reference.Labels = []string{"ref1", "ref2", "ref3", "ref4"}
	reference.CalculateFrequencies()
	reference.ListMajorAlleles()

	target = loadPanelString(c, "s1a ACGT\ns1b ACGT\ns2a TGCA\ns2b TGCA\n", 4, false, false)
	target.Labels = []string{"s1", "s1", "s2", "s2"}
	return
}

func (s *roundSuite) TestRunRoundsAndImputeIndividualsEndToEnd(c *check.C) {
	reference, target := toyPanels(c)

	var params Parameters
	params.Allocate(reference.MarkerCount)
	for i := range params.E {
		params.E[i] = 0.01
	}
	for i := range params.R {
		params.R[i] = 0.01
	}

	cfg := RoundConfig{Rounds: 2, States: 4, EM: true, Workers: 2, Seed: 7}
	c.Assert(RunRounds(cfg, reference, target, &params), check.IsNil)

	for _, e := range params.E {
		c.Check(e > 0, check.Equals, true)
	}

	var stats Statistics
	stats.Allocate(reference.MarkerCount)
	results, err := ImputeIndividuals(cfg, reference, target, &params, &stats)
	c.Assert(err, check.IsNil)
	c.Assert(results, check.HasLen, 2)
	for _, r := range results {
		c.Assert(r.Haplotypes, check.HasLen, 2)
		c.Assert(len(r.ImputedDose), check.Equals, reference.MarkerCount)
	}
}
