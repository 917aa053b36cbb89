// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import "gopkg.in/check.v1"

type markerIndexSuite struct{}

var _ = check.Suite(&markerIndexSuite{})

func refPanel(c *check.C, names []string) (*Panel, *MarkerIndex) {
	p := NewPanel(2, len(names))
	for i := range p.alleles {
		p.alleles[i] = A
	}
	return p, NewMarkerIndex(names)
}

func (s *markerIndexSuite) TestNoClipWhenStartStopEmpty(c *check.C) {
	ref, idx := refPanel(c, []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9", "m10"})
	target := []string{"m4", "m5", "m7"}
	newIdx, err := ClipReference(ref, idx, target, "", "")
	c.Assert(err, check.IsNil)
	c.Check(newIdx, check.Equals, idx)
	c.Check(ref.MarkerCount, check.Equals, 10)
}

func (s *markerIndexSuite) TestClipToWindow(c *check.C) {
	ref, idx := refPanel(c, []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9", "m10"})
	target := []string{"m4", "m5", "m7"}
	newIdx, err := ClipReference(ref, idx, target, "m3", "m8")
	c.Assert(err, check.IsNil)
	c.Check(ref.MarkerCount, check.Equals, 4)
	c.Check(newIdx.Names, check.DeepEquals, []string{"m4", "m5", "m6", "m7"})
}

func (s *markerIndexSuite) TestOutOfOrderMarkers(c *check.C) {
	_, idx := refPanel(c, []string{"m1", "m2", "m3", "m4", "m5"})
	target := []string{"m1", "m3", "m2", "m5", "m4"}
	ooo := OutOfOrderMarkers(idx, target)
	c.Check(len(ooo) > 0, check.Equals, true)
}
