// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import "gopkg.in/check.v1"

type chisquareSuite struct{}

var _ = check.Suite(&chisquareSuite{})

func freqPanel(aFreq, tFreq float64, knownCount int) *Panel {
	p := NewPanel(knownCount, 1)
	for i := range p.alleles {
		p.alleles[i] = A // all non-missing, so KnownCount == knownCount
	}
	p.Freq[A] = []float64{aFreq}
	p.Freq[C] = []float64{0}
	p.Freq[G] = []float64{0}
	p.Freq[T] = []float64{tFreq}
	return p
}

func (s *chisquareSuite) TestStrandFlipDetected(c *check.C) {
	target := freqPanel(0.9, 0.1, 1000)
	ref := freqPanel(0.1, 0.9, 1000)
	warnings := target.CompareFrequencies(ref, []int{0}, []string{"m1"})
	c.Assert(len(warnings), check.Equals, 1)
	c.Check(warnings[0], matchesSubstring, "Possible strand flip")
}

func (s *chisquareSuite) TestNoWarningWhenFrequenciesAgree(c *check.C) {
	target := freqPanel(0.5, 0.5, 1000)
	ref := freqPanel(0.5, 0.5, 1000)
	warnings := target.CompareFrequencies(ref, []int{0}, []string{"m1"})
	c.Check(warnings, check.HasLen, 0)
}

type substringChecker struct{ *check.CheckerInfo }

var matchesSubstring = &substringChecker{
	&check.CheckerInfo{Name: "Contains", Params: []string{"value", "substring"}},
}

func (checker *substringChecker) Check(params []interface{}, names []string) (result bool, error string) {
	value, ok1 := params[0].(string)
	substr, ok2 := params[1].(string)
	if !ok1 || !ok2 {
		return false, "both params must be strings"
	}
	for i := 0; i+len(substr) <= len(value); i++ {
		if value[i:i+len(substr)] == substr {
			return true, ""
		}
	}
	return false, ""
}
