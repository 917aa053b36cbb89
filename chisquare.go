// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"fmt"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

var chisquared = distuv.ChiSquared{K: 1, Src: rand.NewSource(rand.Uint64())}

const chisqThreshold = 15.13

// complementAllele maps A<->T, C<->G, used to test whether a frequency
// mismatch is better explained by a strand flip.
var complementAllele = [5]Allele{0, T, G, C, A}

// CompareFrequencies compares marker allele frequencies between a panel and
// another panel over the markers named by names, using index[i] to find the
// position of names[i] in other's marker space (index[i] < 0 means "not in
// other", skipped). For every marker with a mismatch above the chi-square
// threshold, it returns a human-readable warning line, labeled either
// "Possible strand flip" or "Mismatched frequencies" depending on whether
// the complement-permuted chi-square is smaller.
func (p *Panel) CompareFrequencies(other *Panel, index []int, names []string) []string {
	var warnings []string
	for i := 0; i < p.MarkerCount; i++ {
		if i >= len(index) || index[i] < 0 {
			continue
		}
		j := index[i]
		knownCount := float64(p.KnownCount(i))
		knownCountOther := float64(other.KnownCount(j))

		chisq := markerChiSquare(p, i, other, j, knownCount, knownCountOther, false)
		chisqFlip := markerChiSquare(p, i, other, j, knownCount, knownCountOther, true)

		if chisq > chisqThreshold {
			label := "Mismatched frequencies"
			if chisqFlip < chisq {
				label = "Possible strand flip"
			}
			warnings = append(warnings, formatFrequencyWarning(label, markerName(names, i), p, i, other, j, chisq))
		}
	}
	return warnings
}

// markerChiSquare computes the 2-way chi-square between p's and other's
// allele-count distributions at markers i and j respectively, optionally
// reverse-complementing p's alleles first. Mirrors
// HaplotypeSet::CompareFrequencies.
func markerChiSquare(p *Panel, i int, other *Panel, j int, knownCount, knownCountOther float64, flip bool) float64 {
	var chisq float64
	for a := A; a <= T; a++ {
		pa := a
		if flip {
			pa = complementAllele[a]
		}
		fp := p.Freq[pa][i]
		fo := other.Freq[a][j]
		if fp+fo <= 0 {
			continue
		}
		total := fp*knownCount + fo*knownCountOther
		expected := total / (knownCount + knownCountOther) * knownCount
		delta := fp*knownCount - expected
		chisq += delta * delta / expected
		chisq += delta * delta / (total - expected)
	}
	return chisq
}

func markerName(names []string, i int) string {
	if i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("marker[%d]", i)
}

func formatFrequencyWarning(label, name string, p *Panel, i int, other *Panel, j int, chisq float64) string {
	var alleles, freq1, freq2 []string
	for a := A; a <= T; a++ {
		if p.Freq[a][i]+other.Freq[a][j] > 0 {
			alleles = append(alleles, Label(a))
			freq1 = append(freq1, fmt.Sprintf("%.2f", p.Freq[a][i]))
			freq2 = append(freq2, fmt.Sprintf("%.2f", other.Freq[a][j]))
		}
	}
	pvalue := 1 - chisquared.CDF(chisq)
	return fmt.Sprintf("%s for %q: f[%s] = [%s] vs [%s], chisq %.1f (p=%.2g)",
		label, name, strings.Join(alleles, ","), strings.Join(freq1, ","), strings.Join(freq2, ","), chisq, pvalue)
}
