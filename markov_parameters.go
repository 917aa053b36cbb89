// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const fudge = 1e-30

// Parameters holds the per-marker error rate E, per-interval crossover rate
// R, and the empirical accumulators used to re-estimate them, for a panel of
// M markers. A worker's Parameters is a private CopyParameters snapshot of
// the round's shared model; contributions accumulate into empE/empR/
// empiricalFlips/empiricalCount and are merged with Add.
type Parameters struct {
	M int

	E []float64 // length M, E[m] in (0,1)
	R []float64 // length M-1, R[m] in [0,1]

	empE []float64 // length M
	empR []float64 // length M-1

	empiricalFlipRate float64
	empiricalFlips    float64
	empiricalCount    float64
}

// Allocate initializes a fresh Parameters for m markers: E and R start at
// zero (the caller typically follows with defaults or ReadErrorRates/
// ReadCrossoverRates), empirical accumulators are zeroed, and
// empiricalFlipRate starts at 0.80.
func (p *Parameters) Allocate(m int) {
	p.M = m
	p.E = make([]float64, m)
	p.R = make([]float64, maxInt(m-1, 0))
	p.empE = make([]float64, m)
	p.empR = make([]float64, maxInt(m-1, 0))
	p.empiricalFlipRate = 0.80
	p.empiricalCount = 0
	p.empiricalFlips = 0
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Add accumulates rhs's empirical accumulators into p (the merge step of
// spec §5: commutative, associative up to floating-point order).
func (p *Parameters) Add(rhs *Parameters) {
	p.empiricalCount += rhs.empiricalCount
	p.empiricalFlips += rhs.empiricalFlips
	for i := 0; i < p.M-1; i++ {
		p.empE[i] += rhs.empE[i]
		p.empR[i] += rhs.empR[i]
	}
	p.empE[p.M-1] += rhs.empE[p.M-1]
}

// CopyParameters makes p a worker-private snapshot of rhs: E, R and
// empiricalFlipRate are copied; empirical accumulators are freshly zeroed.
func (p *Parameters) CopyParameters(rhs *Parameters) {
	p.M = rhs.M
	p.empiricalFlipRate = rhs.empiricalFlipRate
	p.E = append([]float64(nil), rhs.E...)
	p.R = append([]float64(nil), rhs.R...)
	p.empiricalCount = 0
	p.empiricalFlips = 0
	p.empE = make([]float64, p.M)
	p.empR = make([]float64, maxInt(p.M-1, 0))
}

// ParameterFileShapeMismatchError is non-fatal: the caller should log it and
// keep whatever defaults were already in place.
type ParameterFileShapeMismatchError struct {
	Path          string
	GotLines      int
	WantLines     int
}

func (e *ParameterFileShapeMismatchError) Error() string {
	return fmt.Sprintf("%s has %d lines, expected %d; ignoring file and keeping default rates", e.Path, e.GotLines, e.WantLines)
}

// ReadErrorRates reads a "MarkerName\tErrorRate" file with a header line
// plus exactly M data lines, and overwrites E element-wise from column 1. It
// returns (false, non-nil) without modifying E on a shape mismatch, and
// (false, err) on a read error.
func (p *Parameters) ReadErrorRates(r io.Reader, path string) (bool, error) {
	lines, err := readAllLines(r)
	if err != nil {
		return false, err
	}
	if len(lines) != p.M+1 {
		return false, &ParameterFileShapeMismatchError{Path: path, GotLines: len(lines), WantLines: p.M + 1}
	}
	log.Infof("updating error rates using data in %s", path)
	for i := 0; i < p.M; i++ {
		fields := strings.Fields(lines[i+1])
		if len(fields) >= 2 {
			if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
				p.E[i] = v
			}
		}
	}
	return true, nil
}

// ReadCrossoverRates reads an "Interval\tSwitchRate" file with a header line
// plus exactly M-1 data lines (the original format requires M total lines
// including the header, consistent with spec §4.3), overwriting R
// element-wise from column 1.
func (p *Parameters) ReadCrossoverRates(r io.Reader, path string) (bool, error) {
	lines, err := readAllLines(r)
	if err != nil {
		return false, err
	}
	if len(lines) != p.M {
		return false, &ParameterFileShapeMismatchError{Path: path, GotLines: len(lines), WantLines: p.M}
	}
	log.Infof("updating crossover rates using data in %s", path)
	for i := 0; i < p.M-1; i++ {
		fields := strings.Fields(lines[i+1])
		if len(fields) >= 2 {
			if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
				p.R[i] = v
			}
		}
	}
	return true, nil
}

func readAllLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<24)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// WriteErrorRates writes the "MarkerName\tErrorRate" format, 5 significant
// figures per rate, given markerNames of length M.
func (p *Parameters) WriteErrorRates(w io.Writer, markerNames []string) error {
	if _, err := fmt.Fprint(w, "MarkerName\tErrorRate\n"); err != nil {
		return err
	}
	for i := 0; i < p.M; i++ {
		if _, err := fmt.Fprintf(w, "%s\t%.5g\n", markerNames[i], p.E[i]); err != nil {
			return err
		}
	}
	return nil
}

// WriteCrossoverRates writes the "Interval\tSwitchRate" format.
func (p *Parameters) WriteCrossoverRates(w io.Writer, markerNames []string) error {
	if _, err := fmt.Fprint(w, "Interval\tSwitchRate\n"); err != nil {
		return err
	}
	for i := 0; i < p.M-1; i++ {
		if _, err := fmt.Fprintf(w, "%s-%s\t%.5g\n", markerNames[i], markerNames[i+1], p.R[i]); err != nil {
			return err
		}
	}
	return nil
}

// UpdateModel folds this round's empirical accumulators back into E and R,
// and resets the accumulators to zero. Background (uninformative-marker)
// rates are estimated from markers whose accumulated counts fall below the
// informative threshold; every divisor carries the +1e-30 underflow guard.
//
// The final marker's informative-E threshold is "> 2" where every other
// marker/interval uses "< 1"/">= 2"; this asymmetry is preserved from the
// original implementation rather than corrected (spec §9 Open Questions).
func (p *Parameters) UpdateModel() {
	scale := 1.0 / p.empiricalCount

	var backgroundR, backgroundE float64
	var backgroundEcount, backgroundRcount int

	for i := 0; i < p.M; i++ {
		if p.empE[i] < 1.0 {
			backgroundE += p.empE[i]
			backgroundEcount++
		}
		if i < p.M-1 && p.empR[i] < 2.0 {
			backgroundR += p.empR[i]
			backgroundRcount++
		}
	}

	backgroundR /= p.empiricalCount*float64(backgroundRcount) + fudge
	backgroundE /= p.empiricalCount*float64(backgroundEcount) + fudge

	var empRSum float64
	for _, v := range p.empR {
		empRSum += v
	}
	p.empiricalFlipRate = p.empiricalFlips / (empRSum + fudge)

	for i := 0; i < p.M-1; i++ {
		if p.empR[i] >= 2.0 {
			p.R[i] = p.empR[i] * scale
		} else {
			p.R[i] = backgroundR
		}
		if p.empE[i] >= 1.0 {
			p.E[i] = p.empE[i] * scale
		} else {
			p.E[i] = backgroundE
		}
		p.empR[i] = 0
		p.empE[i] = 0
	}

	if p.empE[p.M-1] > 2 {
		p.E[p.M-1] = p.empE[p.M-1] * scale
	} else {
		p.E[p.M-1] = backgroundE
	}
	p.empE[p.M-1] = 0

	p.empiricalCount = 0
	p.empiricalFlips = 0
}
