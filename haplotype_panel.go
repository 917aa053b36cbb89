// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// MarkerCountMismatchError reports a haplotype record whose concatenated
// allele tokens don't add up to the expected marker count.
type MarkerCountMismatchError struct {
	Label      string
	Line       int
	Haplotype  int
	Got, Want  int
}

func (e *MarkerCountMismatchError) Error() string {
	return fmt.Sprintf("haplotype file format not recognized: haplotype #%d (%q, line %d) has %d allele characters, want %d (check that the number of markers matches the SNP list)",
		e.Haplotype, e.Label, e.Line, e.Got, e.Want)
}

// Panel is a matrix of encoded alleles for H haplotypes over M markers,
// stored row-major in a single contiguous buffer with stride M. It owns no
// marker names; callers pair a Panel with a MarkerIndex.
type Panel struct {
	Count       int // H
	MarkerCount int // M
	alleles     []Allele
	Labels      []string

	// Freq[a][m] for a in {1..4}; Freq[0] is unused (kept nil) so that
	// Freq[allele][m] indexes directly by Allele value.
	Freq  [5][]float64
	Major []Allele
}

// NewPanel allocates an empty H×M panel.
func NewPanel(h, m int) *Panel {
	p := &Panel{Count: h, MarkerCount: m, alleles: make([]Allele, h*m), Labels: make([]string, h)}
	return p
}

// Row returns the allele slice for haplotype i, a view into the shared
// buffer (no copy).
func (p *Panel) Row(i int) []Allele {
	return p.alleles[i*p.MarkerCount : (i+1)*p.MarkerCount]
}

func (p *Panel) At(i, m int) Allele { return p.alleles[i*p.MarkerCount+m] }

func (p *Panel) set(i, m int, a Allele) { p.alleles[i*p.MarkerCount+m] = a }

// LoadPanel reads a whitespace-separated haplotype file: each non-blank line
// is "LABEL token...", where the concatenation of the tokens must equal
// exactly markerCount allele characters. The stream is read twice (once to
// count haplotypes, once to decode), matching HaplotypeSet::LoadHaplotypes.
func LoadPanel(r io.ReaderAt, size int64, markerCount int, translate, allowMissing bool) (*Panel, error) {
	count, err := countHaplotypeLines(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, err
	}
	if count == 0 || markerCount == 0 {
		return NewPanel(0, markerCount), nil
	}
	p := NewPanel(count, markerCount)
	sc := bufferedLines(io.NewSectionReader(r, 0, size))
	line, index := 0, 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		p.Labels[index] = fields[0]
		tokens := fields[1:]
		total := 0
		for _, tok := range tokens {
			total += len(tok)
		}
		if total != markerCount {
			return nil, &MarkerCountMismatchError{Label: fields[0], Line: line, Haplotype: index + 1, Got: total, Want: markerCount}
		}
		m := 0
		for _, tok := range tokens {
			for i := 0; i < len(tok); i++ {
				a, err := EncodeAllele(tok[i], translate, allowMissing)
				if err != nil {
					if ia, ok := err.(*InvalidAlleleError); ok {
						ia.Line = line
					}
					return nil, err
				}
				p.set(index, m, a)
				m++
			}
		}
		index++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func countHaplotypeLines(r io.Reader) (int, error) {
	sc := bufferedLines(r)
	n := 0
	for sc.Scan() {
		if len(strings.Fields(sc.Text())) > 0 {
			n++
		}
	}
	return n, sc.Err()
}

// ClipHaplotypes keeps markers [first, last] inclusive, clamping first to >=0
// and last to <= MarkerCount-1; if first > last after clamping, it collapses
// to the single marker at last.
func (p *Panel) ClipHaplotypes(first, last int) {
	if first < 0 {
		first = 0
	}
	if last < 0 || last >= p.MarkerCount {
		last = p.MarkerCount - 1
	}
	if first > last {
		first = last
	}
	newM := last - first + 1
	newAlleles := make([]Allele, p.Count*newM)
	for i := 0; i < p.Count; i++ {
		copy(newAlleles[i*newM:(i+1)*newM], p.alleles[i*p.MarkerCount+first:i*p.MarkerCount+first+newM])
	}
	p.alleles = newAlleles
	p.MarkerCount = newM
	p.Freq = [5][]float64{}
	p.Major = nil
}

// CalculateFrequencies counts each non-missing allele per marker and
// normalizes columns whose total is non-zero to sum to 1.
func (p *Panel) CalculateFrequencies() {
	for a := A; a <= T; a++ {
		p.Freq[a] = make([]float64, p.MarkerCount)
	}
	for i := 0; i < p.Count; i++ {
		row := p.Row(i)
		for m, al := range row {
			if al != Missing {
				p.Freq[al][m]++
			}
		}
	}
	for m := 0; m < p.MarkerCount; m++ {
		sum := p.Freq[A][m] + p.Freq[C][m] + p.Freq[G][m] + p.Freq[T][m]
		if sum == 0 {
			continue
		}
		scale := 1.0 / sum
		for a := A; a <= T; a++ {
			p.Freq[a][m] *= scale
		}
	}
}

// KnownCount returns the number of non-missing alleles observed at marker m.
func (p *Panel) KnownCount(m int) int {
	n := 0
	for i := 0; i < p.Count; i++ {
		if p.At(i, m) != Missing {
			n++
		}
	}
	return n
}

// ListMajorAlleles sets Major[m] to the allele with the highest count at m,
// ties broken toward the larger allele code (scan starts at A, i>=major wins
// starting from C).
func (p *Panel) ListMajorAlleles() {
	p.Major = make([]Allele, p.MarkerCount)
	var counts [5]int
	for m := 0; m < p.MarkerCount; m++ {
		counts = [5]int{}
		for i := 0; i < p.Count; i++ {
			counts[p.At(i, m)]++
		}
		major := A
		for a := C; a <= T; a++ {
			if counts[a] >= counts[major] {
				major = a
			}
		}
		p.Major[m] = major
	}
}

// MajorAlleleLabel returns the base letter of the most frequent allele at m,
// from Freq (ties broken toward the larger allele code, same rule as
// ListMajorAlleles).
func (p *Panel) MajorAlleleLabel(m int) string {
	hi := A
	for a := C; a <= T; a++ {
		if p.Freq[a][m] >= p.Freq[hi][m] {
			hi = a
		}
	}
	return Label(hi)
}

// MinorAlleleLabel returns the base letter of the most frequent allele at m
// other than the major allele (the one MajorAlleleLabel reports), ties
// broken toward the smaller allele code. Where no other allele has non-zero
// frequency, it returns "T".
func (p *Panel) MinorAlleleLabel(m int) string {
	hi := A
	for a := C; a <= T; a++ {
		if p.Freq[a][m] >= p.Freq[hi][m] {
			hi = a
		}
	}
	lo := A
	if hi == A {
		lo = C
	}
	for lo < T && (lo == hi || p.Freq[lo][m] == 0) {
		lo++
	}
	for a := lo + 1; a <= T; a++ {
		if a != hi && p.Freq[a][m] > p.Freq[lo][m] {
			lo = a
		}
	}
	return Label(lo)
}

// Checksum returns a content fingerprint of the panel's allele matrix, so
// that two runs against nominally-the-same reference panel can be
// correlated in logs without diffing the input file.
func (p *Panel) Checksum() [blake2b.Size256]byte {
	buf := make([]byte, len(p.alleles))
	for i, a := range p.alleles {
		buf[i] = byte(a)
	}
	return blake2b.Sum256(buf)
}

