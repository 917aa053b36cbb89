// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import "fmt"

// Allele is an encoded biallelic-or-more marker call: 0 means missing,
// 1..4 mean A, C, G, T respectively.
type Allele byte

const (
	Missing Allele = 0
	A       Allele = 1
	C       Allele = 2
	G       Allele = 3
	T       Allele = 4
)

var alleleLabels = [5]string{"", "A", "C", "G", "T"}

// Label returns the upper-case base letter for a, or "" for Missing.
func Label(a Allele) string {
	if int(a) >= len(alleleLabels) {
		return ""
	}
	return alleleLabels[a]
}

// InvalidAlleleError reports an unrecognized allele character.
type InvalidAlleleError struct {
	Char rune
	Line int
}

func (e *InvalidAlleleError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid allele %q on line %d: haplotypes can only contain A/C/G/T (or 1/2/3/4 when translation is enabled) and, where missing data is allowed, one of 0/./N/n", e.Char, e.Line)
	}
	return fmt.Sprintf("invalid allele %q: haplotypes can only contain A/C/G/T (or 1/2/3/4 when translation is enabled) and, where missing data is allowed, one of 0/./N/n", e.Char)
}

// EncodeAllele translates a single haplotype-file character into an Allele.
// When translate is true, '1'..'4' are accepted as aliases for A,C,G,T. When
// allowMissing is true, '0', '.', 'N' and 'n' decode to Missing; otherwise
// they are rejected along with any other unrecognized character.
func EncodeAllele(ch byte, translate, allowMissing bool) (Allele, error) {
	if translate {
		switch ch {
		case '1':
			ch = 'A'
		case '2':
			ch = 'C'
		case '3':
			ch = 'G'
		case '4':
			ch = 'T'
		}
	}
	switch ch {
	case 'A', 'a':
		return A, nil
	case 'C', 'c':
		return C, nil
	case 'G', 'g':
		return G, nil
	case 'T', 't':
		return T, nil
	case '0', '.', 'N', 'n':
		if allowMissing {
			return Missing, nil
		}
	}
	return Missing, &InvalidAlleleError{Char: rune(ch)}
}
