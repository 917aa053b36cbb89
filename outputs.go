// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"bufio"
	"fmt"
	"io"
)

// WriteDose writes the P.dose format: one line per individual,
// "LABEL\tDOSE\td1\td2...\tdN" where dj is that individual's
// summed-over-haplotypes imputed dose at marker startIndex+j, to 3
// decimals. "DOSE" is a literal column-type token, kept for compatibility
// with downstream tools that sniff it.
func WriteDose(w io.Writer, results []IndividualResult, startIndex, stopIndex int) error {
	bw := bufio.NewWriter(w)
	for _, r := range results {
		if _, err := fmt.Fprintf(bw, "%s\tDOSE", r.Label); err != nil {
			return err
		}
		for m := startIndex; m <= stopIndex; m++ {
			if _, err := fmt.Fprintf(bw, "\t%.3f", r.ImputedDose[m]); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString("\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteHapDose writes the --phased P.hapDose format: one line per
// haplotype with its per-marker dose.
func WriteHapDose(w io.Writer, results []IndividualResult, startIndex, stopIndex int) error {
	bw := bufio.NewWriter(w)
	for _, r := range results {
		for _, h := range r.Haplotypes {
			if _, err := fmt.Fprintf(bw, "%s", h.Label); err != nil {
				return err
			}
			for m := startIndex; m <= stopIndex; m++ {
				if _, err := fmt.Fprintf(bw, "\t%.3f", h.ImputedHap[m]); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteHaps writes the --phased P.haps format: one line per haplotype with
// MLE allele characters, grouped into blocks of 8 separated by spaces.
func WriteHaps(w io.Writer, results []IndividualResult, startIndex, stopIndex int) error {
	bw := bufio.NewWriter(w)
	for _, r := range results {
		for _, h := range r.Haplotypes {
			if _, err := fmt.Fprintf(bw, "%s ", h.Label); err != nil {
				return err
			}
			for m := startIndex; m <= stopIndex; m++ {
				if (m-startIndex)%8 == 0 && m != startIndex {
					if _, err := bw.WriteString(" "); err != nil {
						return err
					}
				}
				label := lowerLabel(h.ImputedAlleles[m])
				if _, err := bw.WriteString(label); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func lowerLabel(a Allele) string {
	switch a {
	case A:
		return "a"
	case C:
		return "c"
	case G:
		return "g"
	case T:
		return "t"
	default:
		return "."
	}
}

// InfoDraftRow is one marker's row in P.info.draft, produced before final
// statistics are available (the clipped-window listing).
type InfoDraftRow struct {
	Name      string
	Al1, Al2  string
	Freq1     float64
	Genotyped bool
}

// WriteInfoDraft writes the P.info.draft format: header
// "SNP\tAl1\tAl2\tFreq1\tGenotyped" plus one row per marker in the clipped
// reference window.
func WriteInfoDraft(w io.Writer, rows []InfoDraftRow) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("SNP\tAl1\tAl2\tFreq1\tGenotyped\n"); err != nil {
		return err
	}
	for _, r := range rows {
		genotyped := "-"
		if r.Genotyped {
			genotyped = "Genotyped"
		}
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%.4f\t%s\n", r.Name, r.Al1, r.Al2, r.Freq1, genotyped); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// InfoRow is one marker's row in the final P.info file.
type InfoRow struct {
	Name      string
	Al1, Al2  string
	Freq1     float64
	Genotyped bool
}

// WriteInfo writes the final P.info format: header
// "SNP\tAl1\tAl2\tFreq1\tMAF\tAvgCall\tRsq\tGenotyped\tLooRsq\tEmpR\tEmpRsq\tDose1\tDose2",
// with genotype-only columns ("LooRsq", "EmpR", "EmpRsq", "Dose1", "Dose2")
// set to "-" on rows where Genotyped is false.
func WriteInfo(w io.Writer, rows []InfoRow, stats *Statistics) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("SNP\tAl1\tAl2\tFreq1\tMAF\tAvgCall\tRsq\tGenotyped\tLooRsq\tEmpR\tEmpRsq\tDose1\tDose2\n"); err != nil {
		return err
	}
	for m, r := range rows {
		maf := r.Freq1
		if maf > 0.5 {
			maf = 1 - maf
		}
		genotyped := "-"
		loo, empR, empRsq, dose1, dose2 := "-", "-", "-", "-", "-"
		if r.Genotyped {
			genotyped = "Genotyped"
			loo = fmt.Sprintf("%.4f", stats.LooRsq(m))
			empR = fmt.Sprintf("%.4f", stats.EmpiricalR(m))
			empRsq = fmt.Sprintf("%.4f", stats.EmpiricalRsq(m))
			dose1 = fmt.Sprintf("%.4f", stats.LooMajorDose(m))
			dose2 = fmt.Sprintf("%.4f", stats.LooMinorDose(m))
		}
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%.4f\t%.4f\t%.4f\t%.4f\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Name, r.Al1, r.Al2, r.Freq1, maf, stats.AverageCallScore(m), stats.Rsq(m), genotyped,
			loo, empR, empRsq, dose1, dose2); err != nil {
			return err
		}
	}
	return bw.Flush()
}
