// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"

	log "github.com/sirupsen/logrus"
)

// Config holds one end-to-end imputation run's settings: the CLI surface
// described in spec §6, translated into a plain struct so RunCommand stays
// thin wiring over this.
type Config struct {
	RefHapsPath string
	RefSnpsPath string
	HapsPath    string
	SnpsPath    string
	RecPath     string
	EratePath   string

	Rounds int
	States int
	EM     bool

	Prefix  string
	Phased  bool
	Gzip    bool
	Workers int
	Seed    uint64

	Start string
	Stop  string
}

// DefaultConfig returns the spec §6 flag defaults.
func DefaultConfig() Config {
	return Config{
		Rounds:  5,
		States:  200,
		Prefix:  "minimac",
		Workers: 1,
		Seed:    1,
	}
}

// Run performs one full imputation: load panels, clip the reference to the
// target's window, estimate model parameters over cfg.Rounds rounds, impute
// every target individual, and write the P.* output files.
func Run(cfg Config, stderr io.Writer) error {
	refSnpNames, err := readMarkerNames(cfg.RefSnpsPath)
	if err != nil {
		return err
	}
	targetSnpNames, err := readMarkerNames(cfg.SnpsPath)
	if err != nil {
		return err
	}

	reference, err := loadPanelFile(cfg.RefHapsPath, len(refSnpNames), true, true)
	if err != nil {
		return err
	}
	log.Infof("reference panel checksum %x", reference.Checksum())
	targetRaw, err := loadPanelFile(cfg.HapsPath, len(targetSnpNames), true, true)
	if err != nil {
		return err
	}

	reference.CalculateFrequencies()
	reference.ListMajorAlleles()

	refIndex := NewMarkerIndex(refSnpNames)
	positions := TargetPositions(refIndex, targetSnpNames)
	if !anyPresent(positions) {
		return &NoMarkerOverlapError{Diff: DescribeMismatch(targetSnpNames, refSnpNames)}
	}

	if ooo := OutOfOrderMarkers(refIndex, targetSnpNames); len(ooo) > 0 {
		logOutOfOrder(ooo)
	}

	refIndex, err = ClipReference(reference, refIndex, targetSnpNames, cfg.Start, cfg.Stop)
	if err != nil {
		return err
	}

	target, genotyped := AlignTargetToReference(targetRaw, refIndex, targetSnpNames)

	target.CalculateFrequencies()
	overlap := make([]int, len(genotyped))
	for m, g := range genotyped {
		overlap[m] = -1
		if g {
			overlap[m] = m
		}
	}
	for _, w := range reference.CompareFrequencies(target, overlap, refIndex.Names) {
		log.Warn(w)
	}

	var params Parameters
	params.Allocate(reference.MarkerCount)
	for i := range params.E {
		params.E[i] = 0.01
	}
	for i := range params.R {
		params.R[i] = 0.001
	}
	if cfg.EratePath != "" {
		if err := applyParameterFile(cfg.EratePath, func(r io.Reader, path string) (bool, error) {
			return params.ReadErrorRates(r, path)
		}); err != nil {
			log.Warn(err)
		}
	}
	if cfg.RecPath != "" {
		if err := applyParameterFile(cfg.RecPath, func(r io.Reader, path string) (bool, error) {
			return params.ReadCrossoverRates(r, path)
		}); err != nil {
			log.Warn(err)
		}
	}

	if err := writeInfoDraft(cfg, reference, refIndex, genotyped); err != nil {
		return err
	}

	roundCfg := RoundConfig{Rounds: cfg.Rounds, States: cfg.States, EM: cfg.EM, Workers: cfg.Workers, Seed: cfg.Seed}
	if err := RunRounds(roundCfg, reference, target, &params); err != nil {
		return err
	}

	var stats Statistics
	stats.Allocate(reference.MarkerCount)
	results, err := ImputeIndividuals(roundCfg, reference, target, &params, &stats)
	if err != nil {
		return err
	}

	return writeOutputs(cfg, reference, refIndex, &params, &stats, results, genotyped)
}

func anyPresent(positions []int) bool {
	for _, p := range positions {
		if p >= 0 {
			return true
		}
	}
	return false
}

func logOutOfOrder(names []string) {
	shown := names
	if len(shown) > 10 {
		shown = shown[:10]
	}
	log.Warnf("%d target markers are out of order relative to the reference: %v", len(names), shown)
}

func readMarkerNames(path string) ([]string, error) {
	r, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	sc := bufferedLines(r)
	var names []string
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			names = append(names, line)
		}
	}
	return names, sc.Err()
}

// loadPanelFile opens path (transparently decompressing .gz, since
// LoadPanel needs io.ReaderAt and a gzip stream cannot provide one) and
// loads it as a haplotype panel.
func loadPanelFile(path string, markerCount int, translate, allowMissing bool) (*Panel, error) {
	r, size, err := openPanelSource(path)
	if err != nil {
		return nil, err
	}
	return LoadPanel(r, size, markerCount, translate, allowMissing)
}

func openPanelSource(path string) (io.ReaderAt, int64, error) {
	if isGzipPath(path) {
		r, err := openInput(path)
		if err != nil {
			return nil, 0, err
		}
		defer r.Close()
		data, err := ioutil.ReadAll(r)
		if err != nil {
			return nil, 0, &FileOpenFailedError{Path: path, Err: err}
		}
		return bytes.NewReader(data), int64(len(data)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, &FileOpenFailedError{Path: path, Err: err}
	}
	stat, err := f.Stat()
	if err != nil {
		return nil, 0, &FileOpenFailedError{Path: path, Err: err}
	}
	return f, stat.Size(), nil
}

func applyParameterFile(path string, apply func(io.Reader, string) (bool, error)) error {
	r, err := openInput(path)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = apply(r, path)
	return err
}

// AlignTargetToReference re-indexes target (whose markers are in its own
// --snps order) into the reference's clipped marker order: reference
// markers absent from the target get Missing at every haplotype. It
// returns the re-indexed panel and a genotyped flag per reference marker
// (true if that marker was present in the target's own SNP list, i.e. was
// actually typed rather than purely imputed).
func AlignTargetToReference(target *Panel, refIndex *MarkerIndex, targetMarkerNames []string) (*Panel, []bool) {
	aligned := NewPanel(target.Count, len(refIndex.Names))
	aligned.Labels = append([]string(nil), target.Labels...)
	genotyped := make([]bool, len(refIndex.Names))

	for col, name := range targetMarkerNames {
		refPos := refIndex.Position(name)
		if refPos < 0 {
			continue
		}
		genotyped[refPos] = true
		for h := 0; h < target.Count; h++ {
			aligned.set(h, refPos, target.At(h, col))
		}
	}
	return aligned, genotyped
}

func writeInfoDraft(cfg Config, reference *Panel, refIndex *MarkerIndex, genotyped []bool) error {
	w, err := createOutput(cfg.Prefix+".info.draft", false)
	if err != nil {
		return err
	}
	defer w.Close()

	rows := make([]InfoDraftRow, reference.MarkerCount)
	for m := 0; m < reference.MarkerCount; m++ {
		rows[m] = InfoDraftRow{
			Name:      refIndex.Names[m],
			Al1:       reference.MajorAlleleLabel(m),
			Al2:       reference.MinorAlleleLabel(m),
			Freq1:     reference.Freq[reference.Major[m]][m],
			Genotyped: genotyped[m],
		}
	}
	return WriteInfoDraft(w, rows)
}

func writeOutputs(cfg Config, reference *Panel, refIndex *MarkerIndex, params *Parameters, stats *Statistics, results []IndividualResult, genotyped []bool) error {
	if err := writeTSV(cfg.Prefix+".erate", cfg.Gzip, func(w io.Writer) error {
		return params.WriteErrorRates(w, refIndex.Names)
	}); err != nil {
		return err
	}
	if err := writeTSV(cfg.Prefix+".rec", cfg.Gzip, func(w io.Writer) error {
		return params.WriteCrossoverRates(w, refIndex.Names)
	}); err != nil {
		return err
	}

	start, stop := 0, reference.MarkerCount-1
	if err := writeTSV(cfg.Prefix+".dose", cfg.Gzip, func(w io.Writer) error {
		return WriteDose(w, results, start, stop)
	}); err != nil {
		return err
	}

	if cfg.Phased {
		if err := writeTSV(cfg.Prefix+".hapDose", cfg.Gzip, func(w io.Writer) error {
			return WriteHapDose(w, results, start, stop)
		}); err != nil {
			return err
		}
		if err := writeTSV(cfg.Prefix+".haps", cfg.Gzip, func(w io.Writer) error {
			return WriteHaps(w, results, start, stop)
		}); err != nil {
			return err
		}
	}

	rows := make([]InfoRow, reference.MarkerCount)
	for m := 0; m < reference.MarkerCount; m++ {
		rows[m] = InfoRow{
			Name:      refIndex.Names[m],
			Al1:       reference.MajorAlleleLabel(m),
			Al2:       reference.MinorAlleleLabel(m),
			Freq1:     reference.Freq[reference.Major[m]][m],
			Genotyped: genotyped[m],
		}
	}
	return writeTSV(cfg.Prefix+".info", cfg.Gzip, func(w io.Writer) error {
		return WriteInfo(w, rows, stats)
	})
}

func writeTSV(path string, gz bool, write func(io.Writer) error) error {
	w, err := createOutput(path, gz)
	if err != nil {
		return err
	}
	defer w.Close()
	return write(w)
}
