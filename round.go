// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// throttle bounds concurrency to Max simultaneous Go() callers and
// short-circuits remaining work after the first error.
type throttle struct {
	Max       int
	wg        sync.WaitGroup
	ch        chan bool
	err       atomic.Value
	setupOnce sync.Once
	errorOnce sync.Once
}

func (t *throttle) acquire() {
	t.setupOnce.Do(func() {
		if t.Max < 1 {
			panic("throttle.Max < 1")
		}
		t.ch = make(chan bool, t.Max)
	})
	t.wg.Add(1)
	t.ch <- true
}

func (t *throttle) release() {
	t.wg.Done()
	<-t.ch
}

func (t *throttle) report(err error) {
	if err != nil {
		t.errorOnce.Do(func() { t.err.Store(err) })
	}
}

func (t *throttle) Err() error {
	err, _ := t.err.Load().(error)
	return err
}

func (t *throttle) Wait() error {
	t.wg.Wait()
	return t.Err()
}

// Go runs f in a new goroutine once a slot is free, unless an earlier call
// already reported an error, in which case it declines to start f and
// returns that error immediately.
func (t *throttle) Go(f func() error) error {
	t.acquire()
	if t.Err() != nil {
		t.release()
		return t.Err()
	}
	go func() {
		t.report(f())
		t.release()
	}()
	return nil
}

// RoundConfig holds the fitting schedule: how many rounds to run, how many
// reference states to model, whether to use EM (CountExpected) instead of
// stochastic profiling, the worker concurrency cap, and the RNG seed used
// to derive per-worker RNGs for ProfileModel.
type RoundConfig struct {
	Rounds  int
	States  int
	EM      bool
	Workers int
	Seed    uint64
}

// LeaveOneOutRows returns a view of rows with index exclude removed: an
// O(len(rows)) scatter-gather of row slices, sharing the underlying allele
// storage with rows (no copy).
func LeaveOneOutRows(rows [][]Allele, exclude int) [][]Allele {
	out := make([][]Allele, 0, len(rows)-1)
	for i, row := range rows {
		if i == exclude {
			continue
		}
		out = append(out, row)
	}
	return out
}

// ReferenceRows returns the first n rows of a panel as a haplotype-state
// view, for use as the copying template during target refinement and final
// imputation.
func ReferenceRows(reference *Panel, n int) [][]Allele {
	rows := make([][]Allele, n)
	for i := 0; i < n; i++ {
		rows[i] = reference.Row(i)
	}
	return rows
}

// GroupIndividuals partitions a panel's haplotype labels into contiguous
// runs of equal label, each run being one individual's haplotypes (spec §5:
// "adjacent target haplotypes with equal label belong to one individual").
func GroupIndividuals(labels []string) [][2]int {
	var groups [][2]int
	i := 0
	for i < len(labels) {
		j := i + 1
		for j < len(labels) && labels[j] == labels[i] {
			j++
		}
		groups = append(groups, [2]int{i, j})
		i = j
	}
	return groups
}

// RunRounds runs cfg.Rounds rounds of parameter estimation over reference
// and, once a round reaches the refinement half, over target as well,
// merging each round's worker contributions into params and calling
// params.UpdateModel() once per round.
//
// Phase (a) always runs: up to cfg.States reference haplotypes are each
// held out in turn (LeaveOneOutRows) and trained against the remaining
// haplotypes. Phase (b) runs once round >= cfg.Rounds/2: up to cfg.States
// target haplotypes (with their own missing sites) are trained against the
// first cfg.States reference haplotypes.
func RunRounds(cfg RoundConfig, reference, target *Panel, params *Parameters) error {
	refStates := ClampStates(cfg.States, reference.Count)
	tgtStates := ClampStates(cfg.States, target.Count)

	for round := 0; round < cfg.Rounds; round++ {
		log.Infof("round %d/%d", round+1, cfg.Rounds)

		var mu sync.Mutex
		th := &throttle{Max: workerCount(cfg.Workers)}

		for h := 0; h < refStates; h++ {
			h := h
			if err := th.Go(func() error {
				haps := LeaveOneOutRows(ReferenceRows(reference, reference.Count), h)
				observed := reference.Row(h)
				return trainOneHaplotype(cfg, params, observed, haps, reference.Freq, h, &mu)
			}); err != nil {
				return err
			}
		}

		if round >= cfg.Rounds/2 {
			haps := ReferenceRows(reference, refStates)
			for h := 0; h < tgtStates; h++ {
				h := h
				if err := th.Go(func() error {
					observed := target.Row(h)
					return trainOneHaplotype(cfg, params, observed, haps, reference.Freq, h, &mu)
				}); err != nil {
					return err
				}
			}
		}

		if err := th.Wait(); err != nil {
			return err
		}
		params.UpdateModel()
	}
	return nil
}

// trainOneHaplotype runs one worker's contribution for a single haplotype:
// a private Parameters snapshot, a fresh Engine, a forward pass, then
// either CountExpected (EM) or ProfileModel (stochastic), merged into the
// shared params under mu.
func trainOneHaplotype(cfg RoundConfig, params *Parameters, observed []Allele, haps [][]Allele, freqs [5][]float64, worker int, mu *sync.Mutex) error {
	local := &Parameters{}
	local.CopyParameters(params)

	e := NewEngine(params.M, len(haps), local)
	e.WalkLeft(observed, haps, freqs)

	if cfg.EM {
		e.CountExpected(observed, haps, freqs)
	} else {
		rng := NewWorkerRand(cfg.Seed, worker)
		e.ProfileModel(observed, haps, freqs, rng)
	}

	mu.Lock()
	params.Add(local)
	mu.Unlock()
	return nil
}

func workerCount(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// HaplotypeResult holds one haplotype's per-marker imputation output,
// captured before the next haplotype in the same individual overwrites the
// engine's scratch vectors.
type HaplotypeResult struct {
	Label          string
	ImputedHap     []float64
	LeaveOneOut    []float64
	ImputedAlleles []Allele
}

// IndividualResult groups the haplotypes belonging to one individual
// (GroupIndividuals' equal-label runs) with their summed dose, ready for
// P.dose/P.hapDose/P.haps rendering.
type IndividualResult struct {
	Label       string
	Haplotypes  []HaplotypeResult
	ImputedDose []float64
}

// ImputeIndividuals runs the final imputation pass: for every individual (a
// contiguous run of haplotypes sharing a label per GroupIndividuals), one
// Engine is reused across that individual's haplotypes in turn so that
// ImputedDose accumulates across them (spec §5: adjacent same-label
// haplotypes processed sequentially within one task); individuals run
// concurrently across a throttled worker pool.
func ImputeIndividuals(cfg RoundConfig, reference, target *Panel, params *Parameters, stats *Statistics) ([]IndividualResult, error) {
	refStates := ClampStates(cfg.States, reference.Count)
	haps := ReferenceRows(reference, refStates)
	groups := GroupIndividuals(target.Labels)

	results := make([]IndividualResult, len(groups))
	var mu sync.Mutex
	th := &throttle{Max: workerCount(cfg.Workers)}

	for gi, g := range groups {
		gi, g := gi, g
		if err := th.Go(func() error {
			e := NewEngine(params.M, refStates, params)
			e.ClearImputedDose()

			result := IndividualResult{Label: target.Labels[g[0]]}
			for h := g[0]; h < g[1]; h++ {
				observed := target.Row(h)
				e.WalkLeft(observed, haps, reference.Freq)
				e.Impute(reference.Major, observed, haps, reference.Freq)

				hr := HaplotypeResult{
					Label:          target.Labels[h],
					ImputedHap:     append([]float64(nil), e.ImputedHap...),
					LeaveOneOut:    append([]float64(nil), e.LeaveOneOut...),
					ImputedAlleles: append([]Allele(nil), e.ImputedAlleles...),
				}
				result.Haplotypes = append(result.Haplotypes, hr)

				mu.Lock()
				stats.Update(hr.ImputedHap, hr.LeaveOneOut, observed, reference.Major)
				mu.Unlock()
			}
			result.ImputedDose = append([]float64(nil), e.ImputedDose...)

			mu.Lock()
			results[gi] = result
			mu.Unlock()
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if err := th.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
