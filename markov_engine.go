// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// backgroundError is a fixed mutation floor applied in addition to the
// per-marker estimated error rate, so that Condition never multiplies a
// state's likelihood by exactly zero.
const backgroundError = 1e-5

// Engine is a worker's private hidden-Markov-model state: a forward
// likelihood matrix over one haplotype's markers and reference states, plus
// the imputation output vectors and its own Parameters snapshot. Engine
// shares no mutable state with other workers; the E, R and flip rate in
// Params, the reference allele rows, and the reference frequencies are
// read-only for the engine's lifetime, while CountExpected and ProfileModel
// add into Params' empirical accumulators.
type Engine struct {
	Params *Parameters

	states       int // logical state count S
	paddedStates int // S rounded up to even

	matrix [][]float64 // M x paddedStates

	ImputedHap     []float64 // length M
	ImputedDose    []float64 // length M, accumulated across a diploid's two haplotypes
	LeaveOneOut    []float64 // length M
	ImputedAlleles []Allele  // length M, MLE allele per position
}

// ClampStates clamps a requested state count to the number of haplotypes
// actually available.
func ClampStates(states, available int) int {
	if states > available {
		return available
	}
	return states
}

// NewEngine allocates an Engine for m markers and the given logical state
// count, padding the matrix width to even so that state^1 is always
// in-range. The padded column, if any, is never written and stays at its
// zero value for the engine's lifetime.
func NewEngine(m, states int, params *Parameters) *Engine {
	padded := states
	if states%2 == 1 {
		padded++
	}
	e := &Engine{
		Params:         params,
		states:         states,
		paddedStates:   padded,
		matrix:         make([][]float64, m),
		ImputedHap:     make([]float64, m),
		ImputedDose:    make([]float64, m),
		LeaveOneOut:    make([]float64, m),
		ImputedAlleles: make([]Allele, m),
	}
	for i := range e.matrix {
		e.matrix[i] = make([]float64, padded)
	}
	return e
}

// States returns the logical (unpadded) state count.
func (e *Engine) States() int { return e.states }

// Transpose carries a length-states probability vector across one marker
// interval with crossover probability r, mixing in a same-individual flip
// term and a uniform recombination term. Rescales by 1e15 when the uniform
// term underflows below 1e-10, which leaves posterior ratios unchanged.
func (e *Engine) Transpose(from, to []float64, r float64) {
	S := e.states
	if r == 0 {
		copy(to[:S], from[:S])
		return
	}
	flipRate := r * e.Params.empiricalFlipRate
	sum := floats.Sum(from[:S])
	sum *= r * (1 - e.Params.empiricalFlipRate) / float64(S)
	complement := 1 - r

	if sum < 1e-10 {
		sum *= 1e15
		flipRate *= 1e15
		complement *= 1e15
	}

	for i := 0; i < S; i++ {
		to[i] = from[i]*complement + from[i^1]*flipRate + sum
	}
}

// Condition multiplies vec in place by the emission probability of observed
// at pos, using haps[i][pos] as the copied allele for state i. A no-op when
// observed is Missing.
func (e *Engine) Condition(vec []float64, haps [][]Allele, pos int, observed Allele, errRate, freq float64) {
	if observed == Missing {
		return
	}
	pmatch := (1 - errRate) + errRate*freq + backgroundError
	prandom := errRate*freq + backgroundError
	for i := 0; i < e.states; i++ {
		if haps[i][pos] == observed {
			vec[i] *= pmatch
		} else {
			vec[i] *= prandom
		}
	}
}

// WalkLeft runs the forward recursion, leaving matrix[m][i] equal to the
// forward likelihood of state i at marker m (up to uniform rescalings).
func (e *Engine) WalkLeft(observed []Allele, haps [][]Allele, freqs [5][]float64) {
	M := len(e.matrix)
	for i := 0; i < e.states; i++ {
		e.matrix[0][i] = 1
	}
	for m := 0; m < M-1; m++ {
		if observed[m] != Missing {
			e.Condition(e.matrix[m], haps, m, observed[m], e.Params.E[m], freqs[observed[m]][m])
		}
		e.Transpose(e.matrix[m], e.matrix[m+1], e.Params.R[m])
	}
	if observed[M-1] != Missing {
		e.Condition(e.matrix[M-1], haps, M-1, observed[M-1], e.Params.E[M-1], freqs[observed[M-1]][M-1])
	}
}

// backwardWalk runs the backward recursion shared by Impute and
// CountExpected: a length-states vector initialized to 1, walked from
// marker M-1 down to 0. At each marker, posterior = vector .* matrix[pos]
// is computed and handed to step; the walk then conditions on the observed
// allele (if any) and, when afterCondition is non-nil, hands the
// conditioned-but-not-yet-transposed vector to afterCondition (paired with
// matrix[pos-1], for recombination accounting) before transposing into the
// next iteration.
func (e *Engine) backwardWalk(observed []Allele, haps [][]Allele, freqs [5][]float64,
	step func(pos int, posterior []float64),
	afterCondition func(pos int, conditioned []float64)) {

	M := len(e.matrix)
	vector := make([]float64, e.paddedStates)
	extra := make([]float64, e.paddedStates)
	for i := 0; i < e.states; i++ {
		vector[i] = 1
	}

	for pos := M - 1; pos > 0; pos-- {
		for j := 0; j < e.states; j++ {
			extra[j] = vector[j] * e.matrix[pos][j]
		}
		step(pos, extra)

		if observed[pos] != Missing {
			e.Condition(vector, haps, pos, observed[pos], e.Params.E[pos], freqs[observed[pos]][pos])
		}
		if afterCondition != nil {
			afterCondition(pos, vector)
		}
		e.Transpose(vector, extra, e.Params.R[pos-1])
		vector, extra = extra, vector
	}

	if observed[0] != Missing {
		e.Condition(vector, haps, 0, observed[0], e.Params.E[0], freqs[observed[0]][0])
	}
	step(0, vector)
}

// Impute combines the forward matrix with a backward pass to populate
// ImputedHap, ImputedDose (accumulated), LeaveOneOut and ImputedAlleles for
// every marker.
func (e *Engine) Impute(major, observed []Allele, haps [][]Allele, freqs [5][]float64) {
	e.backwardWalk(observed, haps, freqs, func(pos int, posterior []float64) {
		e.ImputeAt(major, observed, posterior, haps, freqs, pos)
	}, nil)
}

// ImputeAt derives the imputed dose, MLE allele and leave-one-out dose at a
// single marker from a posterior probability vector over states.
func (e *Engine) ImputeAt(major, observed []Allele, probs []float64, haps [][]Allele, freqs [5][]float64, pos int) {
	var P [5]float64
	for i := 0; i < e.states; i++ {
		P[haps[i][pos]] += probs[i]
	}

	ptotal := P[A] + P[C] + P[G] + P[T]
	pmajor := P[major[pos]]

	// Preserves the original scan {C,G} only: T is never compared, so mle
	// is always one of A, C or G, even when T holds all the mass.
	mle := A
	for i := C; i <= G; i++ {
		if P[i] >= P[mle] {
			mle = i
		}
	}

	dose := pmajor / ptotal
	e.ImputedHap[pos] = dose
	e.ImputedDose[pos] += dose
	e.ImputedAlleles[pos] = mle

	fmatch := 1.0 / (1 - e.Params.E[pos] + e.Params.E[pos]*freqs[major[pos]][pos] + backgroundError)
	fmismatch := 1.0 / (e.Params.E[pos]*freqs[major[pos]][pos] + backgroundError)

	// Also preserves the original's bound: only {A,C,G} are scaled here,
	// T's posterior mass passes into ptotal/pmajor unscaled.
	for i := A; i < T; i++ {
		if observed[pos] == i {
			P[i] *= fmatch
		} else {
			P[i] *= fmismatch
		}
	}
	ptotal = P[A] + P[C] + P[G] + P[T]
	pmajor = P[major[pos]]
	e.LeaveOneOut[pos] = pmajor / ptotal
}

// ClearImputedDose zeroes ImputedDose; called once per diploid individual
// before summing its two haplotypes' doses.
func (e *Engine) ClearImputedDose() {
	for i := range e.ImputedDose {
		e.ImputedDose[i] = 0
	}
}

// CountErrorsScalar returns the posterior error-event probability for a
// single sampled state, given the allele it copies.
func (e *Engine) CountErrorsScalar(copied, observed Allele, errRate, freq float64) float64 {
	if observed == Missing {
		return errRate
	}
	if observed == copied {
		return errRate * freq / (1 - errRate + errRate*freq + backgroundError)
	}
	return errRate * freq / (errRate*freq + backgroundError)
}

// CountErrorsVector returns the posterior error-event probability mass over
// a full state vector, given the observed allele.
func (e *Engine) CountErrorsVector(vector []float64, haps [][]Allele, pos int, observed Allele, errRate, freq float64) float64 {
	if observed == Missing {
		return errRate
	}
	var match, mismatch float64
	for i := 0; i < e.states; i++ {
		if haps[i][pos] == observed {
			match += vector[i]
		} else {
			mismatch += vector[i]
		}
	}
	background := (match + mismatch) * backgroundError
	mismatch = (match + mismatch) * errRate * freq
	match *= 1 - errRate
	return mismatch / (mismatch + match + background)
}

// CountRecombinants returns the posterior probability that the transition
// between adjacent-marker distributions from and to involved a
// recombination or a same-individual flip, and adds this step's share of
// flip-attributed recombinations to empiricalFlips.
func (e *Engine) CountRecombinants(from, to []float64, r float64) float64 {
	if r == 0 {
		return 0
	}
	S := e.states
	sum := floats.Sum(from[:S])
	var rsum, fsum, nrsum float64
	for i := 0; i < S; i++ {
		rsum += to[i]
		fsum += from[i] * to[i^1]
		nrsum += from[i] * to[i]
	}
	fsum *= r * e.Params.empiricalFlipRate
	rsum *= sum * r * (1 - e.Params.empiricalFlipRate) / float64(S)
	nrsum *= 1 - r

	total := fsum + rsum + nrsum
	e.Params.empiricalFlips += fsum / total
	return (rsum + fsum) / total
}

// CountExpected accumulates EM (expectation-maximization) empirical
// statistics for one haplotype, using posterior marginals rather than a
// sampled path.
func (e *Engine) CountExpected(observed []Allele, haps [][]Allele, freqs [5][]float64) {
	e.backwardWalk(observed, haps, freqs,
		func(pos int, posterior []float64) {
			if observed[pos] != Missing {
				e.Params.empE[pos] += e.CountErrorsVector(posterior, haps, pos, observed[pos], e.Params.E[pos], freqs[observed[pos]][pos])
			} else {
				e.Params.empE[pos] += e.Params.E[pos]
			}
		},
		func(pos int, conditioned []float64) {
			if pos > 0 {
				e.Params.empR[pos-1] += e.CountRecombinants(conditioned, e.matrix[pos-1], e.Params.R[pos-1])
			}
		})
	e.Params.empiricalCount++
}

// ProfileModel samples one stochastic ancestry path (the MCMC alternative
// to CountExpected) and accumulates its errors/recombinations into
// Parameters' empirical fields.
func (e *Engine) ProfileModel(observed []Allele, haps [][]Allele, freqs [5][]float64, rng *rand.Rand) {
	M := len(e.matrix)
	if M == 0 {
		return
	}
	S := e.states

	last := e.matrix[M-1]
	sum := floats.Sum(last[:S])
	r := rng.Float64() * sum
	state := 0
	sum = 0
	for state < S-1 && sum < r {
		sum += last[state]
		state++
	}

	if observed[M-1] != Missing {
		e.Params.empE[M-1] += e.CountErrorsScalar(haps[state][M-1], observed[M-1], e.Params.E[M-1], freqs[observed[M-1]][M-1])
	} else {
		e.Params.empE[M-1] += e.Params.E[M-1]
	}

	for m := M - 2; m >= 0; m-- {
		row := e.matrix[m]
		rowSum := floats.Sum(row[:S])

		norec := row[state] * (1 - e.Params.R[m])
		flip := row[state^1] * e.Params.R[m] * e.Params.empiricalFlipRate
		rec := rowSum * e.Params.R[m] * (1 - e.Params.empiricalFlipRate) / float64(S)
		total := norec + flip + rec

		draw := rng.Float64() * total
		if draw > norec {
			if draw > norec+flip {
				e.Params.empR[m]++
				draw -= norec - flip
				draw *= float64(S) / (e.Params.R[m] * (1 - e.Params.empiricalFlipRate))

				state = 0
				walkSum := 0.0
				for state < S-1 {
					walkSum += row[state]
					if walkSum > draw {
						break
					}
					state++
				}
			} else {
				e.Params.empR[m]++
				e.Params.empiricalFlips++
				state ^= 1
			}
		}

		if observed[m] != Missing {
			e.Params.empE[m] += e.CountErrorsScalar(haps[state][m], observed[m], e.Params.E[m], freqs[observed[m]][m])
		} else {
			e.Params.empE[m] += e.Params.E[m]
		}
	}

	e.Params.empiricalCount++
}

// NewWorkerRand returns a uniform RNG seeded deterministically from a master
// seed and a worker index, so that ProfileModel is reproducible under a
// fixed seed and serial execution (spec §9).
func NewWorkerRand(masterSeed uint64, worker int) *rand.Rand {
	return rand.New(rand.NewSource(masterSeed ^ (uint64(worker)*0x9E3779B97F4A7C15 + 1)))
}
