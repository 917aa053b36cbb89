// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// MarkerIndex maps marker names to their position in a haplotype panel.
type MarkerIndex struct {
	Names []string
	pos   map[string]int
}

// NewMarkerIndex builds an index from an ordered list of marker names.
func NewMarkerIndex(names []string) *MarkerIndex {
	idx := &MarkerIndex{Names: names, pos: make(map[string]int, len(names))}
	for i, n := range names {
		idx.pos[strings.TrimSpace(n)] = i
	}
	return idx
}

// Position returns the index of name, or -1 if not present.
func (idx *MarkerIndex) Position(name string) int {
	if p, ok := idx.pos[strings.TrimSpace(name)]; ok {
		return p
	}
	return -1
}

// NoMarkerOverlapError reports that zero target markers were found in the
// reference panel.
type NoMarkerOverlapError struct {
	Diff string
}

func (e *NoMarkerOverlapError) Error() string {
	msg := "no target markers were found in the reference panel; check that marker names match between --snps and --refSnps"
	if e.Diff != "" {
		msg += "\n" + e.Diff
	}
	return msg
}

// ClipEndpointMissingError reports that --start/--stop could not be
// resolved against the reference.
type ClipEndpointMissingError struct {
	Endpoint string
}

func (e *ClipEndpointMissingError) Error() string {
	return fmt.Sprintf("clip endpoint %q could not be resolved against the reference or the target marker list", e.Endpoint)
}

// ClipReference narrows reference to the window implied by targetMarkers and
// the optional start/stop marker names, and returns the rebuilt index over
// the clipped reference. If start and stop are both empty, reference and
// refIndex are returned unchanged. Mirrors HaplotypeClipper::ClipReference.
func ClipReference(reference *Panel, refIndex *MarkerIndex, targetMarkers []string, start, stop string) (*MarkerIndex, error) {
	if start == "start" {
		start = ""
	}
	if stop == "stop" {
		stop = ""
	}
	if start == "" && stop == "" {
		return refIndex, nil
	}

	firstMatch, lastMatch := reference.MarkerCount, -1
	matchStart, matchStop := false, false
	var newStart, newStop string

	for _, raw := range targetMarkers {
		trimmed := strings.TrimSpace(raw)
		if start == trimmed {
			matchStart = true
		}
		if stop == trimmed {
			matchStop = true
		}
		index := refIndex.Position(trimmed)
		if index < 0 {
			continue
		}
		if index < firstMatch {
			firstMatch = index
		}
		if index > lastMatch {
			lastMatch = index
		}
		if matchStart {
			newStart = trimmed
			matchStart = false
		}
		if matchStop {
			newStop = trimmed
			matchStop = false
		}
	}

	startIndex := refIndex.Position(start)
	stopIndex := refIndex.Position(stop)

	if startIndex < 0 && start != "" {
		if newStart == "" {
			return nil, &ClipEndpointMissingError{Endpoint: start}
		}
		start = newStart
		startIndex = refIndex.Position(start)
	}
	if startIndex >= 0 && startIndex < firstMatch {
		firstMatch = startIndex
	}

	if stopIndex < 0 && stop != "" {
		if newStop == "" {
			return nil, &ClipEndpointMissingError{Endpoint: stop}
		}
		stop = newStop
		stopIndex = refIndex.Position(stop)
	}
	if stopIndex > lastMatch {
		lastMatch = stopIndex
	}

	clipFrom := 0
	if start != "" {
		clipFrom = firstMatch
	}
	clipTo := reference.MarkerCount - 1
	if stop != "" {
		clipTo = lastMatch
	}

	if clipFrom <= 0 && clipTo >= reference.MarkerCount-1 {
		return refIndex, nil
	}

	log.Infof("clipping reference haplotypes to match target window [%d, %d]", clipFrom, clipTo)
	reference.ClipHaplotypes(clipFrom, clipTo)

	newNames := make([]string, 0, clipTo-clipFrom+1)
	for i := clipFrom; i <= clipTo && i < len(refIndex.Names); i++ {
		newNames = append(newNames, refIndex.Names[i])
	}
	newIndex := NewMarkerIndex(newNames)
	log.Infof("%d markers remain after clipping", reference.MarkerCount)
	return newIndex, nil
}

// TargetPositions returns, for each target marker (in target-list order),
// its position in the reference index, or -1 when the marker is absent from
// the reference.
func TargetPositions(refIndex *MarkerIndex, targetMarkers []string) []int {
	out := make([]int, len(targetMarkers))
	for i, name := range targetMarkers {
		out[i] = refIndex.Position(name)
	}
	return out
}

// OutOfOrderMarkers reports target markers whose reference positions are not
// consistent with a single left-to-right scan of the reference: the
// reference-positions of in-overlap target markers are taken in target-list
// order, and every index not on their longest increasing subsequence is
// "out of order". Mirrors spec §7's "out-of-order markers" warning.
func OutOfOrderMarkers(refIndex *MarkerIndex, targetMarkers []string) []string {
	positions := TargetPositions(refIndex, targetMarkers)
	var present []int    // indices into targetMarkers that are in the reference
	var refpos []int      // corresponding reference positions, same order
	for i, p := range positions {
		if p >= 0 {
			present = append(present, i)
			refpos = append(refpos, p)
		}
	}
	if len(refpos) == 0 {
		return nil
	}
	keep := longestIncreasingSubsequence(len(refpos), func(i int) int { return refpos[i] })
	kept := make(map[int]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}
	var ooo []string
	for i, origIdx := range present {
		if !kept[i] {
			ooo = append(ooo, targetMarkers[origIdx])
		}
	}
	return ooo
}
