// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package impute

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DescribeMismatch renders a readable line-level diff between the target
// marker list and the reference marker list, for inclusion in a
// NoMarkerOverlapError so a user can see at a glance whether the lists use
// different naming conventions (e.g. "chr1:123" vs "1:123").
func DescribeMismatch(targetMarkers, refMarkers []string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(strings.Join(targetMarkers, "\n"), strings.Join(refMarkers, "\n"))
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var sb strings.Builder
	sb.WriteString("target vs. reference marker names (- target only, + reference only):\n")
	shown := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			continue
		}
		prefix := "-"
		if d.Type == diffmatchpatch.DiffInsert {
			prefix = "+"
		}
		for _, line := range strings.Split(strings.Trim(d.Text, "\n"), "\n") {
			if line == "" {
				continue
			}
			if shown >= 20 {
				sb.WriteString("  ... (truncated)\n")
				return sb.String()
			}
			sb.WriteString(prefix + " " + line + "\n")
			shown++
		}
	}
	return sb.String()
}
