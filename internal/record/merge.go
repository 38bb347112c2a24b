package record

// Fingerprint is the exact-match dedupe key of an event: its canonical start
// followed by its title. No case folding or whitespace trimming is applied.
func Fingerprint(e CalendarEvent) string {
	return e.Start.String() + e.Title
}

// MergeNew appends every candidate whose fingerprint is not already present in
// existing or among the candidates accepted before it. It returns the merged
// sequence plus the accepted and rejected candidates in input order. existing
// is not modified.
func MergeNew(existing, candidates []CalendarEvent) (merged, added, skipped []CalendarEvent) {
	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for _, e := range existing {
		seen[Fingerprint(e)] = struct{}{}
	}

	merged = make([]CalendarEvent, len(existing), len(existing)+len(candidates))
	copy(merged, existing)

	for _, c := range candidates {
		fp := Fingerprint(c)
		if _, ok := seen[fp]; ok {
			skipped = append(skipped, c)
			continue
		}
		seen[fp] = struct{}{}
		merged = append(merged, c)
		added = append(added, c)
	}
	return merged, added, skipped
}

// Prepend returns items followed by existing, without aliasing either slice.
func Prepend[T any](existing []T, items ...T) []T {
	out := make([]T, 0, len(existing)+len(items))
	out = append(out, items...)
	return append(out, existing...)
}

// RemoveIndices returns records without the given positions. Duplicate indices
// are ignored; the caller validates the range.
func RemoveIndices[T any](records []T, indices []int) []T {
	drop := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		drop[i] = struct{}{}
	}
	out := make([]T, 0, len(records))
	for i, r := range records {
		if _, ok := drop[i]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}
