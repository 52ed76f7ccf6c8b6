// ABOUTME: Project membership edits computed as set differences
// ABOUTME: Diffs are taken against the snapshot at edit start so concurrent changes survive
package models

import "github.com/google/uuid"

// MembershipDiff is the result of a membership edit.
type MembershipDiff struct {
	Added   []uuid.UUID
	Removed []uuid.UUID
}

// Empty reports whether the edit changes nothing.
func (d MembershipDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffMembership compares the lead ids shown when editing started with the edited selection.
func DiffMembership(snapshot, edited []uuid.UUID) MembershipDiff {
	before := toSet(snapshot)
	after := toSet(edited)

	var diff MembershipDiff
	for _, id := range dedupe(edited) {
		if !before[id] {
			diff.Added = append(diff.Added, id)
		}
	}
	for _, id := range dedupe(snapshot) {
		if !after[id] {
			diff.Removed = append(diff.Removed, id)
		}
	}
	return diff
}

// ApplyMembership applies diff to the live membership, keeping members added elsewhere.
func ApplyMembership(live []uuid.UUID, diff MembershipDiff) []uuid.UUID {
	removed := toSet(diff.Removed)
	out := make([]uuid.UUID, 0, len(live)+len(diff.Added))
	seen := make(map[uuid.UUID]bool, len(live)+len(diff.Added))

	for _, id := range live {
		if removed[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range diff.Added {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func toSet(ids []uuid.UUID) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
