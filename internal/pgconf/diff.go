package pgconf

import "sort"

// ChangeKind classifies one key in a before/after comparison.
type ChangeKind int

const (
	Unchanged ChangeKind = iota
	Added
	Changed
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	default:
		return "unchanged"
	}
}

// Change is one row of a before/after comparison of formatted settings.
type Change struct {
	Key    string
	Before string // empty when Kind is Added
	After  string // empty when Kind is Removed
	Kind   ChangeKind
}

// Diff compares two formatted setting maps key by key, sorted by key.
func Diff(before, after map[string]string) []Change {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	changes := make([]Change, 0, len(keys))
	for k := range keys {
		b, hadBefore := before[k]
		a, hasAfter := after[k]

		c := Change{Key: k, Before: b, After: a}
		switch {
		case !hadBefore:
			c.Kind = Added
		case !hasAfter:
			c.Kind = Removed
		case b != a:
			c.Kind = Changed
		}
		changes = append(changes, c)
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	return changes
}

// Modified returns the changes that are not Unchanged.
func Modified(changes []Change) []Change {
	var out []Change
	for _, c := range changes {
		if c.Kind != Unchanged {
			out = append(out, c)
		}
	}
	return out
}
