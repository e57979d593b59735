// Package reconciler implements the core logic for comparing desired DNS
// state (compiled from zone documents) with live provider state and applying
// the minimal change set.
package reconciler

import (
	"github.com/clearskydns/zonesync/pkg/provider"
)

// RecordPair holds a live record and its desired replacement.
type RecordPair struct {
	Live    provider.Record
	Desired provider.Record
}

// RecordDiff is the computed change set for one provider+zone pair.
type RecordDiff struct {
	// ToCreate contains records present in desired but not live.
	ToCreate []provider.Record

	// ToUpdate contains records present in both whose content, TTL,
	// priority, proxied flag, or routing policy differ.
	ToUpdate []RecordPair

	// ToDelete contains live records with no desired counterpart.
	// Computed only for declared zones; undeclared zones are never diffed.
	ToDelete []provider.Record

	// Unchanged contains records already in their desired state.
	Unchanged []provider.Record
}

// HasChanges reports whether the diff contains any work.
func (d *RecordDiff) HasChanges() bool {
	return len(d.ToCreate) > 0 || len(d.ToUpdate) > 0 || len(d.ToDelete) > 0
}

// TotalChanges returns the number of creates, updates, and deletes.
func (d *RecordDiff) TotalChanges() int {
	return len(d.ToCreate) + len(d.ToUpdate) + len(d.ToDelete)
}

// Compare diffs live against desired records, joined on the identity key.
// Slice order is preserved (desired order for creates/updates, live order
// for deletes) so runs produce deterministic change sets.
//
// Rules:
//   - key in desired but not live → create
//   - key in both, fields differ → update (full value replace)
//   - key in live but not desired → delete
func Compare(live, desired []provider.Record) RecordDiff {
	diff := RecordDiff{}

	liveByKey := make(map[string]provider.Record, len(live))
	for _, rec := range live {
		liveByKey[rec.Key] = rec
	}
	desiredKeys := make(map[string]struct{}, len(desired))

	for _, want := range desired {
		desiredKeys[want.Key] = struct{}{}
		have, exists := liveByKey[want.Key]
		if !exists {
			diff.ToCreate = append(diff.ToCreate, want)
			continue
		}
		if provider.RecordEquals(have, want) {
			diff.Unchanged = append(diff.Unchanged, have)
		} else {
			diff.ToUpdate = append(diff.ToUpdate, RecordPair{Live: have, Desired: want})
		}
	}

	for _, have := range live {
		if _, wanted := desiredKeys[have.Key]; !wanted {
			diff.ToDelete = append(diff.ToDelete, have)
		}
	}

	return diff
}
