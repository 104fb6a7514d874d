package models

import "time"

// ShouldAcceptRemote is the single merge predicate applied to every synced
// record family during a pull:
//
//   - no local copy: accept
//   - local copy has unpushed changes: reject (local dirty wins over any
//     remote echo, regardless of timestamps)
//   - local copy is tombstoned: reject (a pending delete is never resurrected)
//   - otherwise last-write-wins: accept only a strictly newer remote write
func ShouldAcceptRemote(local *SyncMeta, remoteUpdatedAt time.Time) bool {
	if local == nil {
		return true
	}
	if local.NeedsSync {
		return false
	}
	if local.Deleted {
		return false
	}
	return remoteUpdatedAt.After(local.UpdatedAt)
}
