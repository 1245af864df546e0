package sync

import (
	"os"
)

// Direction is the computed copy direction of a SyncDecision.
type Direction string

const (
	DirCloudToLocal Direction = "cloud->local"
	DirLocalToCloud Direction = "local->cloud"
	DirNone         Direction = "none"
)

// Reason is why a particular Direction was chosen.
type Reason string

const (
	ReasonMissingAtDestination Reason = "missing-at-destination"
	ReasonSourceNewer          Reason = "source-newer"
	ReasonSizeDiffersSameMtime Reason = "size-differs-same-mtime"
	ReasonEqual                Reason = "equal"
)

// Decision is the SyncDecision of spec §3: the outcome of comparing a
// source path against its mirrored destination path.
type Decision struct {
	Direction Direction
	Reason    Reason
}

// decide implements spec §4.4's per-file decision algorithm for a single
// ordered (source, destination) pair. The caller supplies which physical
// direction "source wins" maps to.
func decide(srcPath, dstPath string, whenSourceWins Direction) (Decision, error) {
	srcInfo, err := os.Lstat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Decision{Direction: DirNone, Reason: ReasonEqual}, nil
		}
		return Decision{}, err
	}

	dstInfo, err := os.Lstat(dstPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Decision{Direction: whenSourceWins, Reason: ReasonMissingAtDestination}, nil
		}
		return Decision{}, err
	}

	srcMtime := srcInfo.ModTime()
	dstMtime := dstInfo.ModTime()

	switch {
	case srcMtime.After(dstMtime):
		return Decision{Direction: whenSourceWins, Reason: ReasonSourceNewer}, nil
	case dstMtime.After(srcMtime):
		// Destination is newer than this call's source: no copy in this
		// direction. The Reconciler never calls decide with source and
		// destination swapped, so a newer destination is left unchanged.
		return Decision{Direction: DirNone, Reason: ReasonSourceNewer}, nil
	default:
		if srcInfo.Size() != dstInfo.Size() {
			return Decision{Direction: whenSourceWins, Reason: ReasonSizeDiffersSameMtime}, nil
		}
		return Decision{Direction: DirNone, Reason: ReasonEqual}, nil
	}
}
