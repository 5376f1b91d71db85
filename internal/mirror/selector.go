package mirror

import (
	"fmt"

	"log/slog"
)

// SelectLatest reduces probe results to the mirrors reporting the
// maximum observed update number, preserving their relative order.
// When no result carries a version the returned set is empty: mirrors
// of unknown freshness are never served.
func SelectLatest(versioned []VersionedMirror, progress chan<- string) []Mirror {
	var maxVersion *uint64
	for _, vm := range versioned {
		if vm.UpdateNumber == nil {
			continue
		}
		if maxVersion == nil || *vm.UpdateNumber > *maxVersion {
			maxVersion = vm.UpdateNumber
		}
	}

	if maxVersion == nil {
		slog.Warn("no mirror reported a version; selecting none")
		return nil
	}

	progress <- fmt.Sprintf("TAKING MIRRORS WITH LATEST VERSION: %d", *maxVersion)

	var selected []Mirror
	for _, vm := range versioned {
		if vm.UpdateNumber != nil && *vm.UpdateNumber == *maxVersion {
			selected = append(selected, vm.Mirror)
		}
	}
	return selected
}
