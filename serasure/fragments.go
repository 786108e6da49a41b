package serasure

import (
	"fmt"

	"github.com/scatter-engine/scatter/sshard"
)

// BuildFragments assembles typed fragments from raw codec output.
// shards must hold the k data slices first and the parity slices after,
// the same layout the reedsolomon library produces. Checksums are always
// recomputed here, never copied from the input shard.
func BuildFragments(parentID string, k int, shards [][]byte) []sshard.Fragment {
	frags := make([]sshard.Fragment, len(shards))
	for i, b := range shards {
		kind := sshard.DataFragment
		name := "data"
		if i >= k {
			kind = sshard.ParityFragment
			name = "parity"
		}
		frags[i] = sshard.Fragment{
			ID:       fmt.Sprintf("%s/%s/%d", parentID, name, i),
			Kind:     kind,
			Data:     b,
			Size:     len(b),
			Checksum: sshard.FragmentChecksum(b),
			ParentID: parentID,
			Index:    i,
		}
	}
	return frags
}
