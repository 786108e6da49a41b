package serasure

import (
	"context"
	"errors"
	"fmt"

	"github.com/scatter-engine/scatter/sshard"
)

// Codec turns one encrypted shard into a full set of erasure-coded fragments,
// and turns any sufficient subset of those fragments back into the shard.
//
// Implementations must be side-effect-free and deterministic for identical
// inputs; encode cost should be proportional to shard size.
type Codec interface {
	// Encode produces exactly k+m fragments for the shard, data fragments
	// first and in index order, parity fragments after.
	Encode(ctx context.Context, shard sshard.EncryptedShard) ([]sshard.Fragment, error)

	// Decode reconstructs the original shard from the supplied fragments.
	// sizeHint is the original shard size, which cannot be recovered from
	// fragments alone because the final data fragment may be zero-padded.
	//
	// Decode returns ErrInsufficientFragments when the supplied set cannot
	// reconstruct the shard, and ErrCorruptFragment when a fragment fails
	// its checksum before decoding is attempted.
	Decode(ctx context.Context, fragments []sshard.Fragment, sizeHint int) (sshard.EncryptedShard, error)

	// Mode reports which codec path this implementation represents.
	Mode() sshard.CodecMode
}

var (
	// ErrInsufficientFragments indicates fewer usable fragments than the
	// codec needs to reconstruct the original shard.
	ErrInsufficientFragments = errors.New("insufficient fragments to reconstruct shard")

	// ErrCorruptFragment indicates a fragment whose checksum did not match
	// its bytes during pre-decode validation.
	ErrCorruptFragment = errors.New("fragment checksum mismatch")

	// ErrEncodingFailed indicates that no codec path could encode the shard.
	ErrEncodingFailed = errors.New("shard encoding failed")
)

// ValidateFragments recomputes each fragment's checksum and returns
// ErrCorruptFragment for the first mismatch. Shared by codec implementations
// as the pre-decode validation step.
func ValidateFragments(fragments []sshard.Fragment) error {
	for _, f := range fragments {
		if sshard.FragmentChecksum(f.Data) != f.Checksum {
			return fmt.Errorf("%w: fragment %s (index %d)", ErrCorruptFragment, f.ID, f.Index)
		}
	}
	return nil
}
