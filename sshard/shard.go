package sshard

import (
	"encoding/hex"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// FragmentKind distinguishes data fragments from parity fragments.
type FragmentKind int

const (
	DataFragment FragmentKind = iota
	ParityFragment
)

// CodecMode identifies which codec path produced a distribution's fragments.
// Callers must be able to tell the two apart, because the XOR fallback has a
// materially weaker recovery guarantee than Reed-Solomon.
type CodecMode string

const (
	ModeReedSolomon CodecMode = "reedsolomon"
	ModeXORFallback CodecMode = "xor-fallback"
)

// EncryptedShard is one opaque encrypted block of a larger file, the unit
// this subsystem distributes. It is produced by an encryption collaborator
// before entering this subsystem and is never mutated here.
type EncryptedShard struct {
	ID       string
	Data     []byte
	Size     int
	Checksum string
}

// NewEncryptedShard builds a shard around data, computing size and checksum.
func NewEncryptedShard(id string, data []byte) EncryptedShard {
	return EncryptedShard{
		ID:       id,
		Data:     data,
		Size:     len(data),
		Checksum: ShardChecksum(data),
	}
}

// Fragment is one erasure-coded piece (data or parity) produced from a shard.
type Fragment struct {
	ID       string
	Kind     FragmentKind
	Data     []byte
	Size     int
	Checksum string

	// ParentID is the ID of the shard this fragment was produced from.
	ParentID string

	// Index is the fragment's position in [0, k+m).
	// Data fragments occupy [0, k), parity fragments [k, k+m),
	// following the same layout as the reedsolomon library.
	Index int
}

// WitnessProof is a signed third-party attestation that a set of fragment
// checksums was placed on a set of hosts at a given time. It is immutable
// once issued; failed verification marks it invalid for trust scoring but
// never deletes it.
type WitnessProof struct {
	WitnessID    string
	NodeID       string
	Timestamp    time.Time
	Signature    []byte
	Checksums    []string
	Availability float64
}

// DistributedShard is the durable record of one shard's distribution.
// It is created once at distribution time and mutated only by an explicit
// healing operation, which replaces Nodes and RedundancyLevel.
type DistributedShard struct {
	DistributionID string
	Shard          EncryptedShard
	Fragments      []Fragment
	Proofs         []WitnessProof

	// Nodes holds the IDs of the nodes that acknowledged a successful store.
	Nodes []string

	// RedundancyLevel is len(Nodes)/len(Fragments), in [0,1]. It is always
	// recomputed from the accepted-node list, never tracked independently.
	RedundancyLevel float64

	Mode      CodecMode
	CreatedAt time.Time
}

// RetrievalResult reports the outcome of one shard retrieval attempt.
// It is created fresh per attempt and never persisted.
type RetrievalResult struct {
	Success        bool
	Shard          *EncryptedShard
	NodesContacted int
	NodesResponded int
	Elapsed        time.Duration
	Errors         []string
}

// FragmentChecksum computes the checksum carried by fragments: 64-bit xxHash,
// hex encoded. Fast enough to recompute on every byte transformation.
func FragmentChecksum(data []byte) string {
	sum := xxhash.Sum64(data)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(sum >> (56 - 8*i))
	}
	return hex.EncodeToString(b[:])
}

// ShardChecksum computes the integrity checksum of a whole shard:
// BLAKE2b-256, hex encoded.
func ShardChecksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FragmentChecksums returns the checksums of fragments in index order.
func FragmentChecksums(fragments []Fragment) []string {
	sums := make([]string, len(fragments))
	for i, f := range fragments {
		sums[i] = f.Checksum
	}
	return sums
}
