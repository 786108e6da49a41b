// Package sereedsolomon implements the primary erasure codec path on top of
// the finite-field Reed-Solomon implementation in
// [github.com/klauspost/reedsolomon].
package sereedsolomon

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"

	"github.com/scatter-engine/scatter/serasure"
	"github.com/scatter-engine/scatter/sshard"
)

// Codec satisfies [serasure.Codec] with true Reed-Solomon semantics:
// any k of the k+m fragments, regardless of kind, reconstruct the shard.
type Codec struct {
	rs reedsolomon.Encoder

	k int
	m int
}

// NewCodec returns a Reed-Solomon codec producing k data and m parity
// fragments per shard.
func NewCodec(k, m int) (*Codec, error) {
	if k <= 0 {
		return nil, fmt.Errorf("data fragment count must be > 0")
	}
	if m <= 0 {
		return nil, fmt.Errorf("parity fragment count must be > 0")
	}
	rs, err := reedsolomon.New(k, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create reed-solomon encoder: %w", err)
	}
	return &Codec{rs: rs, k: k, m: m}, nil
}

// Encode satisfies [serasure.Codec].
func (c *Codec) Encode(_ context.Context, shard sshard.EncryptedShard) ([]sshard.Fragment, error) {
	if len(shard.Data) == 0 {
		return nil, fmt.Errorf("cannot encode empty shard %q", shard.ID)
	}

	// Split produces subslices for the data fragments and allocates the
	// parity fragments, but only Encode populates the parity bytes.
	allShards, err := c.rs.Split(shard.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to split shard data: %w", err)
	}
	if err := c.rs.Encode(allShards); err != nil {
		return nil, fmt.Errorf("failed to encode parity: %w", err)
	}

	return serasure.BuildFragments(shard.ID, c.k, allShards), nil
}

// Decode satisfies [serasure.Codec]. Any k checksum-valid fragments suffice.
func (c *Codec) Decode(_ context.Context, fragments []sshard.Fragment, sizeHint int) (sshard.EncryptedShard, error) {
	if err := serasure.ValidateFragments(fragments); err != nil {
		return sshard.EncryptedShard{}, err
	}

	n := c.k + c.m
	allShards := make([][]byte, n)
	var parentID string
	usable := 0
	for _, f := range fragments {
		if f.Index < 0 || f.Index >= n {
			return sshard.EncryptedShard{}, fmt.Errorf("fragment index %d out of range [0,%d)", f.Index, n)
		}
		if allShards[f.Index] != nil {
			continue
		}
		allShards[f.Index] = bytes.Clone(f.Data)
		parentID = f.ParentID
		usable++
	}
	if usable < c.k {
		return sshard.EncryptedShard{}, fmt.Errorf("%w: have %d, need %d",
			serasure.ErrInsufficientFragments, usable, c.k)
	}

	if err := c.rs.Reconstruct(allShards); err != nil {
		if errors.Is(err, reedsolomon.ErrTooFewShards) {
			return sshard.EncryptedShard{}, fmt.Errorf("%w: have %d, need %d",
				serasure.ErrInsufficientFragments, usable, c.k)
		}
		return sshard.EncryptedShard{}, fmt.Errorf("failed to reconstruct fragments: %w", err)
	}

	// Join requires the exact original size because the final data fragment
	// may be zero-padded.
	buf := bytes.NewBuffer(make([]byte, 0, sizeHint))
	if err := c.rs.Join(buf, allShards, sizeHint); err != nil {
		return sshard.EncryptedShard{}, fmt.Errorf("failed to join reconstructed data: %w", err)
	}

	return sshard.NewEncryptedShard(parentID, buf.Bytes()), nil
}

// Mode satisfies [serasure.Codec].
func (c *Codec) Mode() sshard.CodecMode { return sshard.ModeReedSolomon }
