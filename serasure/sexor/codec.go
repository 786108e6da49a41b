// Package sexor implements the degraded fallback codec path: a plain split
// with XOR parity. It is deterministic and byte-compatible across runs for
// the same shard and configuration, but it is NOT Reed-Solomon — XOR parity
// alone cannot repair a missing data fragment, so decoding requires every
// data fragment to be present. The weaker guarantee is deliberate and must
// stay visible to callers (see [sshard.ModeXORFallback]).
package sexor

import (
	"context"
	"fmt"

	"github.com/scatter-engine/scatter/serasure"
	"github.com/scatter-engine/scatter/sshard"
)

// Codec satisfies [serasure.Codec] with split+XOR semantics.
type Codec struct {
	k int
	m int
}

// NewCodec returns an XOR fallback codec producing k data and m parity
// fragments per shard.
func NewCodec(k, m int) (*Codec, error) {
	if k <= 0 {
		return nil, fmt.Errorf("data fragment count must be > 0")
	}
	if m <= 0 {
		return nil, fmt.Errorf("parity fragment count must be > 0")
	}
	return &Codec{k: k, m: m}, nil
}

// Encode satisfies [serasure.Codec]. The shard is cut into k equal-size
// fragments, the last zero-padded, and each of the m parity fragments is the
// byte-wise XOR of all data fragments.
func (c *Codec) Encode(_ context.Context, shard sshard.EncryptedShard) ([]sshard.Fragment, error) {
	if len(shard.Data) == 0 {
		return nil, fmt.Errorf("cannot encode empty shard %q", shard.ID)
	}

	fragSize := (len(shard.Data) + c.k - 1) / c.k
	allShards := make([][]byte, c.k+c.m)

	for i := 0; i < c.k; i++ {
		b := make([]byte, fragSize)
		start := i * fragSize
		if start < len(shard.Data) {
			copy(b, shard.Data[start:])
		}
		allShards[i] = b
	}

	parity := make([]byte, fragSize)
	for i := 0; i < c.k; i++ {
		for j, v := range allShards[i] {
			parity[j] ^= v
		}
	}
	for i := c.k; i < c.k+c.m; i++ {
		b := make([]byte, fragSize)
		copy(b, parity)
		allShards[i] = b
	}

	return serasure.BuildFragments(shard.ID, c.k, allShards), nil
}

// Decode satisfies [serasure.Codec]. Every data fragment must be present;
// parity fragments are ignored for reconstruction and cannot substitute for
// a missing data fragment.
func (c *Codec) Decode(_ context.Context, fragments []sshard.Fragment, sizeHint int) (sshard.EncryptedShard, error) {
	if err := serasure.ValidateFragments(fragments); err != nil {
		return sshard.EncryptedShard{}, err
	}

	dataShards := make([][]byte, c.k)
	var parentID string
	have := 0
	for _, f := range fragments {
		if f.Kind != sshard.DataFragment {
			continue
		}
		if f.Index < 0 || f.Index >= c.k {
			return sshard.EncryptedShard{}, fmt.Errorf("data fragment index %d out of range [0,%d)", f.Index, c.k)
		}
		if dataShards[f.Index] != nil {
			continue
		}
		dataShards[f.Index] = f.Data
		parentID = f.ParentID
		have++
	}
	if have < c.k {
		return sshard.EncryptedShard{}, fmt.Errorf("%w: XOR fallback needs all %d data fragments, have %d",
			serasure.ErrInsufficientFragments, c.k, have)
	}

	data := make([]byte, 0, sizeHint)
	for i := 0; i < c.k && len(data) < sizeHint; i++ {
		remaining := sizeHint - len(data)
		if remaining > len(dataShards[i]) {
			remaining = len(dataShards[i])
		}
		data = append(data, dataShards[i][:remaining]...)
	}
	if len(data) != sizeHint {
		return sshard.EncryptedShard{}, fmt.Errorf("reconstructed %d bytes, expected %d", len(data), sizeHint)
	}

	return sshard.NewEncryptedShard(parentID, data), nil
}

// Mode satisfies [serasure.Codec].
func (c *Codec) Mode() sshard.CodecMode { return sshard.ModeXORFallback }
