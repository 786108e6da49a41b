package serasuretest

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scatter-engine/scatter/serasure"
	"github.com/scatter-engine/scatter/sshard"
)

// Factory is the factory function used for [TestCodecCompliance].
type Factory func(k, m int) serasure.Codec

// TestCodecCompliance is the compliance test for [serasure.Codec]
// implementations.
//
// anySubset declares the codec's recovery guarantee: true means any k of the
// k+m fragments reconstruct the shard (Reed-Solomon), false means all k data
// fragments are required and parity cannot substitute (the XOR fallback).
func TestCodecCompliance(t *testing.T, f Factory, anySubset bool) {
	t.Helper()

	for _, counts := range [][2]int{
		{8, 2}, // reference deployment
		{4, 2},
		{10, 4},
	} {
		k, m := counts[0], counts[1]
		t.Run(fmt.Sprintf("%d data and %d parity fragments", k, m), func(t *testing.T) {
			for _, dataSize := range []int{
				// Powers of two:
				1024, 1024 * 16, 1024 * 1024,

				// And non-powers-of-two, to exercise final-fragment padding:
				300, 1000, 25_000, 250_000,
			} {
				t.Run(fmt.Sprintf("data size = %d", dataSize), func(t *testing.T) {
					t.Parallel()

					ctx, cancel := context.WithCancel(context.Background())
					defer cancel()

					// Seed an RNG from the test parameters
					// so each case gets distinct source data.
					seed := [32]byte{}
					binary.LittleEndian.PutUint32(seed[:8], uint32(k))
					binary.LittleEndian.PutUint32(seed[8:16], uint32(m))
					binary.LittleEndian.PutUint64(seed[16:], uint64(dataSize))
					chacha := rand.NewChaCha8(seed)

					data := make([]byte, dataSize)
					_, _ = chacha.Read(data) // ChaCha8 reads don't error.

					shard := sshard.NewEncryptedShard("compliance-shard", data)

					codec := f(k, m)
					frags, err := codec.Encode(ctx, shard)
					require.NoError(t, err)
					require.Len(t, frags, k+m)

					for i, fr := range frags {
						require.Equal(t, i, fr.Index)
						require.Equal(t, shard.ID, fr.ParentID)
						require.Equal(t, sshard.FragmentChecksum(fr.Data), fr.Checksum)
						if i < k {
							require.Equal(t, sshard.DataFragment, fr.Kind)
						} else {
							require.Equal(t, sshard.ParityFragment, fr.Kind)
						}
					}

					t.Run("round trip with full fragment set", func(t *testing.T) {
						got, err := codec.Decode(ctx, frags, shard.Size)
						require.NoError(t, err)
						require.True(t, bytes.Equal(got.Data, shard.Data))
						require.Equal(t, shard.Checksum, got.Checksum)
					})

					if anySubset {
						t.Run("round trip with random k-subset", func(t *testing.T) {
							rng := rand.New(chacha)
							subset := make([]sshard.Fragment, 0, k)
							for _, idx := range rng.Perm(len(frags))[:k] {
								subset = append(subset, frags[idx])
							}

							got, err := codec.Decode(ctx, subset, shard.Size)
							require.NoError(t, err)
							require.True(t, bytes.Equal(got.Data, shard.Data))
						})
					} else {
						t.Run("missing data fragment fails even with all parity", func(t *testing.T) {
							// Drop data fragment 0, keep everything else.
							subset := frags[1:]
							_, err := codec.Decode(ctx, subset, shard.Size)
							require.ErrorIs(t, err, serasure.ErrInsufficientFragments)
						})
					}

					t.Run("fewer than k fragments fails", func(t *testing.T) {
						_, err := codec.Decode(ctx, frags[:k-1], shard.Size)
						require.ErrorIs(t, err, serasure.ErrInsufficientFragments)
					})

					t.Run("corrupt fragment is rejected before decode", func(t *testing.T) {
						corrupted := make([]sshard.Fragment, len(frags))
						copy(corrupted, frags)
						tampered := bytes.Clone(frags[0].Data)
						tampered[0] ^= 0xff
						corrupted[0].Data = tampered

						_, err := codec.Decode(ctx, corrupted, shard.Size)
						require.ErrorIs(t, err, serasure.ErrCorruptFragment)
					})
				})
			}
		})
	}
}
