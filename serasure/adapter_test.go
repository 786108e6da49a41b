package serasure_test

import (
	"context"
	"errors"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/scatter-engine/scatter/serasure"
	"github.com/scatter-engine/scatter/serasure/sereedsolomon"
	"github.com/scatter-engine/scatter/serasure/sexor"
	"github.com/scatter-engine/scatter/sshard"
)

// brokenCodec always fails, standing in for an unavailable native backend.
type brokenCodec struct {
	mode sshard.CodecMode
}

func (b brokenCodec) Encode(context.Context, sshard.EncryptedShard) ([]sshard.Fragment, error) {
	return nil, errors.New("native backend unavailable")
}

func (b brokenCodec) Decode(context.Context, []sshard.Fragment, int) (sshard.EncryptedShard, error) {
	return sshard.EncryptedShard{}, errors.New("native backend unavailable")
}

func (b brokenCodec) Mode() sshard.CodecMode { return b.mode }

func newAdapter(t *testing.T, primary, fallback serasure.Codec) *serasure.Adapter {
	t.Helper()
	return serasure.NewAdapter(slogt.New(t), primary, fallback)
}

func TestAdapter_PrimaryPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	rs, err := sereedsolomon.NewCodec(8, 2)
	require.NoError(t, err)
	xor, err := sexor.NewCodec(8, 2)
	require.NoError(t, err)

	a := newAdapter(t, rs, xor)

	shard := sshard.NewEncryptedShard("s1", make([]byte, 4096))
	frags, mode, err := a.Encode(ctx, shard)
	require.NoError(t, err)
	require.Equal(t, sshard.ModeReedSolomon, mode)
	require.Len(t, frags, 10)

	// Reed-Solomon mode tolerates losing data fragments.
	got, err := a.Decode(ctx, frags[2:], shard.Size, mode)
	require.NoError(t, err)
	require.Equal(t, shard.Checksum, got.Checksum)
}

func TestAdapter_FallbackEngages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	xor, err := sexor.NewCodec(8, 2)
	require.NoError(t, err)

	a := newAdapter(t, brokenCodec{mode: sshard.ModeReedSolomon}, xor)

	shard := sshard.NewEncryptedShard("s2", []byte("fallback payload that still needs to round trip"))
	frags, mode, err := a.Encode(ctx, shard)
	require.NoError(t, err)
	require.Equal(t, sshard.ModeXORFallback, mode)
	require.Len(t, frags, 10)

	got, err := a.Decode(ctx, frags, shard.Size, mode)
	require.NoError(t, err)
	require.Equal(t, shard.Checksum, got.Checksum)

	// The documented fallback asymmetry: a missing data fragment is fatal
	// even with all parity fragments present.
	_, err = a.Decode(ctx, frags[1:], shard.Size, mode)
	require.ErrorIs(t, err, serasure.ErrInsufficientFragments)
}

func TestAdapter_BothPathsFailing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	a := newAdapter(t,
		brokenCodec{mode: sshard.ModeReedSolomon},
		brokenCodec{mode: sshard.ModeXORFallback},
	)

	shard := sshard.NewEncryptedShard("s3", []byte("doomed"))
	_, _, err := a.Encode(ctx, shard)
	require.ErrorIs(t, err, serasure.ErrEncodingFailed)
}
