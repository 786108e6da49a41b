package serasure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scatter-engine/scatter/sshard"
)

// Adapter is the codec entry point used by the distribution and retrieval
// layers. It delegates to the primary Reed-Solomon codec and falls back to
// the reduced-guarantee XOR codec only when the primary path fails.
//
// The fallback is NOT true Reed-Solomon: it can tolerate losing parity
// fragments but cannot repair a missing data fragment. Every fallback encode
// is logged at warning level so operators do not assume full recovery
// semantics, and the mode is surfaced to the caller so the produced
// distribution record carries it.
type Adapter struct {
	log      *slog.Logger
	primary  Codec
	fallback Codec
}

// NewAdapter returns an Adapter over the two codec paths.
// Both codecs must be configured with the same k and m.
func NewAdapter(log *slog.Logger, primary, fallback Codec) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{log: log, primary: primary, fallback: fallback}
}

// Encode produces the fragment set for shard, reporting which codec mode
// produced it. Only a failure of both paths is an error, wrapped as
// ErrEncodingFailed.
func (a *Adapter) Encode(ctx context.Context, shard sshard.EncryptedShard) ([]sshard.Fragment, sshard.CodecMode, error) {
	frags, err := a.primary.Encode(ctx, shard)
	if err == nil {
		return frags, a.primary.Mode(), nil
	}

	a.log.Warn(
		"Primary erasure codec failed; using XOR fallback with weaker recovery guarantees",
		"shard", shard.ID,
		"err", err,
	)

	frags, ferr := a.fallback.Encode(ctx, shard)
	if ferr != nil {
		return nil, "", fmt.Errorf("%w: primary: %v, fallback: %v", ErrEncodingFailed, err, ferr)
	}
	return frags, a.fallback.Mode(), nil
}

// Decode reconstructs the shard from fragments using the codec path that
// produced them, as recorded in the shard's distribution record.
func (a *Adapter) Decode(ctx context.Context, fragments []sshard.Fragment, sizeHint int, mode sshard.CodecMode) (sshard.EncryptedShard, error) {
	switch mode {
	case a.fallback.Mode():
		return a.fallback.Decode(ctx, fragments, sizeHint)
	default:
		return a.primary.Decode(ctx, fragments, sizeHint)
	}
}
