package sereedsolomon_test

import (
	"testing"

	"github.com/scatter-engine/scatter/serasure"
	"github.com/scatter-engine/scatter/serasure/serasuretest"
	"github.com/scatter-engine/scatter/serasure/sereedsolomon"
)

func TestCodecCompliance(t *testing.T) {
	serasuretest.TestCodecCompliance(
		t,
		func(k, m int) serasure.Codec {
			c, err := sereedsolomon.NewCodec(k, m)
			if err != nil {
				panic(err)
			}
			return c
		},
		true, // Any k fragments reconstruct, regardless of kind mix.
	)
}
