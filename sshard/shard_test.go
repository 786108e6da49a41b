package sshard_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scatter-engine/scatter/sshard"
)

func TestChecksums(t *testing.T) {
	t.Parallel()

	data := []byte("checksummed bytes")

	require.Equal(t, sshard.FragmentChecksum(data), sshard.FragmentChecksum(data))
	require.NotEqual(t, sshard.FragmentChecksum(data), sshard.FragmentChecksum([]byte("other bytes")))
	require.Len(t, sshard.FragmentChecksum(data), 16) // 64-bit hash, hex

	require.Equal(t, sshard.ShardChecksum(data), sshard.ShardChecksum(data))
	require.NotEqual(t, sshard.ShardChecksum(data), sshard.ShardChecksum([]byte("other bytes")))
	require.Len(t, sshard.ShardChecksum(data), 64) // 256-bit hash, hex
}

func TestNewEncryptedShard(t *testing.T) {
	t.Parallel()

	data := []byte("payload")
	s := sshard.NewEncryptedShard("id-1", data)
	require.Equal(t, "id-1", s.ID)
	require.Equal(t, len(data), s.Size)
	require.Equal(t, sshard.ShardChecksum(data), s.Checksum)
}

func TestFragmentChecksums(t *testing.T) {
	t.Parallel()

	frags := []sshard.Fragment{
		{Checksum: "aa"},
		{Checksum: "bb"},
	}
	require.Equal(t, []string{"aa", "bb"}, sshard.FragmentChecksums(frags))
}
