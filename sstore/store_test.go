package sstore_test

import (
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/scatter-engine/scatter/sshard"
	"github.com/scatter-engine/scatter/sstore"
)

func openStore(t *testing.T) *sstore.Store {
	t.Helper()

	s, err := sstore.OpenInMemory(slogt.New(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecord(shardID string) *sshard.DistributedShard {
	data := []byte("record payload")
	return &sshard.DistributedShard{
		DistributionID: "d-" + shardID,
		Shard:          sshard.NewEncryptedShard(shardID, data),
		Fragments: []sshard.Fragment{
			{ID: shardID + "/data/0", Data: data, Checksum: sshard.FragmentChecksum(data), ParentID: shardID},
		},
		Proofs: []sshard.WitnessProof{
			{WitnessID: "w1", NodeID: "w1", Timestamp: time.Now().UTC().Truncate(time.Second), Signature: []byte{1, 2, 3}, Checksums: []string{"c"}, Availability: 1},
		},
		Nodes:           []string{"n1", "n2"},
		RedundancyLevel: 0.2,
		Mode:            sshard.ModeReedSolomon,
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := openStore(t)

	want := sampleRecord("shard-a")
	require.NoError(t, s.Put(want))

	got, err := s.Get("shard-a")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestStore_GetMissing(t *testing.T) {
	s := openStore(t)

	_, err := s.Get("nope")
	require.ErrorIs(t, err, sstore.ErrNotFound)
}

func TestStore_PutReplacesAfterHealing(t *testing.T) {
	s := openStore(t)

	rec := sampleRecord("shard-b")
	require.NoError(t, s.Put(rec))

	rec.Nodes = []string{"n3", "n4", "n5"}
	rec.RedundancyLevel = 0.3
	require.NoError(t, s.Put(rec))

	got, err := s.Get("shard-b")
	require.NoError(t, err)
	require.Equal(t, []string{"n3", "n4", "n5"}, got.Nodes)
	require.InDelta(t, 0.3, got.RedundancyLevel, 1e-9)
}

func TestStore_ShardIDs(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Put(sampleRecord("shard-1")))
	require.NoError(t, s.Put(sampleRecord("shard-2")))

	ids, err := s.ShardIDs()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"shard-1", "shard-2"}, ids)
}
