// Package srpctest provides an in-memory host fleet implementing
// [srpc.HostClient], with per-node failure injection for exercising
// partial-failure paths.
package srpctest

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/scatter-engine/scatter/scrypto"
	"github.com/scatter-engine/scatter/snode"
	"github.com/scatter-engine/scatter/srpc"
	"github.com/scatter-engine/scatter/sshard"
	"github.com/scatter-engine/scatter/switness"
)

type host struct {
	id     string
	signer *scrypto.Ed25519Signer

	// fragments maps parent shard ID to the fragments this host holds.
	fragments map[string][]sshard.Fragment

	// issued maps hex(signature) to the exact message the host signed,
	// so verification can replay it.
	issued map[string][]byte
}

// Fleet is an in-memory fleet of storage/witness hosts.
// The zero value is not usable; call [NewFleet].
type Fleet struct {
	mu    sync.Mutex
	hosts map[string]*host

	storeFailing   map[string]bool
	fetchFailing   map[string]bool
	witnessFailing map[string]bool
	down           map[string]bool
}

// NewFleet returns an empty fleet.
func NewFleet() *Fleet {
	return &Fleet{
		hosts:          make(map[string]*host),
		storeFailing:   make(map[string]bool),
		fetchFailing:   make(map[string]bool),
		witnessFailing: make(map[string]bool),
		down:           make(map[string]bool),
	}
}

// AddHost registers a host with a fresh Ed25519 identity.
func (f *Fleet) AddHost(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	signer, err := scrypto.NewEd25519Signer(nil)
	if err != nil {
		panic(fmt.Errorf("generate host key: %w", err))
	}
	f.hosts[id] = &host{
		id:        id,
		signer:    signer,
		fragments: make(map[string][]sshard.Fragment),
		issued:    make(map[string][]byte),
	}
}

// AddNodes registers a host per node snapshot.
func (f *Fleet) AddNodes(nodes []snode.Node) {
	for _, n := range nodes {
		f.AddHost(n.ID)
	}
}

// SetStoreFailing makes store calls to the node fail.
func (f *Fleet) SetStoreFailing(id string, failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeFailing[id] = failing
}

// SetFetchFailing makes fetch calls to the node fail.
func (f *Fleet) SetFetchFailing(id string, failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchFailing[id] = failing
}

// SetWitnessFailing makes attestation and verification calls to the node fail.
func (f *Fleet) SetWitnessFailing(id string, failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.witnessFailing[id] = failing
}

// SetDown makes the node unreachable for every RPC, liveness included.
func (f *Fleet) SetDown(id string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[id] = down
}

// CorruptFragments flips a byte in every fragment the node holds for the
// shard, leaving the recorded checksums stale.
func (f *Fleet) CorruptFragments(id, parentShardID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hosts[id]
	if !ok {
		return
	}
	for i := range h.fragments[parentShardID] {
		frag := &h.fragments[parentShardID][i]
		if len(frag.Data) > 0 {
			frag.Data[0] ^= 0xff
		}
	}
}

// FragmentCount reports how many fragments the node holds for a shard.
func (f *Fleet) FragmentCount(id, parentShardID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hosts[id]
	if !ok {
		return 0
	}
	return len(h.fragments[parentShardID])
}

// StoreFragment satisfies [srpc.StoreClient].
func (f *Fleet) StoreFragment(ctx context.Context, req srpc.StoreFragmentRequest) (srpc.StoreFragmentResponse, error) {
	if err := ctx.Err(); err != nil {
		return srpc.StoreFragmentResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	h, ok := f.hosts[req.NodeID]
	if !ok || f.down[req.NodeID] {
		return srpc.StoreFragmentResponse{}, fmt.Errorf("node %s unreachable", req.NodeID)
	}
	if f.storeFailing[req.NodeID] {
		return srpc.StoreFragmentResponse{}, fmt.Errorf("node %s refused store", req.NodeID)
	}

	h.fragments[req.ParentID] = append(h.fragments[req.ParentID], sshard.Fragment{
		ID:       req.FragmentID,
		Kind:     req.Kind,
		Data:     append([]byte(nil), req.Data...),
		Size:     len(req.Data),
		Checksum: req.Checksum,
		ParentID: req.ParentID,
		Index:    req.Index,
	})
	return srpc.StoreFragmentResponse{NodeID: req.NodeID, FragmentID: req.FragmentID}, nil
}

// FetchFragments satisfies [srpc.FetchClient].
func (f *Fleet) FetchFragments(ctx context.Context, req srpc.FetchFragmentsRequest) (srpc.FetchFragmentsResponse, error) {
	if err := ctx.Err(); err != nil {
		return srpc.FetchFragmentsResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	h, ok := f.hosts[req.NodeID]
	if !ok || f.down[req.NodeID] {
		return srpc.FetchFragmentsResponse{}, fmt.Errorf("node %s unreachable", req.NodeID)
	}
	if f.fetchFailing[req.NodeID] {
		return srpc.FetchFragmentsResponse{}, fmt.Errorf("node %s refused fetch", req.NodeID)
	}

	stored := h.fragments[req.ParentShardID]
	out := make([]sshard.Fragment, len(stored))
	copy(out, stored)
	return srpc.FetchFragmentsResponse{Fragments: out}, nil
}

// CheckLiveness satisfies [srpc.ProbeClient].
func (f *Fleet) CheckLiveness(ctx context.Context, req srpc.LivenessRequest) (srpc.LivenessResponse, error) {
	if err := ctx.Err(); err != nil {
		return srpc.LivenessResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.hosts[req.NodeID]; !ok || f.down[req.NodeID] {
		return srpc.LivenessResponse{}, fmt.Errorf("node %s unreachable", req.NodeID)
	}
	return srpc.LivenessResponse{Alive: true}, nil
}

// RequestAttestation satisfies [srpc.WitnessClient].
func (f *Fleet) RequestAttestation(ctx context.Context, req srpc.AttestationRequest) (sshard.WitnessProof, error) {
	if err := ctx.Err(); err != nil {
		return sshard.WitnessProof{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	h, ok := f.hosts[req.NodeID]
	if !ok || f.down[req.NodeID] {
		return sshard.WitnessProof{}, fmt.Errorf("node %s unreachable", req.NodeID)
	}
	if f.witnessFailing[req.NodeID] {
		return sshard.WitnessProof{}, fmt.Errorf("node %s refused attestation", req.NodeID)
	}

	msg := switness.AttestationMessage(req.DistributionID, req.Checksums, req.StorageNodeIDs, req.Timestamp)
	sig := h.signer.Sign(msg)
	h.issued[hex.EncodeToString(sig)] = msg

	return sshard.WitnessProof{
		WitnessID:    req.NodeID,
		NodeID:       req.NodeID,
		Timestamp:    req.Timestamp,
		Signature:    sig,
		Checksums:    append([]string(nil), req.Checksums...),
		Availability: 1.0,
	}, nil
}

// VerifyAttestation satisfies [srpc.WitnessClient]. The verdict is valid only
// if the signature matches a message this host actually signed and the
// expected checksum set equals the attested one.
func (f *Fleet) VerifyAttestation(ctx context.Context, req srpc.VerifyAttestationRequest) (srpc.VerifyAttestationResponse, error) {
	if err := ctx.Err(); err != nil {
		return srpc.VerifyAttestationResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	h, ok := f.hosts[req.NodeID]
	if !ok || f.down[req.NodeID] {
		return srpc.VerifyAttestationResponse{}, fmt.Errorf("node %s unreachable", req.NodeID)
	}
	if f.witnessFailing[req.NodeID] {
		return srpc.VerifyAttestationResponse{}, fmt.Errorf("node %s refused verification", req.NodeID)
	}

	msg, ok := h.issued[hex.EncodeToString(req.Proof.Signature)]
	if !ok {
		return srpc.VerifyAttestationResponse{Valid: false}, nil
	}
	if !h.signer.PubKey().Verify(msg, req.Proof.Signature) {
		return srpc.VerifyAttestationResponse{Valid: false}, nil
	}
	if !checksumSetsEqual(req.Proof.Checksums, req.ExpectedChecksums) {
		return srpc.VerifyAttestationResponse{Valid: false}, nil
	}
	return srpc.VerifyAttestationResponse{Valid: true}, nil
}

func checksumSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, s := range a {
		counts[s]++
	}
	for _, s := range b {
		counts[s]--
		if counts[s] < 0 {
			return false
		}
	}
	return true
}
