// Package srpc defines the checked contract for every call this subsystem
// makes to a storage or witness host. Each RPC has its own tagged request
// and response type; transports implement the client interfaces and the
// orchestration layers stay transport-agnostic.
package srpc

import (
	"context"
	"time"

	"github.com/scatter-engine/scatter/sshard"
)

// StoreFragmentRequest asks a host to store one fragment.
type StoreFragmentRequest struct {
	NodeID     string
	FragmentID string
	Kind       sshard.FragmentKind
	ParentID   string
	Index      int
	Checksum   string
	Data       []byte
}

// StoreFragmentResponse acknowledges a successful store.
type StoreFragmentResponse struct {
	NodeID     string
	FragmentID string
}

// FetchFragmentsRequest asks a host for every fragment it holds for a shard.
type FetchFragmentsRequest struct {
	NodeID        string
	ParentShardID string
}

// FetchFragmentsResponse carries zero or more fragments for the shard.
type FetchFragmentsResponse struct {
	Fragments []sshard.Fragment
}

// LivenessRequest asks a host for a lightweight liveness signal.
type LivenessRequest struct {
	NodeID string
}

// LivenessResponse reports whether the host considers itself serving.
type LivenessResponse struct {
	Alive bool
}

// AttestationRequest asks a witness host to sign an attestation over a
// distribution's fragment checksums and storage node set.
type AttestationRequest struct {
	NodeID         string
	DistributionID string
	Checksums      []string
	StorageNodeIDs []string
	Timestamp      time.Time
}

// VerifyAttestationRequest asks the issuing witness to re-validate a proof
// against the checksums the caller currently expects.
type VerifyAttestationRequest struct {
	NodeID            string
	Proof             sshard.WitnessProof
	ExpectedChecksums []string
}

// VerifyAttestationResponse reports the witness's verdict.
type VerifyAttestationResponse struct {
	Valid bool
}

// StoreClient stores fragments on hosts.
type StoreClient interface {
	StoreFragment(ctx context.Context, req StoreFragmentRequest) (StoreFragmentResponse, error)
}

// FetchClient fetches fragments back from hosts.
type FetchClient interface {
	FetchFragments(ctx context.Context, req FetchFragmentsRequest) (FetchFragmentsResponse, error)
}

// ProbeClient checks host liveness.
type ProbeClient interface {
	CheckLiveness(ctx context.Context, req LivenessRequest) (LivenessResponse, error)
}

// WitnessClient obtains and re-validates attestations.
type WitnessClient interface {
	RequestAttestation(ctx context.Context, req AttestationRequest) (sshard.WitnessProof, error)
	VerifyAttestation(ctx context.Context, req VerifyAttestationRequest) (VerifyAttestationResponse, error)
}

// HostClient is the full client surface against a host fleet.
type HostClient interface {
	StoreClient
	FetchClient
	ProbeClient
	WitnessClient
}
