// Package switness obtains and re-validates third-party attestations that a
// distribution's fragments were placed on a set of hosts.
//
// Witnesses are for fairness and accountability, not data recovery: a
// distribution with zero proofs is still usable, it just cannot prove
// placement to anyone later.
package switness

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/scatter-engine/scatter/snode"
	"github.com/scatter-engine/scatter/srpc"
	"github.com/scatter-engine/scatter/sshard"
)

// Config carries the attestation policy knobs.
type Config struct {
	// MinWitnesses is how many witnesses are asked to attest.
	MinWitnesses int

	// RPCTimeout bounds each attestation and verification call.
	RPCTimeout time.Duration

	// Rand drives witness selection. Nil means the shared global source.
	Rand *rand.Rand
}

// DefaultConfig returns the reference policy: 3 witnesses, 10s per RPC.
func DefaultConfig() Config {
	return Config{
		MinWitnesses: 3,
		RPCTimeout:   10 * time.Second,
	}
}

// Service requests and re-validates witness proofs.
type Service struct {
	log    *slog.Logger
	client srpc.WitnessClient
	cfg    Config
}

// NewService returns a witness service over the given client.
func NewService(log *slog.Logger, client srpc.WitnessClient, cfg Config) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MinWitnesses <= 0 {
		cfg.MinWitnesses = DefaultConfig().MinWitnesses
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = DefaultConfig().RPCTimeout
	}
	return &Service{log: log, client: client, cfg: cfg}
}

// Attest asks MinWitnesses hosts to sign an attestation over the fragment
// checksums and storage node set of one distribution. Witnesses are drawn at
// random, preferring candidates that are not storage nodes for this
// distribution; only when too few disjoint candidates exist does selection
// fall back to overlapping nodes. A witness that fails to respond is omitted
// without retry, so the returned slice may hold fewer than MinWitnesses
// proofs, including zero.
func (s *Service) Attest(
	ctx context.Context,
	distributionID string,
	checksums []string,
	candidates []snode.Node,
	storageNodeIDs []string,
) []sshard.WitnessProof {
	witnesses := s.pickWitnesses(candidates, storageNodeIDs)
	if len(witnesses) == 0 {
		return nil
	}

	ts := time.Now().UTC()

	var (
		mu     sync.Mutex
		proofs []sshard.WitnessProof
		wg     sync.WaitGroup
	)
	for _, w := range witnesses {
		wg.Add(1)
		go func(w snode.Node) {
			defer wg.Done()

			rpcCtx, cancel := context.WithTimeout(ctx, s.cfg.RPCTimeout)
			defer cancel()

			proof, err := s.client.RequestAttestation(rpcCtx, srpc.AttestationRequest{
				NodeID:         w.ID,
				DistributionID: distributionID,
				Checksums:      checksums,
				StorageNodeIDs: storageNodeIDs,
				Timestamp:      ts,
			})
			if err != nil {
				s.log.Debug("Witness did not respond; omitting",
					"distribution", distributionID, "witness", w.ID, "err", err)
				return
			}

			mu.Lock()
			proofs = append(proofs, proof)
			mu.Unlock()
		}(w)
	}
	wg.Wait()

	return proofs
}

// pickWitnesses selects up to MinWitnesses nodes at random, disjoint from
// the storage set when the candidate pool allows it.
func (s *Service) pickWitnesses(candidates []snode.Node, storageNodeIDs []string) []snode.Node {
	storing := make(map[string]bool, len(storageNodeIDs))
	for _, id := range storageNodeIDs {
		storing[id] = true
	}

	var disjoint, overlapping []snode.Node
	for _, c := range candidates {
		if storing[c.ID] {
			overlapping = append(overlapping, c)
		} else {
			disjoint = append(disjoint, c)
		}
	}

	shuffle := func(nodes []snode.Node) {
		swap := func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] }
		if s.cfg.Rand != nil {
			s.cfg.Rand.Shuffle(len(nodes), swap)
		} else {
			rand.Shuffle(len(nodes), swap)
		}
	}
	shuffle(disjoint)
	shuffle(overlapping)

	picked := disjoint
	if len(picked) > s.cfg.MinWitnesses {
		picked = picked[:s.cfg.MinWitnesses]
	} else if len(picked) < s.cfg.MinWitnesses {
		need := s.cfg.MinWitnesses - len(picked)
		if need > len(overlapping) {
			need = len(overlapping)
		}
		picked = append(picked, overlapping[:need]...)
	}
	return picked
}

// VerifyResult reports the outcome of re-validating a distribution's proofs.
type VerifyResult struct {
	AllValid  bool
	FailedIDs []string
}

// Verify recomputes the expected fragment checksums from the distribution's
// current fragment list and asks each recorded witness to re-validate its
// proof. A verification-call error counts as a failed witness (fail closed).
// Failed proofs are reported, never deleted; what to do about them is the
// caller's policy.
func (s *Service) Verify(ctx context.Context, ds *sshard.DistributedShard) VerifyResult {
	expected := make([]string, len(ds.Fragments))
	for i, f := range ds.Fragments {
		expected[i] = sshard.FragmentChecksum(f.Data)
	}

	var (
		mu     sync.Mutex
		failed []string
		wg     sync.WaitGroup
	)
	for _, proof := range ds.Proofs {
		wg.Add(1)
		go func(proof sshard.WitnessProof) {
			defer wg.Done()

			rpcCtx, cancel := context.WithTimeout(ctx, s.cfg.RPCTimeout)
			defer cancel()

			resp, err := s.client.VerifyAttestation(rpcCtx, srpc.VerifyAttestationRequest{
				NodeID:            proof.WitnessID,
				Proof:             proof,
				ExpectedChecksums: expected,
			})
			if err != nil || !resp.Valid {
				if err != nil {
					s.log.Debug("Witness verification call failed; treating as invalid",
						"witness", proof.WitnessID, "err", err)
				}
				mu.Lock()
				failed = append(failed, proof.WitnessID)
				mu.Unlock()
			}
		}(proof)
	}
	wg.Wait()

	slices.Sort(failed)
	return VerifyResult{AllValid: len(failed) == 0, FailedIDs: failed}
}

// AttestationMessage builds the deterministic byte string a witness signs:
// the distribution ID, the sorted fragment checksums, the sorted storage
// node IDs, and the UNIX-nano timestamp, newline separated. Signers and
// verifiers must agree on this construction exactly.
func AttestationMessage(distributionID string, checksums, storageNodeIDs []string, ts time.Time) []byte {
	sums := slices.Clone(checksums)
	slices.Sort(sums)
	ids := slices.Clone(storageNodeIDs)
	slices.Sort(ids)

	var b strings.Builder
	b.WriteString("scatter/attestation/v1\n")
	b.WriteString(distributionID)
	b.WriteByte('\n')
	b.WriteString(strings.Join(sums, ","))
	b.WriteByte('\n')
	b.WriteString(strings.Join(ids, ","))
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(ts.UnixNano(), 10))
	return []byte(b.String())
}
