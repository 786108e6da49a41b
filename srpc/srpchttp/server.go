// Package srpchttp is the reference HTTP binding for the host RPC contract:
// a Host serves the storage/witness surface over JSON routes, and Client
// implements [srpc.HostClient] against such hosts. The interfaces in
// [srpc] remain the contract; this binding is one interchangeable transport.
package srpchttp

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/mux"

	"github.com/scatter-engine/scatter/scrypto"
	"github.com/scatter-engine/scatter/srpc"
	"github.com/scatter-engine/scatter/sshard"
	"github.com/scatter-engine/scatter/switness"
)

// Host is an in-process storage/witness host with an HTTP surface.
// Fragments live in memory; the host is a reference implementation for
// local fleets and tests, not a production storage daemon.
type Host struct {
	log    *slog.Logger
	id     string
	signer *scrypto.Ed25519Signer

	mu        sync.Mutex
	fragments map[string][]sshard.Fragment
	issued    map[string][]byte
}

// NewHost creates a host with a fresh Ed25519 identity.
func NewHost(log *slog.Logger, id string) (*Host, error) {
	if log == nil {
		log = slog.Default()
	}
	signer, err := scrypto.NewEd25519Signer(nil)
	if err != nil {
		return nil, err
	}
	return &Host{
		log:       log,
		id:        id,
		signer:    signer,
		fragments: make(map[string][]sshard.Fragment),
		issued:    make(map[string][]byte),
	}, nil
}

// Router returns the host's HTTP handler.
func (h *Host) Router() http.Handler {
	r := mux.NewRouter()
	// Shard IDs contain slashes and arrive percent-encoded in the path.
	r.UseEncodedPath()
	r.HandleFunc("/v1/fragments", h.handleStoreFragment).Methods("POST")
	r.HandleFunc("/v1/shards/{shardID}/fragments", h.handleFetchFragments).Methods("GET")
	r.HandleFunc("/v1/liveness", h.handleLiveness).Methods("GET")
	r.HandleFunc("/v1/attestations", h.handleAttest).Methods("POST")
	r.HandleFunc("/v1/attestations/verify", h.handleVerify).Methods("POST")
	return r
}

func (h *Host) handleStoreFragment(w http.ResponseWriter, req *http.Request) {
	var body srpc.StoreFragmentRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if sshard.FragmentChecksum(body.Data) != body.Checksum {
		http.Error(w, "fragment checksum mismatch", http.StatusUnprocessableEntity)
		return
	}

	h.mu.Lock()
	h.fragments[body.ParentID] = append(h.fragments[body.ParentID], sshard.Fragment{
		ID:       body.FragmentID,
		Kind:     body.Kind,
		Data:     body.Data,
		Size:     len(body.Data),
		Checksum: body.Checksum,
		ParentID: body.ParentID,
		Index:    body.Index,
	})
	h.mu.Unlock()

	writeJSON(w, srpc.StoreFragmentResponse{NodeID: h.id, FragmentID: body.FragmentID})
}

func (h *Host) handleFetchFragments(w http.ResponseWriter, req *http.Request) {
	shardID, err := url.PathUnescape(mux.Vars(req)["shardID"])
	if err != nil {
		http.Error(w, "malformed shard ID", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	stored := h.fragments[shardID]
	out := make([]sshard.Fragment, len(stored))
	copy(out, stored)
	h.mu.Unlock()

	writeJSON(w, srpc.FetchFragmentsResponse{Fragments: out})
}

func (h *Host) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, srpc.LivenessResponse{Alive: true})
}

func (h *Host) handleAttest(w http.ResponseWriter, req *http.Request) {
	var body srpc.AttestationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg := switness.AttestationMessage(body.DistributionID, body.Checksums, body.StorageNodeIDs, body.Timestamp)
	sig := h.signer.Sign(msg)

	h.mu.Lock()
	h.issued[hex.EncodeToString(sig)] = msg
	h.mu.Unlock()

	writeJSON(w, sshard.WitnessProof{
		WitnessID:    h.id,
		NodeID:       h.id,
		Timestamp:    body.Timestamp,
		Signature:    sig,
		Checksums:    body.Checksums,
		Availability: 1.0,
	})
}

func (h *Host) handleVerify(w http.ResponseWriter, req *http.Request) {
	var body srpc.VerifyAttestationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	msg, known := h.issued[hex.EncodeToString(body.Proof.Signature)]
	h.mu.Unlock()

	valid := known &&
		h.signer.PubKey().Verify(msg, body.Proof.Signature) &&
		checksumSetsEqual(body.Proof.Checksums, body.ExpectedChecksums)
	writeJSON(w, srpc.VerifyAttestationResponse{Valid: valid})
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

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Server runs a Host on a listener until the context is canceled.
type Server struct {
	done chan struct{}
}

// NewServer starts serving and returns immediately; use Wait to block until
// shutdown.
func NewServer(ctx context.Context, log *slog.Logger, ln net.Listener, host *Host) *Server {
	srv := &http.Server{
		Handler: host.Router(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s := &Server{done: make(chan struct{})}
	go s.serve(log, ln, srv)
	go s.waitForShutdown(ctx, srv)
	return s
}

// Wait blocks until the server has stopped serving.
func (s *Server) Wait() {
	<-s.done
}

func (s *Server) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-s.done:
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (s *Server) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(s.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("Host HTTP server shutting down")
		} else {
			log.Info("Host HTTP server shutting down due to error", "err", err)
		}
	}
}
