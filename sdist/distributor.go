// Package sdist drives fragment production and best-effort fan-out placement
// onto a selected node set, producing the durable distribution record.
package sdist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scatter-engine/scatter/serasure"
	"github.com/scatter-engine/scatter/snode"
	"github.com/scatter-engine/scatter/srpc"
	"github.com/scatter-engine/scatter/sshard"
	"github.com/scatter-engine/scatter/switness"
)

// Config carries the distribution policy knobs.
type Config struct {
	// DataFragments (k) and ParityFragments (m) are fixed per deployment.
	DataFragments   int
	ParityFragments int

	// RPCTimeout bounds each individual store attempt. A timed-out store is
	// recorded as a failure and never retried.
	RPCTimeout time.Duration
}

// DefaultConfig returns the reference deployment values: k=8, m=2, 10s per RPC.
func DefaultConfig() Config {
	return Config{
		DataFragments:   8,
		ParityFragments: 2,
		RPCTimeout:      10 * time.Second,
	}
}

// Distributor turns encrypted shards into distributed, attested fragment sets.
type Distributor struct {
	log      *slog.Logger
	codec    *serasure.Adapter
	selector snode.Selector
	store    srpc.StoreClient
	witness  *switness.Service
	cfg      Config

	// healMu guards healLocks; each entry serializes healing per shard ID.
	healMu    sync.Mutex
	healLocks map[string]*sync.Mutex
}

// New returns a Distributor over the given collaborators.
func New(
	log *slog.Logger,
	codec *serasure.Adapter,
	selector snode.Selector,
	store srpc.StoreClient,
	witness *switness.Service,
	cfg Config,
) *Distributor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.DataFragments <= 0 || cfg.ParityFragments <= 0 {
		def := DefaultConfig()
		cfg.DataFragments = def.DataFragments
		cfg.ParityFragments = def.ParityFragments
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = DefaultConfig().RPCTimeout
	}
	return &Distributor{
		log:       log,
		codec:     codec,
		selector:  selector,
		store:     store,
		witness:   witness,
		cfg:       cfg,
		healLocks: make(map[string]*sync.Mutex),
	}
}

// DistributeShard encodes one shard, places its fragments on a selected node
// set, and collects witness proofs. Store attempts are independent and
// best-effort: a distribution with low (even zero) redundancy is still
// returned, and only total codec failure is an error.
func (d *Distributor) DistributeShard(
	ctx context.Context,
	shard sshard.EncryptedShard,
	candidates []snode.Node,
) (*sshard.DistributedShard, error) {
	frags, mode, err := d.codec.Encode(ctx, shard)
	if err != nil {
		return nil, fmt.Errorf("distribute shard %s: %w", shard.ID, err)
	}
	n := len(frags)

	targets := d.selector.Select(candidates, n)
	accepted := d.storeFragments(ctx, frags, targets)

	redundancy := float64(len(accepted)) / float64(n)
	if redundancy > 1 {
		redundancy = 1
	}

	distributionID := uuid.New().String()

	var proofs []sshard.WitnessProof
	if d.witness != nil {
		proofs = d.witness.Attest(ctx, distributionID, sshard.FragmentChecksums(frags), candidates, accepted)
	}

	d.log.Info("Distributed shard",
		"shard", shard.ID,
		"distribution", distributionID,
		"mode", mode,
		"fragments", n,
		"nodes", len(accepted),
		"redundancy", redundancy,
		"proofs", len(proofs),
	)

	return &sshard.DistributedShard{
		DistributionID:  distributionID,
		Shard:           shard,
		Fragments:       frags,
		Proofs:          proofs,
		Nodes:           accepted,
		RedundancyLevel: redundancy,
		Mode:            mode,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// DistributeFile distributes each shard of a file. Shards are independent,
// so they run concurrently; a codec failure on any shard fails the whole
// call, since the caller cannot use a file with an undistributed shard.
func (d *Distributor) DistributeFile(
	ctx context.Context,
	shards []sshard.EncryptedShard,
	candidates []snode.Node,
) ([]*sshard.DistributedShard, error) {
	out := make([]*sshard.DistributedShard, len(shards))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		eg.Go(func() error {
			ds, err := d.DistributeShard(egCtx, shard, candidates)
			if err != nil {
				return err
			}
			out[i] = ds
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// HealShard re-stores an existing distribution's fragments on a freshly
// selected node set and replaces the record's node list and redundancy
// level. The fragments and proofs are unchanged. Healing is serialized per
// shard; concurrent heals of different shards proceed independently.
func (d *Distributor) HealShard(
	ctx context.Context,
	ds *sshard.DistributedShard,
	candidates []snode.Node,
) error {
	if ds == nil || len(ds.Fragments) == 0 {
		return fmt.Errorf("cannot heal empty distribution")
	}

	lock := d.healLock(ds.Shard.ID)
	lock.Lock()
	defer lock.Unlock()

	targets := d.selector.Select(candidates, len(ds.Fragments))
	accepted := d.storeFragments(ctx, ds.Fragments, targets)

	redundancy := float64(len(accepted)) / float64(len(ds.Fragments))
	if redundancy > 1 {
		redundancy = 1
	}

	d.log.Info("Healed shard",
		"shard", ds.Shard.ID,
		"distribution", ds.DistributionID,
		"nodes", len(accepted),
		"redundancy", redundancy,
	)

	ds.Nodes = accepted
	ds.RedundancyLevel = redundancy
	return nil
}

func (d *Distributor) healLock(shardID string) *sync.Mutex {
	d.healMu.Lock()
	defer d.healMu.Unlock()
	lock, ok := d.healLocks[shardID]
	if !ok {
		lock = new(sync.Mutex)
		d.healLocks[shardID] = lock
	}
	return lock
}

// storeFragments attempts every fragment store concurrently, assigning
// fragment i to target i%len(targets), and returns the IDs of the nodes
// that acknowledged at least one store, in fragment-index order without
// duplicates. Individual failures are logged and tolerated.
func (d *Distributor) storeFragments(
	ctx context.Context,
	frags []sshard.Fragment,
	targets []snode.Node,
) []string {
	if len(targets) == 0 {
		return nil
	}

	type outcome struct {
		idx    int
		nodeID string
		err    error
	}

	results := make(chan outcome, len(frags))
	var wg sync.WaitGroup
	for i, frag := range frags {
		node := targets[i%len(targets)]
		wg.Add(1)
		go func(i int, frag sshard.Fragment, node snode.Node) {
			defer wg.Done()

			rpcCtx, cancel := context.WithTimeout(ctx, d.cfg.RPCTimeout)
			defer cancel()

			_, err := d.store.StoreFragment(rpcCtx, srpc.StoreFragmentRequest{
				NodeID:     node.ID,
				FragmentID: frag.ID,
				Kind:       frag.Kind,
				ParentID:   frag.ParentID,
				Index:      frag.Index,
				Checksum:   frag.Checksum,
				Data:       frag.Data,
			})
			results <- outcome{idx: i, nodeID: node.ID, err: err}
		}(i, frag, node)
	}
	wg.Wait()
	close(results)

	succeededAt := make(map[int]string, len(frags))
	for res := range results {
		if res.err != nil {
			d.log.Debug("Fragment store failed",
				"node", res.nodeID, "fragment", res.idx, "err", res.err)
			continue
		}
		succeededAt[res.idx] = res.nodeID
	}

	seen := make(map[string]bool, len(succeededAt))
	accepted := make([]string, 0, len(succeededAt))
	for i := range frags {
		id, ok := succeededAt[i]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		accepted = append(accepted, id)
	}
	return accepted
}
