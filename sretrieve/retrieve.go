// Package sretrieve fans read requests out to a distribution's recorded node
// set, reconstructs the shard from whatever fragments come back, and offers a
// cheap availability estimate that avoids full reconstruction.
package sretrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"github.com/scatter-engine/scatter/serasure"
	"github.com/scatter-engine/scatter/srpc"
	"github.com/scatter-engine/scatter/sshard"
)

// Config carries the retrieval policy knobs.
type Config struct {
	// DataFragments (k) is the minimum pool size worth attempting a decode.
	DataFragments int

	// RPCTimeout bounds each fetch and liveness probe.
	RPCTimeout time.Duration

	// AvailabilityThreshold is the minimum fraction of shards with a live
	// node for a file to be considered retrievable. Zero or negative
	// selects the 0.6 default; a threshold of exactly 0 is not
	// expressible, so callers that want every probe to pass should set a
	// negligible positive value instead.
	AvailabilityThreshold float64
}

// DefaultConfig returns the reference values: k=8, 10s per RPC, 0.6 threshold.
func DefaultConfig() Config {
	return Config{
		DataFragments:         8,
		RPCTimeout:            10 * time.Second,
		AvailabilityThreshold: 0.6,
	}
}

// Engine retrieves and reconstructs distributed shards.
type Engine struct {
	log   *slog.Logger
	codec *serasure.Adapter
	fetch srpc.FetchClient
	probe srpc.ProbeClient
	cfg   Config
}

// New returns an Engine over the given collaborators.
func New(log *slog.Logger, codec *serasure.Adapter, fetch srpc.FetchClient, probe srpc.ProbeClient, cfg Config) *Engine {
	if log == nil {
		log = slog.Default()
	}
	def := DefaultConfig()
	if cfg.DataFragments <= 0 {
		cfg.DataFragments = def.DataFragments
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = def.RPCTimeout
	}
	if cfg.AvailabilityThreshold <= 0 {
		cfg.AvailabilityThreshold = def.AvailabilityThreshold
	}
	return &Engine{log: log, codec: codec, fetch: fetch, probe: probe, cfg: cfg}
}

// RetrieveShard contacts every recorded node concurrently, pools the
// fragments that come back, and reconstructs once at least k are present.
// Failures are reported in the result, never raised: the caller decides
// whether to retry with a refreshed node list.
func (e *Engine) RetrieveShard(ctx context.Context, ds *sshard.DistributedShard) sshard.RetrievalResult {
	start := time.Now()
	result := sshard.RetrievalResult{NodesContacted: len(ds.Nodes)}

	type outcome struct {
		nodeID string
		frags  []sshard.Fragment
		err    error
	}

	outcomes := make(chan outcome, len(ds.Nodes))
	var wg sync.WaitGroup
	for _, nodeID := range ds.Nodes {
		wg.Add(1)
		go func(nodeID string) {
			defer wg.Done()

			rpcCtx, cancel := context.WithTimeout(ctx, e.cfg.RPCTimeout)
			defer cancel()

			resp, err := e.fetch.FetchFragments(rpcCtx, srpc.FetchFragmentsRequest{
				NodeID:        nodeID,
				ParentShardID: ds.Shard.ID,
			})
			outcomes <- outcome{nodeID: nodeID, frags: resp.Fragments, err: err}
		}(nodeID)
	}
	wg.Wait()
	close(outcomes)

	// Pool fragments, deduplicating by index; duplicates are expected when
	// healing has placed the same fragment on multiple nodes.
	seen := bitset.New(uint(len(ds.Fragments)))
	var pool []sshard.Fragment
	for o := range outcomes {
		if o.err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("node %s: %v", o.nodeID, o.err))
			continue
		}
		result.NodesResponded++
		for _, f := range o.frags {
			if f.Index < 0 || seen.Test(uint(f.Index)) {
				continue
			}
			seen.Set(uint(f.Index))
			pool = append(pool, f)
		}
	}

	if len(pool) < e.cfg.DataFragments {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"insufficient fragments: retrieved %d, need %d", len(pool), e.cfg.DataFragments))
		result.Elapsed = time.Since(start)
		return result
	}

	shard, err := e.codec.Decode(ctx, pool, ds.Shard.Size, ds.Mode)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("reconstruction failed: %v", err))
		result.Elapsed = time.Since(start)
		return result
	}

	if ds.Shard.Checksum != "" && shard.Checksum != ds.Shard.Checksum {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"reconstruction failed: checksum mismatch: got %s, want %s", shard.Checksum, ds.Shard.Checksum))
		result.Elapsed = time.Since(start)
		return result
	}

	result.Success = true
	result.Shard = &shard
	result.Elapsed = time.Since(start)
	return result
}

// RetrieveFile retrieves every shard of a file concurrently and fails fast:
// the first unusable shard aborts the whole call with an error naming it,
// because a file missing any shard is unusable regardless of how gracefully
// the rest degrades.
func (e *Engine) RetrieveFile(ctx context.Context, distributed []*sshard.DistributedShard) ([]sshard.EncryptedShard, error) {
	shards := make([]sshard.EncryptedShard, len(distributed))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, ds := range distributed {
		eg.Go(func() error {
			res := e.RetrieveShard(egCtx, ds)
			if !res.Success {
				return fmt.Errorf("retrieve file: shard %s unusable: %v", ds.Shard.ID, res.Errors)
			}
			shards[i] = *res.Shard
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return shards, nil
}
