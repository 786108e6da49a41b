package sretrieve

import (
	"context"
	"sync"

	"github.com/scatter-engine/scatter/srpc"
	"github.com/scatter-engine/scatter/sshard"
)

// Availability is the result of a pre-retrieval liveness estimate.
// It is an estimate, not a guarantee: the live-node set can change between
// this check and an actual retrieval.
type Availability struct {
	// Retrievable is true when Availability meets the configured threshold.
	Retrievable bool

	// Availability is the fraction of shards with at least one live node.
	Availability float64

	// NodeStatus records the liveness verdict per probed node. Nodes that
	// were never probed (because an earlier node already answered live)
	// are absent.
	NodeStatus map[string]bool
}

// CheckAvailability estimates whether a file's shards are currently
// retrievable without fetching any fragment bytes. A shard counts as
// available as soon as one of its recorded nodes answers a liveness probe;
// the remaining nodes are not probed.
func (e *Engine) CheckAvailability(ctx context.Context, distributed []*sshard.DistributedShard) Availability {
	out := Availability{NodeStatus: make(map[string]bool)}
	if len(distributed) == 0 {
		return out
	}

	var (
		mu        sync.Mutex
		available int
		wg        sync.WaitGroup
	)
	for _, ds := range distributed {
		wg.Add(1)
		go func(ds *sshard.DistributedShard) {
			defer wg.Done()

			shardLive := false
			for _, nodeID := range ds.Nodes {
				rpcCtx, cancel := context.WithTimeout(ctx, e.cfg.RPCTimeout)
				resp, err := e.probe.CheckLiveness(rpcCtx, srpc.LivenessRequest{NodeID: nodeID})
				cancel()

				live := err == nil && resp.Alive

				mu.Lock()
				out.NodeStatus[nodeID] = live
				mu.Unlock()

				if live {
					shardLive = true
					break
				}
			}

			if shardLive {
				mu.Lock()
				available++
				mu.Unlock()
			}
		}(ds)
	}
	wg.Wait()

	out.Availability = float64(available) / float64(len(distributed))
	out.Retrievable = out.Availability >= e.cfg.AvailabilityThreshold
	return out
}
