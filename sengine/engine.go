// Package sengine assembles the codec, selection, distribution, attestation,
// and retrieval layers behind the four caller-facing operations:
// DistributeFile, RetrieveFile, CheckAvailability, and VerifyWitnessProofs,
// plus externally triggered healing.
//
// The engine is an explicit, constructed object: every policy value and
// collaborator is injected through Options, so tests can substitute fakes
// and no state hides in package globals.
package sengine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scatter-engine/scatter/serasure"
	"github.com/scatter-engine/scatter/serasure/sereedsolomon"
	"github.com/scatter-engine/scatter/serasure/sexor"
	"github.com/scatter-engine/scatter/sdist"
	"github.com/scatter-engine/scatter/snode"
	"github.com/scatter-engine/scatter/sretrieve"
	"github.com/scatter-engine/scatter/srpc"
	"github.com/scatter-engine/scatter/sshard"
	"github.com/scatter-engine/scatter/sstore"
	"github.com/scatter-engine/scatter/switness"
)

// Options configures a new Engine.
type Options struct {
	Log *slog.Logger

	// Client is the transport to the host fleet.
	Client srpc.HostClient

	// Membership supplies candidate nodes per operation.
	Membership snode.MembershipProvider

	// Store, when set, persists distribution records after distribution
	// and healing.
	Store *sstore.Store

	Distribution sdist.Config
	Witness      switness.Config
	Retrieval    sretrieve.Config
}

// Engine is the caller-facing service object for the subsystem.
type Engine struct {
	log        *slog.Logger
	membership snode.MembershipProvider
	store      *sstore.Store

	distributor *sdist.Distributor
	retriever   *sretrieve.Engine
	witness     *switness.Service
}

// New constructs an Engine. The codec pairing is fixed: Reed-Solomon primary
// with the XOR fallback, both at the configured k and m.
func New(opts Options) (*Engine, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("host client required")
	}
	if opts.Membership == nil {
		return nil, fmt.Errorf("membership provider required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	distCfg := opts.Distribution
	if distCfg.DataFragments <= 0 || distCfg.ParityFragments <= 0 {
		def := sdist.DefaultConfig()
		distCfg.DataFragments = def.DataFragments
		distCfg.ParityFragments = def.ParityFragments
	}

	primary, err := sereedsolomon.NewCodec(distCfg.DataFragments, distCfg.ParityFragments)
	if err != nil {
		return nil, fmt.Errorf("create reed-solomon codec: %w", err)
	}
	fallback, err := sexor.NewCodec(distCfg.DataFragments, distCfg.ParityFragments)
	if err != nil {
		return nil, fmt.Errorf("create xor fallback codec: %w", err)
	}
	adapter := serasure.NewAdapter(log, primary, fallback)

	retCfg := opts.Retrieval
	if retCfg.DataFragments <= 0 {
		retCfg.DataFragments = distCfg.DataFragments
	}

	witness := switness.NewService(log, opts.Client, opts.Witness)
	selector := snode.NewSelector()

	return &Engine{
		log:         log,
		membership:  opts.Membership,
		store:       opts.Store,
		distributor: sdist.New(log, adapter, selector, opts.Client, witness, distCfg),
		retriever:   sretrieve.New(log, adapter, opts.Client, opts.Client, retCfg),
		witness:     witness,
	}, nil
}

// DistributeFile distributes every shard of a file and persists the
// resulting records when a store is configured.
func (e *Engine) DistributeFile(ctx context.Context, shards []sshard.EncryptedShard) ([]*sshard.DistributedShard, error) {
	candidates, err := e.membership.Candidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list candidate nodes: %w", err)
	}

	distributed, err := e.distributor.DistributeFile(ctx, shards, candidates)
	if err != nil {
		return nil, err
	}

	if e.store != nil {
		for _, ds := range distributed {
			if err := e.store.Put(ds); err != nil {
				return nil, fmt.Errorf("persist distribution for shard %s: %w", ds.Shard.ID, err)
			}
		}
	}
	return distributed, nil
}

// RetrieveFile reconstructs every shard of a file, failing fast on the first
// unusable shard.
func (e *Engine) RetrieveFile(ctx context.Context, distributed []*sshard.DistributedShard) ([]sshard.EncryptedShard, error) {
	return e.retriever.RetrieveFile(ctx, distributed)
}

// RetrieveShard reconstructs one shard, reporting partial failures in the
// result rather than as an error.
func (e *Engine) RetrieveShard(ctx context.Context, ds *sshard.DistributedShard) sshard.RetrievalResult {
	return e.retriever.RetrieveShard(ctx, ds)
}

// CheckAvailability estimates whether the file is currently retrievable.
func (e *Engine) CheckAvailability(ctx context.Context, distributed []*sshard.DistributedShard) sretrieve.Availability {
	return e.retriever.CheckAvailability(ctx, distributed)
}

// VerifyWitnessProofs re-validates every witness proof on the distribution.
func (e *Engine) VerifyWitnessProofs(ctx context.Context, ds *sshard.DistributedShard) switness.VerifyResult {
	return e.witness.Verify(ctx, ds)
}

// HealShard re-distributes a shard's fragments to a fresh node set and
// persists the updated record when a store is configured.
func (e *Engine) HealShard(ctx context.Context, ds *sshard.DistributedShard) error {
	candidates, err := e.membership.Candidates(ctx)
	if err != nil {
		return fmt.Errorf("list candidate nodes: %w", err)
	}
	if err := e.distributor.HealShard(ctx, ds, candidates); err != nil {
		return err
	}
	if e.store != nil {
		if err := e.store.Put(ds); err != nil {
			return fmt.Errorf("persist healed distribution for shard %s: %w", ds.Shard.ID, err)
		}
	}
	return nil
}

// LoadDistribution reads a stored distribution record by shard ID.
func (e *Engine) LoadDistribution(shardID string) (*sshard.DistributedShard, error) {
	if e.store == nil {
		return nil, fmt.Errorf("no distribution store configured")
	}
	return e.store.Get(shardID)
}
