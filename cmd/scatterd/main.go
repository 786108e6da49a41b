// Command scatterd runs a scatter storage host or drives the distribution
// subsystem against a configured host fleet.
package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scatter-engine/scatter/sengine"
	"github.com/scatter-engine/scatter/snode"
	"github.com/scatter-engine/scatter/srpc/srpchttp"
	"github.com/scatter-engine/scatter/sshard"
	"github.com/scatter-engine/scatter/sstore"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scatterd",
		Short: "Erasure-coded shard distribution across untrusted hosts",
	}

	cmd.PersistentFlags().String("config", "", "path to YAML config file")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	cmd.AddCommand(
		hostCmd(),
		distributeCmd(),
		retrieveCmd(),
		checkCmd(),
		verifyCmd(),
		healCmd(),
		listCmd(),
	)
	return cmd
}

func setup(cmd *cobra.Command) (Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := LoadConfig(path)
	if err != nil {
		return cfg, nil, err
	}

	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, log, nil
}

// newEngine wires the full client-side stack: HTTP transport resolved through
// the configured membership, badger-backed record store, and the engine on top.
// The returned closer releases the store.
func newEngine(cfg Config, log *slog.Logger) (*sengine.Engine, func() error, error) {
	if len(cfg.Nodes) == 0 {
		return nil, nil, fmt.Errorf("config has no nodes; client commands need a host fleet")
	}

	store, err := sstore.Open(log.With("sys", "store"), cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open distribution store: %w", err)
	}

	client := srpchttp.NewClient(log.With("sys", "rpc"), cfg.ResolveNode)

	e, err := sengine.New(sengine.Options{
		Log:          log,
		Client:       client,
		Membership:   snode.StaticMembership(cfg.MembershipNodes()),
		Store:        store,
		Distribution: cfg.distributionConfig(),
		Witness:      cfg.witnessConfig(),
		Retrieval:    cfg.retrievalConfig(),
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return e, store.Close, nil
}

func hostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Run an HTTP storage and witness host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			host, err := srpchttp.NewHost(log.With("sys", "host"), cfg.NodeID)
			if err != nil {
				return fmt.Errorf("create host: %w", err)
			}

			ln, err := listen(cfg.Listen)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
			}

			log.Info("Host listening", "node_id", cfg.NodeID, "addr", cfg.Listen)
			srv := srpchttp.NewServer(ctx, log.With("sys", "http"), ln, host)
			srv.Wait()
			return nil
		},
	}
}

func distributeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distribute FILE",
		Short: "Encode a file's shards and scatter the fragments across the fleet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			e, closeStore, err := newEngine(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			shards, err := shardFile(args[0], cfg.ShardSize)
			if err != nil {
				return err
			}

			distributed, err := e.DistributeFile(cmd.Context(), shards)
			if err != nil {
				return err
			}

			for _, ds := range distributed {
				fmt.Printf("%s\tredundancy=%.2f\tnodes=%d\twitnesses=%d\tmode=%s\n",
					ds.Shard.ID, ds.RedundancyLevel, len(ds.Nodes), len(ds.Proofs), ds.Mode)
			}
			return nil
		},
	}
}

func retrieveCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "retrieve SHARD_ID...",
		Short: "Reconstruct stored shards and concatenate them to a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			e, closeStore, err := newEngine(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			distributed, err := loadAll(e, args)
			if err != nil {
				return err
			}

			shards, err := e.RetrieveFile(cmd.Context(), distributed)
			if err != nil {
				return err
			}

			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			for _, s := range shards {
				if _, err := w.Write(s.Data); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default stdout)")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check SHARD_ID...",
		Short: "Probe node liveness and report whether the shards are retrievable",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			e, closeStore, err := newEngine(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			distributed, err := loadAll(e, args)
			if err != nil {
				return err
			}

			avail := e.CheckAvailability(cmd.Context(), distributed)
			fmt.Printf("retrievable=%t availability=%.2f\n", avail.Retrievable, avail.Availability)
			for id, live := range avail.NodeStatus {
				fmt.Printf("  %s\tlive=%t\n", id, live)
			}
			if !avail.Retrievable {
				return fmt.Errorf("availability %.2f below threshold %.2f",
					avail.Availability, cfg.AvailabilityThreshold)
			}
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify SHARD_ID",
		Short: "Re-validate the witness proofs on a distribution record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			e, closeStore, err := newEngine(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			ds, err := e.LoadDistribution(args[0])
			if err != nil {
				return err
			}

			res := e.VerifyWitnessProofs(cmd.Context(), ds)
			if res.AllValid {
				fmt.Printf("all %d proofs valid\n", len(ds.Proofs))
				return nil
			}
			return fmt.Errorf("invalid proofs from witnesses: %s", strings.Join(res.FailedIDs, ", "))
		},
	}
}

func healCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heal SHARD_ID",
		Short: "Re-scatter a shard's fragments to a fresh node set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			e, closeStore, err := newEngine(cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			ds, err := e.LoadDistribution(args[0])
			if err != nil {
				return err
			}
			if err := e.HealShard(cmd.Context(), ds); err != nil {
				return err
			}
			fmt.Printf("%s\tredundancy=%.2f\tnodes=%d\n", ds.Shard.ID, ds.RedundancyLevel, len(ds.Nodes))
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List shard IDs with stored distribution records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			store, err := sstore.Open(log.With("sys", "store"), cfg.DataDir)
			if err != nil {
				return fmt.Errorf("open distribution store: %w", err)
			}
			defer store.Close()

			ids, err := store.ShardIDs()
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}

// listen opens the configured listener, treating a unix:// address as a
// local socket path.
func listen(addr string) (net.Listener, error) {
	if path, ok := strings.CutPrefix(addr, "unix://"); ok {
		return net.Listen("unix", path)
	}
	return net.Listen("tcp", addr)
}

// shardFile cuts a file into fixed-size chunks and wraps each as a shard.
// Encryption happens upstream of this subsystem, so the CLI distributes the
// file bytes as given. Shard IDs are derived from the file's base name and a
// random distribution prefix so repeated runs do not collide in the store.
func shardFile(path string, shardSize int) ([]sshard.EncryptedShard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	if shardSize <= 0 {
		shardSize = DefaultConfig().ShardSize
	}

	var prefix [4]byte
	if _, err := rand.Read(prefix[:]); err != nil {
		return nil, fmt.Errorf("generate shard prefix: %w", err)
	}
	base := fmt.Sprintf("%x-%s", prefix, filepath.Base(path))

	var shards []sshard.EncryptedShard
	for i := 0; len(data) > 0; i++ {
		n := min(shardSize, len(data))
		shards = append(shards, sshard.NewEncryptedShard(fmt.Sprintf("%s/%d", base, i), data[:n]))
		data = data[n:]
	}
	return shards, nil
}

func loadAll(e *sengine.Engine, ids []string) ([]*sshard.DistributedShard, error) {
	distributed := make([]*sshard.DistributedShard, len(ids))
	for i, id := range ids {
		ds, err := e.LoadDistribution(id)
		if err != nil {
			return nil, fmt.Errorf("load distribution %s: %w", id, err)
		}
		distributed[i] = ds
	}
	return distributed, nil
}
