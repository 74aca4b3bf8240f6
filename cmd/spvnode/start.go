package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/btcspv/spvnode/pkg/headerstore"
	"github.com/btcspv/spvnode/pkg/metrics"
	"github.com/btcspv/spvnode/pkg/peermanager"
	"github.com/btcspv/spvnode/pkg/spv"
	"github.com/btcspv/spvnode/pkg/statusapi"
	"github.com/btcspv/spvnode/pkg/walletsink"
)

var (
	peerAddrs  []string
	statusAddr string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the SPV node",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().StringSliceVar(&peerAddrs, "peer", nil, "peer address to connect to (host:port), may be repeated")
	startCmd.Flags().StringVar(&statusAddr, "status-addr", "127.0.0.1:8080", "address for the read-only status API")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	backend := btclog.NewBackend(os.Stdout)
	log := backend.Logger("SPVN")
	if verboseLogs {
		log.SetLevel(btclog.LevelDebug)
	} else {
		log.SetLevel(btclog.LevelInfo)
	}

	dir, err := resolveDataDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("spvnode: create data dir: %w", err)
	}

	params := chainParams()
	genesis := &params.GenesisBlock.Header

	store, err := headerstore.Open(filepath.Join(dir, "headers.db"), genesis)
	if err != nil {
		return fmt.Errorf("spvnode: open header store: %w", err)
	}
	defer store.Close()

	wallet := walletsink.New()

	collectors := metrics.NewCollectors()
	registry := prometheus.NewRegistry()
	if err := collectors.Register(registry); err != nil {
		return fmt.Errorf("spvnode: register metrics: %w", err)
	}

	session := spv.NewSession(spv.Config{
		Store:           store,
		Wallet:          wallet,
		Log:             log,
		BestBlockHash:   store.GetBestBlockHeader().Hash,
		ProtocolVersion: uint32(wire.BIP0037Version),
	})

	dispatcher := spv.NewDispatcher(session, 1024)

	peers := peermanager.New(peermanager.Config{
		Dispatcher:  dispatcher,
		ChainParams: params,
		NewestBlock: func() (*chainhash.Hash, int32, error) {
			tip := store.GetBestBlockHeader()
			return &tip.Hash, tip.Height, nil
		},
		HeightOf:        store.GetBlockHeaderHeight,
		UserAgentName:   "spvnode",
		UserAgentVerStr: version,
		Log:             log,
	})
	session.SetPeerManager(peers)
	session.InitHeaderSync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	go dispatcher.Run(ctx)

	ticker := time.NewTicker(spv.StallTimeout)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dispatcher.Post(spv.HeartbeatRequest{})
			}
		}
	}()

	for _, addr := range peerAddrs {
		if err := peers.Connect(addr); err != nil {
			log.Warnf("spvnode: failed to connect to %s: %v", addr, err)
		}
	}

	server := statusapi.NewServer(statusapi.Config{
		Addr:       statusAddr,
		Dispatcher: dispatcher,
		Peers:      peers,
		Registry:   registry,
		Log:        log,
	})
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("spvnode: status API stopped: %v", err)
		}
	}()

	log.Infof("spvnode: running on %s, status API on %s", params.Name, statusAddr)
	<-ctx.Done()
	return server.Shutdown()
}
