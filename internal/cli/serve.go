package cli

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snaillabs/snailmarket/internal/api"
	"github.com/snaillabs/snailmarket/internal/chain/eth"
	"github.com/snaillabs/snailmarket/internal/contract"
	"github.com/snaillabs/snailmarket/internal/keystore"
	"github.com/snaillabs/snailmarket/internal/market"
	"github.com/snaillabs/snailmarket/internal/orchestrator"
	"github.com/snaillabs/snailmarket/internal/version"
)

// readHeaderTimeout bounds slow-header clients on the listener.
const readHeaderTimeout = 10 * time.Second

//nolint:gochecknoglobals // Cobra CLI pattern
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the marketplace API server",
	RunE:  runServe,
}

//nolint:gocognit // Startup wiring is a linear sequence
func runServe(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var chainID *big.Int
	if cfg.Chain.ChainID > 0 {
		chainID = big.NewInt(cfg.Chain.ChainID)
	}

	ethClient, err := eth.NewClient(cfg.Chain.RPCURL, &eth.ClientOptions{
		ChainID:             chainID,
		ConfirmPollInterval: cfg.ConfirmPollInterval(),
	})
	if err != nil {
		return err
	}
	defer ethClient.Close()

	artifact, err := contract.LoadArtifact(cfg.Contract.ArtifactPath, cfg.Contract.NetworkID)
	if err != nil {
		return err
	}
	gateway := contract.NewGateway(artifact, ethClient)

	ks, err := keystore.New(cfg.Credentials.Owner.Source(), cfg.Credentials.Buyer.Source())
	if err != nil {
		return err
	}

	// Already validated above; parse cannot fail here
	strategy, _ := eth.ParseGasStrategy(cfg.Gas.Strategy)

	var pinned *big.Int
	if cfg.Gas.PriceWei > 0 {
		pinned = big.NewInt(cfg.Gas.PriceWei)
	}

	orch := orchestrator.New(ethClient, &orchestrator.Options{
		GasStrategy:    strategy,
		PinnedGasPrice: pinned,
		ConfirmTimeout: cfg.ConfirmTimeout(),
	})

	svc := market.NewService(gateway, orch, ks, ethClient, logger)
	server := api.NewServer(svc, ethClient, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("snailmarketd %s listening on %s (contract %s, node %s)",
			version.String(), cfg.Server.ListenAddr, gateway.Address(), cfg.Chain.RPCURL)
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}

//nolint:gochecknoinits // Cobra command registration
func init() {
	rootCmd.AddCommand(serveCmd)
}
