package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"escrowd/bank"
	"escrowd/config"
	"escrowd/core/events"
	"escrowd/escrow"
	"escrowd/gateway"
	"escrowd/journal"
	"escrowd/observability"
	"escrowd/observability/logging"
	"escrowd/venue"
)

func main() {
	configFile := flag.String("config", "./escrowd.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ESCROWD_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := logging.Setup("escrowd", env, logging.Options{
		File:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("escrowd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

// seedAllocations mints the configured balances and grants the vault any
// configured pull allowances. Without a grant the vault cannot pull funding
// deposits, so a deployment without one relies on the gateway's allowance
// endpoint instead.
func seedAllocations(tokens *bank.Ledger, custodian *bank.Custodian, allocations []config.Allocation) error {
	for _, alloc := range allocations {
		addr, err := config.ParseAddress(alloc.Address)
		if err != nil {
			return err
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10)
		if !ok {
			return errors.New("config: allocation amount must be a decimal integer")
		}
		if err := tokens.Mint(alloc.Token, addr, amount); err != nil {
			return err
		}
		if strings.TrimSpace(alloc.Allowance) == "" {
			continue
		}
		if bank.NormalizeToken(alloc.Token) != custodian.Token() {
			return errors.New("config: allocation allowance only applies to the settlement token")
		}
		allowance, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Allowance), 10)
		if !ok {
			return errors.New("config: allocation allowance must be a decimal integer")
		}
		if err := custodian.Authorize(addr, allowance); err != nil {
			return err
		}
	}
	return nil
}

func run(cfg *config.Config, logger *slog.Logger) error {
	owner, err := config.ParseAddress(cfg.Owner)
	if err != nil {
		return err
	}
	operator, err := config.ParseAddress(cfg.Operator)
	if err != nil {
		return err
	}
	feeReceiver, err := config.ParseAddress(cfg.FeeReceiver)
	if err != nil {
		return err
	}
	vault, err := config.ParseAddress(cfg.Vault)
	if err != nil {
		return err
	}

	tokens, err := bank.NewLedger(cfg.SettlementToken, cfg.SecondaryToken)
	if err != nil {
		return err
	}
	custodian := bank.NewCustodian(tokens, vault, cfg.SettlementToken)
	if err := seedAllocations(tokens, custodian, cfg.Allocations); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	store, err := journal.Open(cfg.JournalPath(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	emitter := events.Fanout{store, observability.Events()}

	ledger, err := escrow.NewLedger(owner, operator, feeReceiver)
	if err != nil {
		return err
	}
	engine, err := escrow.NewEngine(ledger, custodian, escrow.Params{
		FeeBps:         cfg.FeeBps,
		ReleaseTimeout: cfg.ReleaseTimeoutSecs,
	})
	if err != nil {
		return err
	}
	engine.SetEmitter(emitter)

	var converter *escrow.FeeConverter
	if strings.TrimSpace(cfg.VenueURL) != "" {
		venueAccount, err := config.ParseAddress(cfg.VenueAccount)
		if err != nil {
			return err
		}
		client := venue.NewClient(cfg.VenueURL, cfg.VenueCallTimeout())
		converter = escrow.NewFeeConverter(client, venueAccount, custodian)
	} else {
		logger.Warn("no conversion venue configured, fees route directly to the receiver")
		converter = escrow.NewFeeConverter(nil, [20]byte{}, custodian)
	}
	converter.SetEmitter(emitter)
	engine.SetConverter(converter)

	credentials := make(map[string]gateway.Credential, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		addr, err := config.ParseAddress(key.Address)
		if err != nil {
			return err
		}
		credentials[key.Key] = gateway.Credential{Secret: key.Secret, Address: addr}
	}
	auth := gateway.NewAuthenticator(credentials, 0, 0, nil)
	server := gateway.NewServer(engine, store, auth, custodian, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("settlement gateway listening", "addr", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
