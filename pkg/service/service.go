// Package service wires configuration, wallet, orchestrator and notification bridge into
// the long-running intent service and the one-shot CLI operations.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/zetaflow/intentd/pkg/amount"
	"github.com/zetaflow/intentd/pkg/chainguard"
	"github.com/zetaflow/intentd/pkg/circuitbreaker"
	"github.com/zetaflow/intentd/pkg/config"
	"github.com/zetaflow/intentd/pkg/execerr"
	"github.com/zetaflow/intentd/pkg/gateway"
	"github.com/zetaflow/intentd/pkg/health"
	"github.com/zetaflow/intentd/pkg/journal"
	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/notify"
	"github.com/zetaflow/intentd/pkg/orchestrator"
	"github.com/zetaflow/intentd/pkg/precondition"
	"github.com/zetaflow/intentd/pkg/recordclient"
	"github.com/zetaflow/intentd/pkg/staking"
	"github.com/zetaflow/intentd/pkg/txengine"
	"github.com/zetaflow/intentd/pkg/wallet"
)

// finishTimeout bounds the journal write and terminal event of an intent, which
// still run when the service context is already cancelled
const finishTimeout = 5 * time.Second

// Service runs intents for a single wallet account
type Service struct {
	config          *config.Config
	wallet          wallet.Wallet
	engine          *txengine.Engine
	guard           *chainguard.Guard
	gasRefresher    *wallet.GasPriceRefresher
	orchestrator    *orchestrator.Orchestrator
	gateway         *gateway.Client
	transport       notify.Transport
	bridge          *notify.Bridge
	journal         *journal.Store
	records         *recordclient.Client
	circuitBreakers map[int]*circuitbreaker.CircuitBreaker
	logger          logger.Logger

	mu       sync.Mutex
	sessions map[string]*orchestrator.Session
	wg       sync.WaitGroup
}

// NewService connects the keyed wallet to the origin chain and opens the transport and journal
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	rpcURLs := make(map[int]string)
	for _, chain := range cfg.Chains.All() {
		rpcURLs[chain.ChainID] = chain.RPCURL
	}
	keyed, err := wallet.NewKeyedWallet(cfg.PrivateKey, rpcURLs, stdLogger)
	if err != nil {
		return nil, err
	}
	origin, ok := cfg.Chains.Lookup(config.OriginChain)
	if !ok {
		return nil, fmt.Errorf("origin chain %s is not configured", config.OriginChain)
	}
	if err := keyed.SwitchChain(ctx, origin.ChainID); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %v", origin.Name, err)
	}

	transport, err := NewTransport(ctx, cfg.Notify)
	if err != nil {
		return nil, err
	}

	store, err := journal.Open(cfg.JournalPath)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	return New(cfg, keyed, transport, store, stdLogger)
}

// NewTransport builds the notification transport selected by cfg.Transport
func NewTransport(ctx context.Context, cfg config.NotifyConfig) (notify.Transport, error) {
	switch cfg.Transport {
	case "", "memory":
		return notify.NewMemoryTransport(0), nil
	case "redis":
		transport, err := notify.NewRedisTransport(ctx, notify.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return transport, nil
	case "amqp":
		transport, err := notify.NewAMQPTransport(cfg.AMQPURL)
		if err != nil {
			return nil, err
		}
		return transport, nil
	}
	return nil, fmt.Errorf("unknown notification transport %q", cfg.Transport)
}

// New assembles a service around an existing wallet. store may be nil to disable the journal.
func New(cfg *config.Config, w wallet.Wallet, transport notify.Transport, store *journal.Store, log logger.Logger) (*Service, error) {
	approval := precondition.ApprovalExact
	if cfg.Policy.ApprovalPolicy != "" {
		parsed, err := precondition.ParseApprovalPolicy(cfg.Policy.ApprovalPolicy)
		if err != nil {
			return nil, err
		}
		approval = parsed
	}

	circuitBreakers := make(map[int]*circuitbreaker.CircuitBreaker)
	for _, chain := range cfg.Chains.All() {
		circuitBreakers[chain.ChainID] = circuitbreaker.NewCircuitBreaker(
			cfg.CircuitBreaker.Enabled,
			cfg.CircuitBreaker.Threshold,
			cfg.CircuitBreaker.WindowDuration,
			cfg.CircuitBreaker.ResetTimeout,
		)
	}

	policy := txengine.DefaultPolicy
	if cfg.Policy.ConfirmMaxAttempts > 0 {
		policy.MaxAttempts = cfg.Policy.ConfirmMaxAttempts
	}
	if cfg.Policy.ConfirmInitialDelay > 0 {
		policy.InitialDelay = cfg.Policy.ConfirmInitialDelay
	}
	engine := txengine.New(w, policy, log).WithBreakers(circuitBreakers)
	guard := chainguard.New(w, cfg.Policy.ChainSwitchSettle, log)
	gasPrices := wallet.NewGasPriceCache(cfg.Policy.GasPriceCacheTTL, cfg.Policy.FallbackGasPrice, log)

	s := &Service{
		config:          cfg,
		wallet:          w,
		engine:          engine,
		guard:           guard,
		gasRefresher:    wallet.NewGasPriceRefresher(gasPrices, w, cfg.Policy.GasPriceCacheTTL, log),
		orchestrator:    orchestrator.New(w, guard, engine, gasPrices, cfg.Chains, cfg.Contracts, cfg.Policy, approval, log),
		gateway:         gateway.New(w, engine, cfg.Contracts.Gateways, cfg.Contracts.Manager, log),
		transport:       transport,
		bridge:          notify.NewBridge(transport, cfg.Notify.IntentQueue, cfg.Notify.ConfirmQueue, log),
		journal:         store,
		records:         recordclient.New(cfg.RecordAPI, log),
		circuitBreakers: circuitBreakers,
		logger:          log,
		sessions:        make(map[string]*orchestrator.Session),
	}
	return s, nil
}

// WithSleep replaces the backoff and settle timers, used in tests
func (s *Service) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Service {
	s.engine.WithSleep(sleep)
	s.guard.WithSleep(sleep)
	return s
}

// Bridge returns the notification bridge
func (s *Service) Bridge() *notify.Bridge {
	return s.bridge
}

// Journal returns the execution journal, nil when disabled
func (s *Service) Journal() *journal.Store {
	return s.journal
}

// Start serves the health endpoints and consumes bridge intents until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	account, err := s.wallet.Address(ctx)
	if err != nil {
		return execerr.Wrap(execerr.KindWalletUnavailable, err, "wallet has no account")
	}
	s.bridge.WithAccount(account.Hex())

	var journalSource health.JournalSource
	if s.journal != nil {
		journalSource = s.journal
	}
	healthServer := health.NewServer(s.config.MetricsPort, s.wallet, s, journalSource, s.circuitBreakers, s.config.MetricsAPIKey, s.logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil {
			s.logger.Error("%v", err)
		}
	}()

	bridgeErr := make(chan error, 1)
	go func() {
		bridgeErr <- s.bridge.Run(ctx)
	}()
	go s.cancelLoop(ctx)
	s.gasRefresher.Start(ctx)
	defer s.gasRefresher.Stop()

	s.logger.Notice("Intent service started for %s", account.Hex())
	for {
		select {
		case <-ctx.Done():
			s.logger.Notice("Context cancelled, shutting down service")
			s.wg.Wait()
			return nil
		case err := <-bridgeErr:
			if ctx.Err() != nil {
				continue
			}
			s.wg.Wait()
			if err == nil {
				err = notify.ErrClosed
			}
			return fmt.Errorf("notification bridge stopped: %w", err)
		case intent := <-s.bridge.Intents():
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handleIntent(ctx, intent)
			}()
		}
	}
}

// Close releases the transport and the journal
func (s *Service) Close() error {
	var errs []error
	if s.transport != nil {
		errs = append(errs, s.transport.Close())
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	return errors.Join(errs...)
}

// handleIntent runs one bridge intent and publishes its pending and terminal events.
// A second intent arriving while the wallet is busy is rejected by the session gate.
func (s *Service) handleIntent(ctx context.Context, intent orchestrator.Intent) {
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	tracker := s.bridge.Track(ctx, intent)
	outcome, err := s.Execute(ctx, intent)

	finishCtx, cancel := detached(ctx)
	defer cancel()
	if _, pubErr := tracker.Finish(finishCtx, outcome, err); pubErr != nil {
		s.logger.Error("Failed to publish result of intent %s: %v", intent.ID, pubErr)
	}
}

func (s *Service) cancelLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cancel := <-s.bridge.Cancels():
			s.Cancel(ctx, cancel.TransactionID)
		}
	}
}

// Cancel asks the running intent to stop. An empty intentID cancels whatever is running.
func (s *Service) Cancel(ctx context.Context, intentID string) bool {
	session, err := s.session(ctx)
	if err != nil {
		s.logger.Error("Cannot cancel: %v", err)
		return false
	}
	if session.State() != orchestrator.StateWaitingWallet {
		s.logger.Debug("Nothing to cancel for %s", session.Account())
		return false
	}
	if intentID != "" && session.IntentID() != intentID {
		s.logger.Debug("Ignoring cancel for %s, running intent is %s", intentID, session.IntentID())
		return false
	}
	afterSubmit := session.Cancel()
	s.logger.Notice("Cancel requested for intent %s (after submit: %t)", session.IntentID(), afterSubmit)
	return true
}

// Execute runs intent for the wallet account, journals the outcome and persists stake records
func (s *Service) Execute(ctx context.Context, intent orchestrator.Intent) (orchestrator.Outcome, error) {
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	session, err := s.session(ctx)
	if err != nil {
		return orchestrator.Outcome{IntentID: intent.ID, Action: intent.Action, State: orchestrator.StateError}, err
	}

	outcome, err := s.orchestrator.Execute(ctx, session, intent)

	finishCtx, cancel := detached(ctx)
	defer cancel()
	s.journalOutcome(finishCtx, intent, outcome, err)

	if err == nil && outcome.State == orchestrator.StateSuccess && outcome.Action == orchestrator.ActionStake {
		s.recordStake(finishCtx, intent)
	}
	return outcome, err
}

// detached keeps the values of ctx but not its cancellation
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
}

// Balances returns the wallet balances on the active chain
func (s *Service) Balances(ctx context.Context) (orchestrator.Balances, error) {
	return s.orchestrator.Balances(ctx)
}

// TalkToEarn sends message through the gateway of the active chain
func (s *Service) TalkToEarn(ctx context.Context, message string) (txengine.TxResult, error) {
	return s.gateway.TalkToEarn(ctx, message)
}

// StakeOf returns the WZETA stake of the wallet on fileID
func (s *Service) StakeOf(ctx context.Context, fileID string) (*big.Int, error) {
	origin, ok := s.config.Chains.Lookup(config.OriginChain)
	if !ok {
		return nil, fmt.Errorf("origin chain %s is not configured", config.OriginChain)
	}
	account, err := s.wallet.Address(ctx)
	if err != nil {
		return nil, execerr.Wrap(execerr.KindWalletUnavailable, err, "wallet has no account")
	}
	resolver := precondition.New(s.wallet, s.engine, precondition.ApprovalExact, s.logger)
	workflow := staking.New(s.wallet, s.guard, resolver, s.engine, origin, s.config.Contracts.Manager, s.logger)
	return workflow.StakeOf(ctx, staking.ContentID(fileID), s.config.Contracts.WZETA, account)
}

// SwitchTo moves the wallet to the chain registered under identifier
func (s *Service) SwitchTo(ctx context.Context, identifier string) (config.ChainConfig, error) {
	chain, ok := s.config.Chains.Lookup(identifier)
	if !ok {
		return config.ChainConfig{}, execerr.New(execerr.KindUnsupportedAction, "unknown chain %q", identifier)
	}
	return chain, s.guard.EnsureChain(ctx, chain)
}

// StakeRecords lists the stake records the record API keeps for the wallet
func (s *Service) StakeRecords(ctx context.Context) ([]recordclient.StakeRecord, error) {
	account, err := s.wallet.Address(ctx)
	if err != nil {
		return nil, execerr.Wrap(execerr.KindWalletUnavailable, err, "wallet has no account")
	}
	return s.records.FetchStakes(ctx, account.Hex())
}

// SessionStates reports the execution state of every session
func (s *Service) SessionStates() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make(map[string]string, len(s.sessions))
	for account, session := range s.sessions {
		states[account] = string(session.State())
	}
	return states
}

// session returns the session of the wallet account, creating it on first use
func (s *Service) session(ctx context.Context) (*orchestrator.Session, error) {
	addr, err := s.wallet.Address(ctx)
	if err != nil {
		return nil, execerr.Wrap(execerr.KindWalletUnavailable, err, "wallet has no account")
	}
	account := strings.ToLower(addr.Hex())

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[account]
	if !ok {
		session = orchestrator.NewSession(account)
		s.sessions[account] = session
	}
	return session, nil
}

func (s *Service) journalOutcome(ctx context.Context, intent orchestrator.Intent, outcome orchestrator.Outcome, err error) {
	if s.journal == nil {
		return
	}
	entry := journal.Entry{
		IntentID:    outcome.IntentID,
		Action:      string(outcome.Action),
		UserID:      intent.UserID,
		Amount:      intent.Amount,
		State:       string(outcome.State),
		TxHash:      outcome.TxHash,
		Confirmed:   outcome.Confirmed,
		ExplorerURL: outcome.ExplorerURL,
	}
	if entry.IntentID == "" {
		entry.IntentID = intent.ID
	}
	if err != nil {
		entry.ErrorKind = string(execerr.KindOf(err))
		entry.Reason = err.Error()
	}
	if jerr := s.journal.Record(ctx, entry); jerr != nil {
		s.logger.Error("Failed to journal intent %s: %v", entry.IntentID, jerr)
	}
}

// recordStake posts the stake to the record API; failures are logged only
func (s *Service) recordStake(ctx context.Context, intent orchestrator.Intent) {
	if !s.records.Enabled() {
		return
	}
	account, err := s.wallet.Address(ctx)
	if err != nil {
		s.logger.Error("Skipping stake record for %s: %v", intent.ID, err)
		return
	}
	normalized, err := amount.Normalize(intent.Amount)
	if err != nil {
		s.logger.Error("Skipping stake record for %s: %v", intent.ID, err)
		return
	}
	record := recordclient.StakeRecord{
		FileID:        intent.FileID,
		WalletAddress: account.Hex(),
		Amount:        json.Number(normalized),
		ContentID:     ContentIDHex(intent.FileID),
	}
	if err := s.records.RecordStake(ctx, record); err != nil {
		s.logger.Error("Failed to record stake for intent %s: %v", intent.ID, err)
	}
}

// ContentIDHex renders the 0x-prefixed content identifier of fileID
func ContentIDHex(fileID string) string {
	id := staking.ContentID(fileID)
	return hexutil.Encode(id[:])
}
