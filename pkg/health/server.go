package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zetaflow/intentd/pkg/circuitbreaker"
	"github.com/zetaflow/intentd/pkg/journal"
	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/wallet"
)

// SessionSource reports the execution state of every known account
type SessionSource interface {
	SessionStates() map[string]string
}

// JournalSource is the read side of the execution journal
type JournalSource interface {
	Counts(ctx context.Context) (map[string]int, error)
	Unconfirmed(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Server represents a health check HTTP server
type Server struct {
	port            string
	wallet          wallet.Wallet
	sessions        SessionSource
	journal         JournalSource
	circuitBreakers map[int]*circuitbreaker.CircuitBreaker
	metricsAPIKey   string
	logger          logger.Logger
	httpServer      *http.Server
}

// NewServer creates a new health check server; sessions and journal may be nil
func NewServer(
	port string,
	w wallet.Wallet,
	sessions SessionSource,
	journal JournalSource,
	circuitBreakers map[int]*circuitbreaker.CircuitBreaker,
	metricsAPIKey string,
	log logger.Logger,
) *Server {
	return &Server{
		port:            port,
		wallet:          w,
		sessions:        sessions,
		journal:         journal,
		circuitBreakers: circuitBreakers,
		metricsAPIKey:   metricsAPIKey,
		logger:          log,
	}
}

// apiKeyMiddleware is a middleware that checks for a valid API key.
// It guards /metrics and /circuit/reset.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the routes served by Start
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/circuit/reset", s.apiKeyMiddleware(http.HandlerFunc(s.handleCircuitReset)))
	mux.Handle("/metrics", s.apiKeyMiddleware(promhttp.Handler()))
	return mux
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Health server shutdown error: %v", err)
		}
	}()

	s.logger.Info("Starting health and metrics server on port %s", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server error: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports ready once the wallet exposes an account and an active chain
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.wallet == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Wallet not connected"))
		return
	}
	if _, err := s.wallet.Address(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(fmt.Sprintf("Wallet account unavailable: %v", err)))
		return
	}
	if chainID, err := s.wallet.ActiveChain(r.Context()); err != nil || chainID == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Wallet has no active chain"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]interface{})

	walletStatus := map[string]interface{}{"connected": false}
	if s.wallet != nil {
		if addr, err := s.wallet.Address(r.Context()); err == nil {
			walletStatus["connected"] = true
			walletStatus["address"] = addr.Hex()
		}
		if chainID, err := s.wallet.ActiveChain(r.Context()); err == nil {
			walletStatus["active_chain"] = chainID
		}
	}
	status["wallet"] = walletStatus

	circuits := make(map[string]circuitbreaker.State, len(s.circuitBreakers))
	for chainID, cb := range s.circuitBreakers {
		circuits[fmt.Sprintf("chain_%d", chainID)] = cb.Snapshot()
	}
	status["circuits"] = circuits

	if s.sessions != nil {
		status["sessions"] = s.sessions.SessionStates()
	}

	if s.journal != nil {
		journalStatus := make(map[string]interface{})
		if counts, err := s.journal.Counts(r.Context()); err == nil {
			journalStatus["counts"] = counts
		} else {
			journalStatus["error"] = err.Error()
		}
		if pending, err := s.journal.Unconfirmed(r.Context(), 20); err == nil {
			journalStatus["unconfirmed"] = pending
		}
		status["journal"] = journalStatus
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Error encoding status JSON: %v", err)
	}
}

// handleCircuitReset is the admin control to close a tripped breaker
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	chainIDStr := r.URL.Query().Get("chain")
	if chainIDStr == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Missing chain parameter"))
		return
	}

	chainID, err := strconv.Atoi(chainIDStr)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Invalid chain ID"))
		return
	}

	cb, ok := s.circuitBreakers[chainID]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(fmt.Sprintf("No circuit breaker for chain %d", chainID)))
		return
	}

	cb.Reset()
	s.logger.NoticeWithChain(chainID, "Circuit breaker reset through admin endpoint")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker for chain %d reset", chainID)))
}
