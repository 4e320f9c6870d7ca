package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/keys"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
)

// SessionStore persists stored sessions keyed by wallet.
type SessionStore interface {
	Save(ctx context.Context, wallet chain.PublicKey, key *keys.SessionKey) error
	Load(ctx context.Context, wallet chain.PublicKey) (*keys.SessionKey, bool, error)
	Clear(ctx context.Context, wallet chain.PublicKey) error
}

// DriverConfig tunes the driver's session parameters.
type DriverConfig struct {
	// SessionTTL is how long newly established sessions live.
	SessionTTL time.Duration
	// TokenWhitelist, when non-empty, makes the driver prompt for limits
	// (RequestingLimits) before establishing; empty means unlimited sessions.
	TokenWhitelist []chain.PublicKey
}

// Driver binds the pure state machine to side effects: store lookups,
// lifecycle calls, wallet events. All transitions are serialized; async
// results that resolve after the machine has moved on are discarded by the
// epoch check, matching the superseding semantics of a wallet disconnect
// during an in-flight attempt.
type Driver struct {
	cfg     DriverConfig
	manager *Manager
	store   SessionStore

	mu      sync.Mutex
	machine Machine
	epoch   uint64

	// limits chosen by the user for the next establishment
	pendingLimits    TokenLimits
	pendingUnlimited bool

	signMessage SignMessageFunc
}

// NewDriver creates a Driver in the Initializing state.
func NewDriver(cfg DriverConfig, manager *Manager, store SessionStore) *Driver {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Driver{
		cfg:     cfg,
		manager: manager,
		store:   store,
		machine: Initial(),
	}
}

// Snapshot returns the current machine value.
func (d *Driver) Snapshot() Machine {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine
}

// apply runs one transition under the lock and returns the new machine and
// the epoch it produced.
func (d *Driver) apply(event Event) (Machine, uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	next, err := Transition(d.machine, event)
	if err != nil {
		logger.Error("session state transition rejected",
			zap.String("state", d.machine.State.String()),
			zap.Error(err))
		return d.machine, d.epoch, err
	}
	if next.State != d.machine.State {
		logger.Debug("session state transition",
			zap.String("from", d.machine.State.String()),
			zap.String("to", next.State.String()))
		d.epoch++
	}
	d.machine = next
	return next, d.epoch, nil
}

// stillAt reports whether the machine remains in the epoch a completed async
// operation was started from. Stale completions are discarded.
func (d *Driver) stillAt(epoch uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.epoch == epoch
}

// Initialize resolves the Initializing state.
func (d *Driver) Initialize(walletConnecting bool) error {
	_, _, err := d.apply(EventInitialized{WalletConnecting: walletConnecting})
	return err
}

// OnWalletConnecting reports a wallet connection attempt.
func (d *Driver) OnWalletConnecting() {
	_, _, _ = d.apply(EventWalletConnecting{})
}

// OnWalletDisconnected reports a wallet disconnect. In-flight attempts are
// superseded; their results will be discarded when they resolve.
func (d *Driver) OnWalletDisconnected() {
	_, _, _ = d.apply(EventWalletDisconnected{})
}

// OnWalletConnected reports a connected wallet and kicks off the
// stored-session check for it.
func (d *Driver) OnWalletConnected(ctx context.Context, wallet chain.PublicKey, signMessage SignMessageFunc) error {
	d.mu.Lock()
	d.signMessage = signMessage
	d.mu.Unlock()

	machine, epoch, err := d.apply(EventWalletConnected{PublicKey: wallet, CanSignMessages: signMessage != nil})
	if err != nil {
		return err
	}
	if machine.State != StateCheckingStoredSession {
		return nil
	}
	go d.checkStoredSession(ctx, wallet, epoch)
	return nil
}

func (d *Driver) checkStoredSession(ctx context.Context, wallet chain.PublicKey, epoch uint64) {
	storedKey, found, err := d.store.Load(ctx, wallet)
	if err != nil {
		logger.Warn("failed to load stored session", zap.Error(err))
		found = false
	}

	var restored *Session
	if found {
		restored, err = d.manager.Reestablish(ctx, wallet, storedKey)
		if err != nil {
			logger.Warn("failed to reestablish stored session", zap.Error(err))
			restored = nil
		}
	}

	if !d.stillAt(epoch) {
		return
	}
	if restored != nil {
		d.mu.Lock()
		d.pendingUnlimited = restored.Info.AuthorizedTokens.Kind == AuthorizedAll
		d.pendingLimits = nil
		d.mu.Unlock()
		_, _, _ = d.apply(EventStoredSessionValid{Session: restored})
		return
	}

	machine, nextEpoch, err := d.apply(EventStoredSessionMissing{LimitsRequired: len(d.cfg.TokenWhitelist) > 0})
	if err != nil || machine.State != StateSettingLimits {
		return
	}
	d.mu.Lock()
	d.pendingUnlimited = true
	d.pendingLimits = nil
	d.mu.Unlock()
	go d.establish(ctx, wallet, nextEpoch)
}

// ProvideLimits supplies the user's chosen limits. From RequestingLimits it
// starts establishment; from a renewal-requesting state it starts the renewal
// with the new limits.
func (d *Driver) ProvideLimits(ctx context.Context, limits TokenLimits) error {
	filtered := limits.FilterZero()
	d.mu.Lock()
	d.pendingLimits = filtered
	d.pendingUnlimited = false
	wallet := d.machine.Wallet
	d.mu.Unlock()

	machine, epoch, err := d.apply(EventLimitsProvided{})
	if err != nil {
		return err
	}
	switch machine.State {
	case StateSettingLimits:
		go d.establish(ctx, wallet, epoch)
	case StateRequestingExtendedExpiry, StateRequestingIncreasedLimits:
		go d.renew(ctx, machine.Session, filtered, false, epoch)
	}
	return nil
}

func (d *Driver) establish(ctx context.Context, wallet chain.PublicKey, epoch uint64) {
	d.mu.Lock()
	limits := d.pendingLimits
	unlimited := d.pendingUnlimited
	signMessage := d.signMessage
	d.mu.Unlock()

	result, err := d.manager.Establish(ctx, EstablishParams{
		Wallet:      wallet,
		SignMessage: signMessage,
		Expires:     time.Now().Add(d.cfg.SessionTTL),
		Unlimited:   unlimited,
		Limits:      limits,
	})
	d.finishAttempt(ctx, wallet, result, err, epoch)
}

// RequestUpdate starts a voluntary renewal from Established. The new scope
// replaces the retained one so later automatic renewals restate it.
func (d *Driver) RequestUpdate(ctx context.Context, limits TokenLimits, unlimited bool) error {
	d.mu.Lock()
	d.pendingLimits = limits.FilterZero()
	d.pendingUnlimited = unlimited
	d.mu.Unlock()

	machine, epoch, err := d.apply(EventUpdateRequested{})
	if err != nil {
		return err
	}
	if machine.State != StateUpdatingSession {
		return nil
	}
	go d.renew(ctx, machine.Session, limits, unlimited, epoch)
	return nil
}

// OnTransactionResult feeds an on-chain failure back into the machine and,
// when it demands renewal, starts it with the session's previous scope.
func (d *Driver) OnTransactionResult(ctx context.Context, result *TransferResult) {
	if result.Succeeded() {
		return
	}
	machine, epoch, err := d.apply(EventTransactionFailed{Failure: result.Failure})
	if err != nil {
		return
	}
	if machine.State == StateRequestingExtendedExpiry || machine.State == StateRequestingIncreasedLimits {
		// Renewal must carry the session's previous token scope: a limited
		// session renews with the limits it was established with, never with
		// an empty token list.
		d.mu.Lock()
		limits := d.pendingLimits
		unlimited := d.pendingUnlimited
		d.mu.Unlock()
		if machine.Session.Info.AuthorizedTokens.Kind == AuthorizedAll {
			unlimited, limits = true, nil
		}
		if !unlimited && len(limits) == 0 {
			// A restored limited session has no amounts on hand (the chain
			// records mints only); stay put until ProvideLimits supplies them.
			return
		}
		go d.renew(ctx, machine.Session, limits, unlimited, epoch)
	}
}

func (d *Driver) renew(ctx context.Context, existing *Session, limits TokenLimits, unlimited bool, epoch uint64) {
	d.mu.Lock()
	signMessage := d.signMessage
	d.mu.Unlock()

	result, err := d.manager.Replace(ctx, existing, EstablishParams{
		SignMessage: signMessage,
		Expires:     time.Now().Add(d.cfg.SessionTTL),
		Unlimited:   unlimited,
		Limits:      limits,
	})
	d.finishAttempt(ctx, existing.WalletPublicKey, result, err, epoch)
}

// finishAttempt resolves an establish or renew attempt. Failures keep the
// machine in its requesting state with the error attached: the user should
// not have to reconnect their wallet just because a renewal attempt failed.
func (d *Driver) finishAttempt(ctx context.Context, wallet chain.PublicKey, result *EstablishResult, err error, epoch uint64) {
	if !d.stillAt(epoch) {
		logger.Debug("discarding superseded session attempt result")
		return
	}
	if err != nil {
		_, _, _ = d.apply(EventEstablishFailed{Err: err})
		return
	}
	if result.Err != nil {
		_, _, _ = d.apply(EventEstablishFailed{Err: result.Err})
		return
	}

	if saveErr := d.store.Save(ctx, wallet, result.Session.Key); saveErr != nil {
		logger.Warn("failed to persist session key", zap.Error(saveErr))
	}
	// Remember the granted scope for later renewals.
	d.mu.Lock()
	d.pendingUnlimited = result.Session.Info.AuthorizedTokens.Kind == AuthorizedAll
	d.mu.Unlock()
	_, _, _ = d.apply(EventEstablishSucceeded{Session: result.Session})
}

// Revoke ends the current session: best-effort on-chain revoke, then local
// cleanup and disconnect regardless of the revoke's outcome.
func (d *Driver) Revoke(ctx context.Context) {
	d.mu.Lock()
	current := d.machine.Session
	wallet := d.machine.Wallet
	d.mu.Unlock()

	if current != nil {
		if err := d.manager.Revoke(ctx, current); err != nil {
			logger.Warn("best-effort session revoke failed", zap.Error(err))
		}
		current.Key.Destroy()
	}
	if err := d.store.Clear(ctx, wallet); err != nil {
		logger.Warn("failed to clear stored session", zap.Error(err))
	}
	_, _, _ = d.apply(EventWalletDisconnected{})
}
