package session

import (
	"fmt"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
)

// State is the client session lifecycle state exposed to a UI layer.
type State int

const (
	StateInitializing State = iota
	StateNotEstablished
	StateWalletConnecting
	StateSelectingWallet
	StateCheckingStoredSession
	StateRequestingLimits
	StateSettingLimits
	StateEstablished
	StateUpdatingSession
	StateRequestingExtendedExpiry
	StateRequestingIncreasedLimits
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "Initializing"
	case StateNotEstablished:
		return "NotEstablished"
	case StateWalletConnecting:
		return "WalletConnecting"
	case StateSelectingWallet:
		return "SelectingWallet"
	case StateCheckingStoredSession:
		return "CheckingStoredSession"
	case StateRequestingLimits:
		return "RequestingLimits"
	case StateSettingLimits:
		return "SettingLimits"
	case StateEstablished:
		return "Established"
	case StateUpdatingSession:
		return "UpdatingSession"
	case StateRequestingExtendedExpiry:
		return "RequestingExtendedExpiry"
	case StateRequestingIncreasedLimits:
		return "RequestingIncreasedLimits"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// requesting reports whether the state is one a renewal or establishment
// attempt can be retried from.
func (s State) requesting() bool {
	switch s {
	case StateSettingLimits, StateUpdatingSession, StateRequestingExtendedExpiry, StateRequestingIncreasedLimits:
		return true
	}
	return false
}

// Machine is the full observable machine value: the state plus whatever the
// state carries. Values are immutable; Transition returns a new Machine.
type Machine struct {
	State   State
	Wallet  chain.PublicKey
	Session *Session
	// Err is the failure attached to a requesting state, for the UI to
	// display and retry from.
	Err error
}

// Initial is the machine before initialization resolves.
func Initial() Machine {
	return Machine{State: StateInitializing}
}

// Event is a stimulus the machine reacts to.
type Event interface {
	isEvent()
}

// EventInitialized fires once startup knows whether a wallet connection is
// already underway.
type EventInitialized struct {
	WalletConnecting bool
}

// EventSelectWallet fires when the user opens the wallet picker.
type EventSelectWallet struct{}

// EventWalletConnecting fires when a wallet connection attempt starts.
type EventWalletConnecting struct{}

// EventWalletConnected fires when the wallet reports itself connected.
type EventWalletConnected struct {
	PublicKey       chain.PublicKey
	CanSignMessages bool
}

// EventWalletDisconnected fires when the wallet disconnects, from anywhere.
type EventWalletDisconnected struct{}

// EventStoredSessionValid resolves a stored-session check with a live
// session.
type EventStoredSessionValid struct {
	Session *Session
}

// EventStoredSessionMissing resolves a stored-session check without one.
// LimitsRequired selects whether the user must be prompted for limits first.
type EventStoredSessionMissing struct {
	LimitsRequired bool
}

// EventLimitsProvided fires when the user has chosen token limits.
type EventLimitsProvided struct{}

// EventUpdateRequested fires on a voluntary renewal from Established.
type EventUpdateRequested struct{}

// EventEstablishSucceeded resolves any establish/renew attempt with a new
// session.
type EventEstablishSucceeded struct {
	Session *Session
}

// EventEstablishFailed resolves an establish/renew attempt with an error.
// The machine stays in its requesting state so the attempt can be retried
// without reconnecting the wallet.
type EventEstablishFailed struct {
	Err error
}

// EventTransactionFailed reports an on-chain logical failure observed while
// Established, already classified.
type EventTransactionFailed struct {
	Failure FailureKind
}

func (EventInitialized) isEvent()          {}
func (EventSelectWallet) isEvent()         {}
func (EventWalletConnecting) isEvent()     {}
func (EventWalletConnected) isEvent()      {}
func (EventWalletDisconnected) isEvent()   {}
func (EventStoredSessionValid) isEvent()   {}
func (EventStoredSessionMissing) isEvent() {}
func (EventLimitsProvided) isEvent()       {}
func (EventUpdateRequested) isEvent()      {}
func (EventEstablishSucceeded) isEvent()   {}
func (EventEstablishFailed) isEvent()      {}
func (EventTransactionFailed) isEvent()    {}

// Transition is the pure state transition function. It returns the new
// machine value, or an error for events that violate the machine's
// invariants. Unexpected-but-harmless events (stale async results) leave the
// machine unchanged.
func Transition(m Machine, event Event) (Machine, error) {
	switch e := event.(type) {
	case EventInitialized:
		if m.State != StateInitializing {
			return m, nil
		}
		if e.WalletConnecting {
			return Machine{State: StateWalletConnecting}, nil
		}
		return Machine{State: StateNotEstablished}, nil

	case EventSelectWallet:
		if m.State != StateNotEstablished {
			return m, nil
		}
		return Machine{State: StateSelectingWallet}, nil

	case EventWalletConnecting:
		return Machine{State: StateWalletConnecting}, nil

	case EventWalletConnected:
		// A connected wallet without a public key or a message signer is an
		// invariant violation: fail loud rather than silently ignoring it.
		if e.PublicKey.IsZero() {
			return m, fmt.Errorf("wallet reported connected without a public key")
		}
		if !e.CanSignMessages {
			return m, fmt.Errorf("wallet %s cannot sign messages", e.PublicKey)
		}
		if m.State == StateEstablished && m.Wallet.Equals(e.PublicKey) {
			return m, nil
		}
		// Sessions are strictly scoped to one wallet: a public key switch
		// re-enters the stored-session check for the new wallet.
		return Machine{State: StateCheckingStoredSession, Wallet: e.PublicKey}, nil

	case EventWalletDisconnected:
		return Machine{State: StateNotEstablished}, nil

	case EventStoredSessionValid:
		if m.State != StateCheckingStoredSession {
			return m, nil
		}
		if e.Session == nil || !e.Session.WalletPublicKey.Equals(m.Wallet) {
			return m, fmt.Errorf("stored session does not match wallet %s", m.Wallet)
		}
		return Machine{State: StateEstablished, Wallet: m.Wallet, Session: e.Session}, nil

	case EventStoredSessionMissing:
		if m.State != StateCheckingStoredSession {
			return m, nil
		}
		if e.LimitsRequired {
			return Machine{State: StateRequestingLimits, Wallet: m.Wallet}, nil
		}
		return Machine{State: StateSettingLimits, Wallet: m.Wallet}, nil

	case EventLimitsProvided:
		if m.State != StateRequestingLimits {
			return m, nil
		}
		return Machine{State: StateSettingLimits, Wallet: m.Wallet}, nil

	case EventUpdateRequested:
		if m.State != StateEstablished {
			return m, nil
		}
		return Machine{State: StateUpdatingSession, Wallet: m.Wallet, Session: m.Session}, nil

	case EventEstablishSucceeded:
		if !m.State.requesting() {
			return m, nil
		}
		if e.Session == nil {
			return m, fmt.Errorf("establish succeeded without a session")
		}
		return Machine{State: StateEstablished, Wallet: m.Wallet, Session: e.Session}, nil

	case EventEstablishFailed:
		if !m.State.requesting() {
			return m, nil
		}
		next := m
		next.Err = e.Err
		return next, nil

	case EventTransactionFailed:
		if m.State != StateEstablished {
			return m, nil
		}
		switch e.Failure {
		case FailureExpired:
			return Machine{State: StateRequestingExtendedExpiry, Wallet: m.Wallet, Session: m.Session}, nil
		case FailureLimitsExceeded:
			return Machine{State: StateRequestingIncreasedLimits, Wallet: m.Wallet, Session: m.Session}, nil
		default:
			return m, nil
		}

	default:
		return m, fmt.Errorf("unhandled event %T", event)
	}
}
