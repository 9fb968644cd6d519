package billing

import "github.com/mivaca/backend/internal/ledger"

// Role distinguishes the session host from the diners.
type Role string

const (
	RoleHost  Role = "host"
	RoleDiner Role = "diner"
)

// Actor is the authenticated participant issuing a command.
type Actor struct {
	SessionID     string
	ParticipantID string
	Role          Role
}

func (a Actor) IsHost() bool {
	return a.Role == RoleHost
}

// authorize checks that the actor is a participant of the locked session.
func authorize(op string, actor Actor, tx *ledger.Tx) error {
	if actor.SessionID != tx.SessionID() {
		return ledger.Unauthorizedf(op, "wrong_session", ledger.ErrWrongSession)
	}
	switch actor.Role {
	case RoleHost:
		if actor.ParticipantID != tx.Session().HostID {
			return ledger.Unauthorizedf(op, "not_host", ledger.ErrHostOnly)
		}
		return nil
	case RoleDiner:
		if _, ok := tx.Diner(actor.ParticipantID); !ok {
			return ledger.Unauthorizedf(op, "unknown_participant", ledger.ErrWrongSession)
		}
		return nil
	default:
		return ledger.Unauthorizedf(op, "unknown_role", ledger.ErrWrongSession)
	}
}

func requireHost(op string, actor Actor, tx *ledger.Tx) error {
	if err := authorize(op, actor, tx); err != nil {
		return err
	}
	if !actor.IsHost() {
		return ledger.Unauthorizedf(op, "host_only", ledger.ErrHostOnly)
	}
	return nil
}

// requireSelfOrHost lets the host act for any diner and a diner only for itself.
func requireSelfOrHost(op string, actor Actor, tx *ledger.Tx, dinerID string) error {
	if err := authorize(op, actor, tx); err != nil {
		return err
	}
	if !actor.IsHost() && actor.ParticipantID != dinerID {
		return ledger.Unauthorizedf(op, "acting_for_other", ledger.ErrActingForOther)
	}
	return nil
}
