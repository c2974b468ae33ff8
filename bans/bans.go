// Package bans guards queue admission and administers the ban list.
//
// Two records describe a ban: the primary account record (the "banned" flag on
// the user) and a fast lookup record consulted on every match request. Ban and
// Unban update the account first and mirror the change into the lookup; the
// two are only eventually consistent.
package bans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrStoreUnavailable wraps any failure talking to a ban store.
var ErrStoreUnavailable = errors.New("ban store unavailable")

// Lookup is the fast ban-lookup record.
type Lookup interface {
	Find(ctx context.Context, identity string) (bool, error)
	Put(ctx context.Context, identity string) (bool, error)
	Delete(ctx context.Context, identity string) (bool, error)
}

// AccountUpdate reports how a SetBanned call landed: Matched is 0 for an
// unknown account, Modified is 0 when the flag already had the value.
type AccountUpdate struct {
	Matched  int64
	Modified int64
}

// Accounts is the primary user record.
type Accounts interface {
	SetBanned(ctx context.Context, identity string, banned bool) (AccountUpdate, error)
}

type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Gate answers admission checks. Every call is a fresh lookup.
type Gate struct {
	lookup Lookup
}

func NewGate(l Lookup) *Gate {
	return &Gate{lookup: l}
}

func (g *Gate) IsBanned(ctx context.Context, identity string) (bool, error) {
	banned, err := g.lookup.Find(ctx, normalize(identity))
	if err != nil {
		return false, storeErr("find", err)
	}
	return banned, nil
}

// Admin carries out operator ban and unban commands.
type Admin struct {
	accounts Accounts
	lookup   Lookup
	notifier Notifier
}

func NewAdmin(a Accounts, l Lookup, n Notifier) *Admin {
	return &Admin{accounts: a, lookup: l, notifier: n}
}

// Ban flags identity as banned. The returned count is 0 when the account does
// not exist or is already banned. An existing account always has its lookup
// record reconciled, so a retry repairs an earlier failed mirror; only a real
// change is announced.
func (a *Admin) Ban(ctx context.Context, identity string) (int64, error) {
	return a.set(ctx, normalize(identity), true)
}

// Unban is the inverse of Ban.
func (a *Admin) Unban(ctx context.Context, identity string) (int64, error) {
	return a.set(ctx, normalize(identity), false)
}

func (a *Admin) set(ctx context.Context, identity string, banned bool) (int64, error) {
	verb := "unbanned"
	if banned {
		verb = "banned"
	}
	if identity == "" {
		return 0, errors.New("bans: empty identity")
	}

	upd, err := a.accounts.SetBanned(ctx, identity, banned)
	if err != nil {
		log.Error().Err(err).Str("identity", identity).Msgf("bans: failed to mark account %s", verb)
		return 0, storeErr("set banned", err)
	}
	if upd.Matched == 0 {
		log.Info().Str("identity", identity).Msgf("bans: account not found; not %s", verb)
		return 0, nil
	}

	n := upd.Modified
	changed, err := a.mirror(ctx, identity, banned)
	if n == 0 {
		// The account already holds the requested state. A lookup left stale
		// by an earlier failed mirror is repaired here.
		switch {
		case err != nil:
			log.Error().Err(err).Str("identity", identity).Msgf("bans: account already %s; lookup reconcile failed", verb)
			return 0, storeErr("reconcile lookup", err)
		case changed:
			log.Warn().Str("identity", identity).Msgf("bans: lookup record repaired; account already %s", verb)
		default:
			log.Info().Str("identity", identity).Msgf("bans: account already %s", verb)
		}
		return 0, nil
	}
	if err != nil {
		log.Error().Err(err).Str("identity", identity).Msgf("bans: account %s but lookup record not updated", verb)
		return n, storeErr("mirror lookup", err)
	}
	if !changed {
		log.Warn().Str("identity", identity).Msgf("bans: lookup record already %s", verb)
	}

	log.Info().Str("identity", identity).Msgf("bans: %s", verb)
	if a.notifier != nil {
		a.notifier.Notify(ctx, fmt.Sprintf("User %s has been %s.", identity, verb))
	}
	return n, nil
}

// mirror brings the lookup record in line with the requested state. Put and
// Delete are both idempotent.
func (a *Admin) mirror(ctx context.Context, identity string, banned bool) (bool, error) {
	if banned {
		return a.lookup.Put(ctx, identity)
	}
	return a.lookup.Delete(ctx, identity)
}

// normalize is the single canonical form of an identity: trimmed and
// lowercased, so admission checks and administration agree.
func normalize(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
