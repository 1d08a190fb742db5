// Package ledger implements the credit reserve/commit/refund lifecycle: a
// per-user balance held in the document store, plus the append-only usage
// log the orchestrator writes to after every task.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"orchestrator/internal/config"
	"orchestrator/internal/domain"
	"orchestrator/internal/logx"
	"orchestrator/internal/store"
)

// ErrInsufficientCredits is returned by Reserve when a user's available
// balance cannot cover the requested reservation.
var ErrInsufficientCredits = errors.New("insufficient credits")

// ErrReservationNotFound is returned by Commit/Refund when the reservation
// ID does not match a pending reservation.
var ErrReservationNotFound = errors.New("reservation not found")

const (
	// balanceCollection stores one CreditBalance document per user, keyed
	// by userId, alongside other per-user state.
	balanceCollection     = "users"
	reservationCollection = "reservations"
)

// reservation is the persisted record backing a pending Reserve call, kept
// in its own collection so a process restart doesn't strand reserved
// credits with no way to commit or refund them.
type reservation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Credits   float64   `json:"credits"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ledger is the credit ledger's operational surface, one instance shared by
// the orchestrator across all requests.
type Ledger struct {
	docs   *store.Documents
	credit config.CreditConfig
	logger *logx.Logger
}

// New returns a Ledger backed by docs, using ratios from credit.
func New(docs *store.Documents, credit config.CreditConfig) *Ledger {
	return &Ledger{
		docs:   docs,
		credit: credit,
		logger: logx.NewLogger("ledger"),
	}
}

// Reserve creates a reservation for credits against userID's balance. It
// fails with ErrInsufficientCredits if the user's available balance
// (balance - reserved) cannot cover the request.
func (l *Ledger) Reserve(userID string, credits float64) (string, error) {
	balance, err := l.loadOrCreateBalance(userID)
	if err != nil {
		return "", err
	}

	if balance.Available() < credits {
		return "", fmt.Errorf("%w: user %s has %.2f available, needs %.2f",
			ErrInsufficientCredits, userID, balance.Available(), credits)
	}

	balance.Reserved += credits
	if err := l.docs.Save(balanceCollection, userID, &balance); err != nil {
		return "", fmt.Errorf("save balance for reservation: %w", err)
	}

	res := reservation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Credits:   credits,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.docs.Save(reservationCollection, res.ID, &res); err != nil {
		return "", fmt.Errorf("save reservation: %w", err)
	}

	return res.ID, nil
}

// Commit replaces a reservation with the actual credits consumed.
// actualCredits is capped at the reservation's amount; an overrun is logged
// but never debits more than was reserved.
func (l *Ledger) Commit(reservationID string, actualCredits float64) error {
	res, err := l.loadReservation(reservationID)
	if err != nil {
		return err
	}

	charged := actualCredits
	if charged > res.Credits {
		l.logger.Warn("credit overrun on reservation %s: actual %.2f exceeds reserved %.2f, capping",
			reservationID, actualCredits, res.Credits)
		charged = res.Credits
	}

	balance, err := l.loadOrCreateBalance(res.UserID)
	if err != nil {
		return err
	}
	balance.Reserved -= res.Credits
	balance.Balance -= charged
	balance.LifetimeUsed += charged
	if balance.Reserved < 0 {
		balance.Reserved = 0
	}
	if balance.Balance < 0 {
		balance.Balance = 0
	}

	if err := l.docs.Save(balanceCollection, res.UserID, &balance); err != nil {
		return fmt.Errorf("save balance on commit: %w", err)
	}
	if err := l.docs.Delete(reservationCollection, reservationID); err != nil {
		return fmt.Errorf("delete reservation on commit: %w", err)
	}
	return nil
}

// Refund releases a reservation with no balance change, used when a
// provider call fails after credits were already reserved.
func (l *Ledger) Refund(reservationID string) error {
	res, err := l.loadReservation(reservationID)
	if err != nil {
		return err
	}

	balance, err := l.loadOrCreateBalance(res.UserID)
	if err != nil {
		return err
	}
	balance.Reserved -= res.Credits
	if balance.Reserved < 0 {
		balance.Reserved = 0
	}

	if err := l.docs.Save(balanceCollection, res.UserID, &balance); err != nil {
		return fmt.Errorf("save balance on refund: %w", err)
	}
	if err := l.docs.Delete(reservationCollection, reservationID); err != nil {
		return fmt.Errorf("delete reservation on refund: %w", err)
	}
	return nil
}

// Append writes one usage entry to the append-only usage log, the
// observability record of a completed task (best-effort, not transactional
// with the document write that precedes it).
func (l *Ledger) Append(entry domain.UsageEntry) error {
	kind := store.UsageKindCommit
	if entry.Status == domain.UsageStatusFailed {
		kind = store.UsageKindRefund
	}
	return l.docs.AppendUsage(store.UsageRecord{
		ID:               uuid.New().String(),
		UserID:           entry.UserID,
		TaskType:         entry.TaskType,
		Model:            entry.Model,
		PromptTokens:     entry.InputTokens,
		CompletionTokens: entry.OutputTokens,
		CreditsCharged:   entry.CreditsUsed,
		Kind:             kind,
	})
}

// Balance returns the current CreditBalance for userID, creating a
// zero-balance row if none exists yet.
func (l *Ledger) Balance(userID string) (domain.CreditBalance, error) {
	return l.loadOrCreateBalance(userID)
}

func (l *Ledger) loadOrCreateBalance(userID string) (domain.CreditBalance, error) {
	var balance domain.CreditBalance
	err := l.docs.Get(balanceCollection, userID, &balance)
	if errors.Is(err, store.ErrNotFound) {
		return domain.CreditBalance{UserID: userID}, nil
	}
	if err != nil {
		return domain.CreditBalance{}, fmt.Errorf("load balance for %s: %w", userID, err)
	}
	return balance, nil
}

func (l *Ledger) loadReservation(reservationID string) (reservation, error) {
	var res reservation
	err := l.docs.Get(reservationCollection, reservationID, &res)
	if errors.Is(err, store.ErrNotFound) {
		return reservation{}, fmt.Errorf("%w: %s", ErrReservationNotFound, reservationID)
	}
	if err != nil {
		return reservation{}, fmt.Errorf("load reservation %s: %w", reservationID, err)
	}
	return res, nil
}

// EstimateTextCredits converts a text task's token counts into a credit
// charge: ceil(tokens/1000 * ratio), floored at MinimumReservation.
func (l *Ledger) EstimateTextCredits(modelName string, promptTokens, completionTokens int) float64 {
	ratio := l.credit.CreditsPerThousandTokens[modelName]
	totalTokens := promptTokens + completionTokens
	credits := math.Ceil(float64(totalTokens) / 1000 * ratio * 100) / 100
	if credits < l.credit.MinimumReservation {
		return l.credit.MinimumReservation
	}
	return credits
}

// EstimateImageCredits converts a unit count of generated images into a
// credit charge.
func (l *Ledger) EstimateImageCredits(units int) float64 {
	credits := l.credit.ImageCreditsPerUnit * float64(units)
	if credits < l.credit.MinimumReservation {
		return l.credit.MinimumReservation
	}
	return credits
}

// EstimateVideoCredits converts generated video seconds into a credit
// charge.
func (l *Ledger) EstimateVideoCredits(seconds float64) float64 {
	credits := l.credit.VideoCreditsPerSecond * seconds
	if credits < l.credit.MinimumReservation {
		return l.credit.MinimumReservation
	}
	return credits
}
