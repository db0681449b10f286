package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/example/stayescrow/internal/models"
)

// ReputationService owns user scores and the suspensions derived from them.
type ReputationService struct {
	ledger *Ledger
	now    func() time.Time
}

func NewReputationService(ledger *Ledger) *ReputationService {
	return &ReputationService{ledger: ledger, now: time.Now}
}

// UserReputation is a user account with its derived penalty total.
type UserReputation struct {
	ID               int64      `json:"id"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	Email            string     `json:"email"`
	WalletAddress    *string    `json:"walletAddress"`
	Score            int        `json:"score"`
	PenaltyPoints    int        `json:"penaltyPoints"`
	IsSuspended      bool       `json:"isSuspended"`
	SuspensionReason *string    `json:"suspensionReason"`
	SuspensionUntil  *time.Time `json:"suspensionUntil"`
}

func reputationOf(user *models.UserAccount) *UserReputation {
	score := user.CurrentScore()
	return &UserReputation{
		ID:               user.ID,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		Email:            user.Email,
		WalletAddress:    user.WalletAddress,
		Score:            score,
		PenaltyPoints:    models.DefaultScore - score,
		IsSuspended:      user.IsSuspended,
		SuspensionReason: user.SuspensionReason,
		SuspensionUntil:  user.SuspensionUntil,
	}
}

func (s *ReputationService) User(ctx context.Context, userID int64) (*UserReputation, error) {
	user, err := s.ledger.FindUser(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, CodeUserNotFound, "user not found: %d", userID)
	}
	return reputationOf(user), nil
}

// PenaltyResult reports a score change.
type PenaltyResult struct {
	UserID        int64 `json:"userId"`
	PreviousScore int   `json:"previousScore"`
	NewScore      int   `json:"newScore"`
	PointsApplied int   `json:"penaltyPointsDeducted"`
	IsSuspended   bool  `json:"isSuspended"`
}

// ApplyPenalty deducts points from a user's score (never below zero) and
// re-evaluates the suspension tier.
func (s *ReputationService) ApplyPenalty(ctx context.Context, userID int64, points int) (*PenaltyResult, error) {
	if points <= 0 {
		return nil, businessError(CodeInvalidRequest, "invalid penalty points: %d", points)
	}

	var result *PenaltyResult
	err := s.ledger.WithinTransaction(ctx, func(tx *Ledger) error {
		user, err := tx.FindUser(ctx, userID)
		if err != nil {
			return notFoundAs(err, CodeUserNotFound, "user not found: %d", userID)
		}

		previous := user.CurrentScore()
		score := max(0, previous-points)
		user.Score = &score
		applySuspensionTier(user, s.now())

		if err := tx.SaveUser(ctx, user); err != nil {
			return err
		}
		result = &PenaltyResult{
			UserID:        userID,
			PreviousScore: previous,
			NewScore:      score,
			PointsApplied: points,
			IsSuspended:   user.IsSuspended,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Reputation] user %d score %d -> %d (suspended=%t)", userID, result.PreviousScore, result.NewScore, result.IsSuspended)
	return result, nil
}

// Suspend suspends a user. days <= 0 means until lifted manually.
func (s *ReputationService) Suspend(ctx context.Context, userID int64, reason string, days int) (*UserReputation, error) {
	user, err := s.ledger.FindUser(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, CodeUserNotFound, "user not found: %d", userID)
	}

	user.IsSuspended = true
	user.SuspensionReason = nil
	if reason = strings.TrimSpace(reason); reason != "" {
		user.SuspensionReason = &reason
	}
	user.SuspensionUntil = nil
	if days > 0 {
		until := s.now().AddDate(0, 0, days)
		user.SuspensionUntil = &until
	}

	if err := s.ledger.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return reputationOf(user), nil
}

func (s *ReputationService) Unsuspend(ctx context.Context, userID int64) (*UserReputation, error) {
	user, err := s.ledger.FindUser(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, CodeUserNotFound, "user not found: %d", userID)
	}

	clearSuspension(user)
	if err := s.ledger.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return reputationOf(user), nil
}

// applySuspensionTier maps a score onto a suspension:
//
//	<= 74  permanent
//	75-79  60 days
//	80-84  30 days
//	85-89  7 days
//	>= 90  an expired suspension is lifted
func applySuspensionTier(user *models.UserAccount, now time.Time) {
	score := user.CurrentScore()
	deducted := models.DefaultScore - score

	suspend := func(label string, days int) {
		reason := fmt.Sprintf("%s - %d penalty points deducted", label, deducted)
		user.IsSuspended = true
		user.SuspensionReason = &reason
		user.SuspensionUntil = nil
		if days > 0 {
			until := now.AddDate(0, 0, days)
			user.SuspensionUntil = &until
		}
	}

	switch {
	case score <= 74:
		suspend("Score too low (<=74)", 0)
	case score <= 79:
		suspend("Low score (75-79)", 60)
	case score <= 84:
		suspend("Low score (80-84)", 30)
	case score <= 89:
		suspend("Moderate score (85-89)", 7)
	case user.IsSuspended && user.SuspensionUntil != nil && now.After(*user.SuspensionUntil):
		clearSuspension(user)
	}
}

func clearSuspension(user *models.UserAccount) {
	user.IsSuspended = false
	user.SuspensionReason = nil
	user.SuspensionUntil = nil
}
