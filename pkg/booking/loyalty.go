package booking

import (
	"context"
	"fmt"
)

// LoyaltySummary is a user's balance with its derived tier.
type LoyaltySummary struct {
	UserID              UserID
	Points              Points
	Tier                Tier
	NextTier            *Tier
	PointsToNextTier    Points
	DiscountBasisPoints int64
}

// Summarize derives the loyalty view of points.
func (table TierTable) Summarize(userID UserID, points Points) LoyaltySummary {
	tier := table.TierFor(points)
	summary := LoyaltySummary{
		UserID:              userID,
		Points:              points,
		Tier:                tier,
		DiscountBasisPoints: tier.DiscountBasisPoints,
	}
	if next, ok := table.NextTier(points); ok {
		summary.NextTier = &next
		summary.PointsToNextTier = next.MinPoints - points
	}
	return summary
}

// LoyaltySummary returns the current balance and tier of userID.
func (service *Service) LoyaltySummary(ctx context.Context, userID UserID) (LoyaltySummary, error) {
	user, err := service.store.GetUser(ctx, userID)
	if err != nil {
		return LoyaltySummary{}, err
	}
	return service.tiers.Summarize(user.ID, user.LoyaltyPoints), nil
}

// AdjustPoints applies an admin correction of delta to targetID. The balance floors at zero and
// the call succeeds even when flooring happens.
func (service *Service) AdjustPoints(ctx context.Context, actorID UserID, targetID UserID, delta Points) (LoyaltySummary, error) {
	var summary LoyaltySummary
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := requireAdmin(ctx, transactionStore, actorID); err != nil {
			return err
		}
		if delta > MaxPointsAdjustment || delta < -MaxPointsAdjustment {
			return fmt.Errorf("%w: adjustment must not exceed %d in magnitude", ErrInvalidPoints, MaxPointsAdjustment)
		}
		target, err := transactionStore.LockUser(ctx, targetID)
		if err != nil {
			return err
		}
		target.LoyaltyPoints = target.LoyaltyPoints.Add(delta)
		if err := transactionStore.UpdateUser(ctx, target); err != nil {
			return err
		}
		summary = service.tiers.Summarize(target.ID, target.LoyaltyPoints)
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationAdjustPoints,
		ActorID:   actorID,
		Points:    delta,
		Error:     operationError,
	})
	return summary, operationError
}

// RedeemPoints spends cost points of actorID on a store purchase. Purchases never floor: the
// balance must cover the cost.
func (service *Service) RedeemPoints(ctx context.Context, actorID UserID, cost Points) (LoyaltySummary, error) {
	var summary LoyaltySummary
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if cost <= 0 {
			return fmt.Errorf("%w: cost must be greater than zero", ErrInvalidPoints)
		}
		user, err := transactionStore.LockUser(ctx, actorID)
		if err != nil {
			return err
		}
		if user.LoyaltyPoints < cost {
			return ErrInsufficientPoints
		}
		user.LoyaltyPoints = user.LoyaltyPoints.Add(-cost)
		if err := transactionStore.UpdateUser(ctx, user); err != nil {
			return err
		}
		summary = service.tiers.Summarize(user.ID, user.LoyaltyPoints)
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRedeemPoints,
		ActorID:   actorID,
		Points:    cost,
		Error:     operationError,
	})
	return summary, operationError
}
