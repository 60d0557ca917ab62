package booking

import (
	"context"
	"fmt"
	"strings"
)

// RequestPayout records a pending payout for an organizer. An organizer holds at most one
// pending request; the check is repeated inside the inserting transaction and backed by a
// filtered unique index in the store.
func (service *Service) RequestPayout(ctx context.Context, actorID UserID, amount AmountCents, bankDetails string) (PayoutRequest, error) {
	var payout PayoutRequest
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if amount <= 0 {
			return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmountCents)
		}
		normalizedDetails := strings.TrimSpace(bankDetails)
		if normalizedDetails == "" {
			return fmt.Errorf("%w: empty value", ErrInvalidBankDetails)
		}
		if len(normalizedDetails) > maxBankDetailsLength {
			return fmt.Errorf("%w: longer than %d characters", ErrInvalidBankDetails, maxBankDetailsLength)
		}
		organizer, err := transactionStore.LockUser(ctx, actorID)
		if err != nil {
			return err
		}
		if !organizer.Role.CanOrganize() {
			return ErrForbidden
		}
		pending, err := transactionStore.HasPendingPayout(ctx, organizer.ID)
		if err != nil {
			return err
		}
		if pending {
			return ErrPendingPayoutExists
		}
		payoutID, err := NewPayoutID(service.newID())
		if err != nil {
			return err
		}
		payout = PayoutRequest{
			ID:          payoutID,
			OrganizerID: organizer.ID,
			AmountCents: amount,
			BankDetails: normalizedDetails,
			Status:      PayoutStatusPending,
			RequestedAt: service.now(),
		}
		return transactionStore.InsertPayout(ctx, payout)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRequestPayout,
		ActorID:   actorID,
		PayoutID:  payout.ID,
		Error:     operationError,
	})
	return payout, operationError
}

// ProcessPayout moves a pending payout to Approved or Rejected. Both targets are terminal.
func (service *Service) ProcessPayout(ctx context.Context, actorID UserID, payoutID PayoutID, target PayoutStatus, adminNotes string) (PayoutRequest, error) {
	var processed PayoutRequest
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := requireAdmin(ctx, transactionStore, actorID); err != nil {
			return err
		}
		payout, err := transactionStore.LockPayout(ctx, payoutID)
		if err != nil {
			return err
		}
		if !target.IsTerminal() {
			return fmt.Errorf("%w: %q", ErrInvalidPayoutTarget, target)
		}
		if payout.Status != PayoutStatusPending {
			return ErrPayoutProcessed
		}
		notes := strings.TrimSpace(adminNotes)
		if len(notes) > maxAdminNotesLength {
			return fmt.Errorf("%w: longer than %d characters", ErrInvalidAdminNotes, maxAdminNotesLength)
		}
		now := service.now()
		payout.Status = target
		payout.ProcessedAt = &now
		payout.AdminNotes = nil
		if notes != "" {
			payout.AdminNotes = &notes
		}
		if err := transactionStore.UpdatePayout(ctx, payout, PayoutStatusPending); err != nil {
			return err
		}
		processed = payout
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationProcessPayout,
		ActorID:   actorID,
		PayoutID:  payoutID,
		Error:     operationError,
	})
	return processed, operationError
}

// ListPayouts returns payouts visible to actorID. Non-admins only ever see their own rows
// regardless of filter.OrganizerID.
func (service *Service) ListPayouts(ctx context.Context, actorID UserID, filter PayoutFilter) ([]PayoutRequest, error) {
	actor, err := service.store.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsAdmin() {
		filter.OrganizerID = actor.ID
	}
	return service.store.ListPayouts(ctx, filter)
}
