package booking

import (
	"context"
	"errors"
	"strings"
)

// EnsureUser returns the account for userID, provisioning an Attendee on first sight.
func (service *Service) EnsureUser(ctx context.Context, userID UserID, displayName string) (User, error) {
	user, err := service.store.GetUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUnknownUser) {
		return User{}, err
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = defaultDisplayNameFallback
	}
	user = User{
		ID:          userID,
		DisplayName: name,
		Role:        RoleAttendee,
	}
	operationError := service.store.CreateUser(ctx, user)
	if errors.Is(operationError, ErrUserExists) {
		return service.store.GetUser(ctx, userID)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationEnsureUser,
		ActorID:   userID,
		Error:     operationError,
	})
	if operationError != nil {
		return User{}, operationError
	}
	return user, nil
}

// GetUser returns the account for userID.
func (service *Service) GetUser(ctx context.Context, userID UserID) (User, error) {
	return service.store.GetUser(ctx, userID)
}

// AssignRole sets a role without an acting user. It provisions the account when missing and is
// meant for operator bootstrap, not for request handling.
func (service *Service) AssignRole(ctx context.Context, userID UserID, role Role) (User, error) {
	var updated User
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := ParseRole(role.String()); err != nil {
			return err
		}
		user, err := transactionStore.LockUser(ctx, userID)
		if errors.Is(err, ErrUnknownUser) {
			user = User{ID: userID, DisplayName: defaultDisplayNameFallback, Role: role}
			if err := transactionStore.CreateUser(ctx, user); err != nil {
				return err
			}
			updated = user
			return nil
		}
		if err != nil {
			return err
		}
		user.Role = role
		if err := transactionStore.UpdateUser(ctx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationAssignRole,
		ActorID:   userID,
		Error:     operationError,
	})
	return updated, operationError
}

// ChangeUserRole lets an admin re-role another account. Only a SuperAdmin may touch a SuperAdmin
// or grant that role.
func (service *Service) ChangeUserRole(ctx context.Context, actorID UserID, targetID UserID, role Role) (User, error) {
	return service.moderateUser(ctx, operationChangeRole, actorID, targetID, func(actor User, target *User) error {
		if _, err := ParseRole(role.String()); err != nil {
			return err
		}
		if !CanAssignRole(actor, *target, role) {
			return ErrForbidden
		}
		target.Role = role
		return nil
	})
}

// SetUserSuspended suspends or reinstates an account. Suspended users can neither book nor wait.
func (service *Service) SetUserSuspended(ctx context.Context, actorID UserID, targetID UserID, suspended bool) (User, error) {
	return service.moderateUser(ctx, operationSuspendUser, actorID, targetID, func(actor User, target *User) error {
		if !CanModerate(actor, *target) {
			return ErrForbidden
		}
		target.IsSuspended = suspended
		return nil
	})
}

func (service *Service) moderateUser(ctx context.Context, operation string, actorID UserID, targetID UserID, mutate func(actor User, target *User) error) (User, error) {
	var updated User
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		actor, err := requireAdmin(ctx, transactionStore, actorID)
		if err != nil {
			return err
		}
		if actor.ID == targetID {
			return ErrSelfModeration
		}
		target, err := transactionStore.LockUser(ctx, targetID)
		if err != nil {
			return err
		}
		if err := mutate(actor, &target); err != nil {
			return err
		}
		if err := transactionStore.UpdateUser(ctx, target); err != nil {
			return err
		}
		updated = target
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operation,
		ActorID:   actorID,
		Error:     operationError,
	})
	return updated, operationError
}
