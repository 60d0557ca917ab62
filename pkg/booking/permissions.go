package booking

// CanManageEvent reports whether actor may act as the event's organizer.
func CanManageEvent(actor User, event Event) bool {
	return actor.Role.IsAdmin() || actor.ID == event.OrganizerID
}

// CanCancelBooking reports whether actor may cancel booking.
func CanCancelBooking(actor User, booking Booking, event Event) bool {
	return actor.ID == booking.UserID || CanManageEvent(actor, event)
}

// CanModerate reports whether actor may suspend or re-role target.
// Admins pass every admin gate except acting on a SuperAdmin.
func CanModerate(actor User, target User) bool {
	if !actor.Role.IsAdmin() {
		return false
	}
	if target.Role == RoleSuperAdmin && actor.Role != RoleSuperAdmin {
		return false
	}
	return true
}

// CanAssignRole reports whether actor may give role to target.
func CanAssignRole(actor User, target User, role Role) bool {
	if !CanModerate(actor, target) {
		return false
	}
	return role != RoleSuperAdmin || actor.Role == RoleSuperAdmin
}
