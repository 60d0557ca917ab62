package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusDelivered = "delivered"
)

// UserRecord mirrors the users table.
type UserRecord struct {
	UserID        string    `gorm:"primaryKey"`
	DisplayName   string    `gorm:"not null"`
	Role          string    `gorm:"not null;index:idx_users_role"`
	IsSuspended   bool      `gorm:"not null;default:false"`
	LoyaltyPoints int64     `gorm:"not null;default:0;check:chk_users_points_non_negative,loyalty_points >= 0"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (UserRecord) TableName() string { return "users" }

// EventRecord mirrors the events table.
type EventRecord struct {
	EventID     string    `gorm:"primaryKey"`
	OrganizerID string    `gorm:"not null;index:idx_events_organizer"`
	Title       string    `gorm:"not null"`
	Capacity    int       `gorm:"not null;check:chk_events_capacity_positive,capacity > 0"`
	PriceCents  int64     `gorm:"not null;check:chk_events_price_non_negative,price_cents >= 0"`
	Status      string    `gorm:"not null;index:idx_events_status"`
	IsSuspended bool      `gorm:"not null;default:false"`
	StartsAt    time.Time `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (EventRecord) TableName() string { return "events" }

// BookingRecord mirrors the bookings table. At most one confirmed row exists per user and event;
// cancelled history rows are outside the filtered unique index.
type BookingRecord struct {
	BookingID          string     `gorm:"primaryKey"`
	EventID            string     `gorm:"not null;index:uniq_bookings_confirmed_user_event,unique,priority:2,where:status = 'confirmed';index:idx_bookings_event_status,priority:1"`
	UserID             string     `gorm:"not null;index:uniq_bookings_confirmed_user_event,unique,priority:1,where:status = 'confirmed';index:idx_bookings_user"`
	Status             string     `gorm:"not null;index:idx_bookings_event_status,priority:2"`
	PointsEarned       int64      `gorm:"not null;default:0"`
	PointsState        string     `gorm:"not null;default:'awarded'"`
	AmountChargedCents int64      `gorm:"not null;default:0"`
	IsCheckedIn        bool       `gorm:"not null;default:false"`
	CheckedInAt        *time.Time `gorm:""`
	CheckInToken       *string    `gorm:"index:uniq_bookings_check_in_token,unique"`
	CreatedAt          time.Time  `gorm:"not null"`
	UpdatedAt          time.Time  `gorm:"not null"`
	CancelledAt        *time.Time `gorm:""`
}

func (BookingRecord) TableName() string { return "bookings" }

// WaitlistRecord mirrors the waitlist_entries table. Order is (joined_at_unix_nano, sequence).
type WaitlistRecord struct {
	Sequence         int64  `gorm:"primaryKey;autoIncrement"`
	EventID          string `gorm:"not null;index:uniq_waitlist_event_user,unique,priority:1;index:idx_waitlist_order,priority:1"`
	UserID           string `gorm:"not null;index:uniq_waitlist_event_user,unique,priority:2"`
	JoinedAtUnixNano int64  `gorm:"not null;index:idx_waitlist_order,priority:2"`
}

func (WaitlistRecord) TableName() string { return "waitlist_entries" }

// PayoutRecord mirrors the payout_requests table. At most one pending row exists per organizer.
type PayoutRecord struct {
	PayoutID    string     `gorm:"primaryKey"`
	OrganizerID string     `gorm:"not null;index:idx_payouts_organizer;index:uniq_payouts_pending_organizer,unique,where:status = 'pending'"`
	AmountCents int64      `gorm:"not null;check:chk_payouts_amount_positive,amount_cents > 0"`
	BankDetails string     `gorm:"not null"`
	Status      string     `gorm:"not null;index:idx_payouts_status"`
	AdminNotes  *string    `gorm:""`
	RequestedAt time.Time  `gorm:"not null"`
	ProcessedAt *time.Time `gorm:""`
}

func (PayoutRecord) TableName() string { return "payout_requests" }

// OutboxRecord mirrors the outbox_messages table.
type OutboxRecord struct {
	MessageID       string         `gorm:"primaryKey"`
	EventType       string         `gorm:"not null"`
	Payload         datatypes.JSON `gorm:"not null"`
	Status          string         `gorm:"not null;index:idx_outbox_due,priority:1"`
	Attempts        int            `gorm:"not null;default:0"`
	NextAttemptUnix int64          `gorm:"not null;index:idx_outbox_due,priority:2"`
	LastError       string         `gorm:"not null;default:''"`
	CreatedAt       time.Time      `gorm:"not null"`
	DeliveredAt     *time.Time     `gorm:""`
}

func (OutboxRecord) TableName() string { return "outbox_messages" }

func (record *OutboxRecord) BeforeCreate(tx *gorm.DB) error {
	if record.MessageID == "" {
		record.MessageID = uuid.NewString()
	}
	return nil
}

// Models lists every table managed by the store in migration order.
func Models() []any {
	return []any{
		&UserRecord{},
		&EventRecord{},
		&BookingRecord{},
		&WaitlistRecord{},
		&PayoutRecord{},
		&OutboxRecord{},
	}
}

// Migrate creates or updates the schema, including the filtered unique indexes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
