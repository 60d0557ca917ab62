package gormstore_test

import (
	"os"
	"testing"

	"github.com/MarkoPoloResearchLab/booking/internal/store/gormstore"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const postgresURLEnv = "BOOKINGD_TEST_POSTGRES_URL"

// newPostgresStore connects to the disposable database named by BOOKINGD_TEST_POSTGRES_URL.
func newPostgresStore(test *testing.T) *gormstore.Store {
	test.Helper()
	dsn := os.Getenv(postgresURLEnv)
	if dsn == "" {
		test.Skipf("%s not set", postgresURLEnv)
	}
	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		test.Fatalf("postgres open failed: %v", err)
	}
	sqlDatabase, err := database.DB()
	if err != nil {
		test.Fatalf("sql handle: %v", err)
	}
	test.Cleanup(func() { _ = sqlDatabase.Close() })
	if err := gormstore.Migrate(database); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	return gormstore.New(database)
}

func TestConcurrentBookingsForLastSeatOnPostgres(test *testing.T) {
	store := newPostgresStore(test)
	raceForLastSeat(test, store, uuid.NewString()[:8]+"-", 16)
}
