package store

import (
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	bcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	// Use a unique in-memory DB per test to avoid cross-test contamination.
	dsn := "file:store_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared&_cslike=true"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := New(db, WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func ptr[T any](v T) *T { return &v }
