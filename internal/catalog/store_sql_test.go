package catalog_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/classmark/examhub/internal/catalog"
	"github.com/classmark/examhub/internal/db"
)

func openCatalogDB(t *testing.T) (*sql.DB, *catalog.SQLStore) {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite,
		"file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })

	store := catalog.NewSQLStore(dbh)
	err = store.CreateExam(context.Background(), catalog.Exam{
		ID:                "exam-1",
		TeacherID:         "t1",
		Title:             "Algebra I",
		StartAt:           time.Unix(0, 0),
		EndAt:             time.Unix(4102444800, 0),
		DurationMinutes:   30,
		MaxAttempts:       1,
		PassingPercentage: 40,
		AccessType:        catalog.AccessSpecificStudents,
		AllowedStudents:   []string{"s1"},
		IsActive:          true,
		CreatedAt:         time.Unix(0, 0),
		UpdatedAt:         time.Unix(0, 0),
	})
	if err != nil {
		t.Fatalf("seed exam: %v", err)
	}
	return dbh, store
}

func TestAccessGrantRevokeRoundTrip(t *testing.T) {
	_, store := openCatalogDB(t)
	ctx := context.Background()

	if _, err := store.GrantAccess(ctx, "exam-1", "s1", "t1"); err != nil {
		t.Fatalf("GrantAccess: %v", err)
	}
	if err := store.RevokeAccess(ctx, "exam-1", "s1"); err != nil {
		t.Fatalf("RevokeAccess: %v", err)
	}

	grants, err := store.ListAccess(ctx, "exam-1")
	if err != nil {
		t.Fatalf("ListAccess: %v", err)
	}
	if len(grants) != 1 || !grants[0].IsRevoked || grants[0].RevokedAt == nil {
		t.Fatalf("grant after revoke = %+v, want revoked with timestamp", grants)
	}

	// Re-granting clears the revocation.
	if _, err := store.GrantAccess(ctx, "exam-1", "s1", "t1"); err != nil {
		t.Fatalf("re-grant: %v", err)
	}
	grants, err = store.ListAccess(ctx, "exam-1")
	if err != nil {
		t.Fatalf("ListAccess: %v", err)
	}
	if len(grants) != 1 || grants[0].IsRevoked || grants[0].RevokedAt != nil {
		t.Fatalf("grant after re-grant = %+v, want active", grants)
	}
}

func TestRevokeWithoutGrant(t *testing.T) {
	_, store := openCatalogDB(t)

	// The exam exists; only the grant is missing.
	err := store.RevokeAccess(context.Background(), "exam-1", "never-granted")
	if !errors.Is(err, catalog.ErrAccessNotFound) {
		t.Fatalf("error = %v, want ErrAccessNotFound", err)
	}
}
