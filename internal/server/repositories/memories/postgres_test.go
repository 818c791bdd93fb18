package memories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/futuravault/futuravault/internal/common"
	"github.com/futuravault/futuravault/internal/server/models"
)

func TestCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO memories").
		WithArgs("mem-1", "user-1", "image", "beach", "summer", "web2_only").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresRepository(db)
	err = repo.Create(context.Background(), &models.Memory{
		ID: "mem-1", OwnerID: "user-1", Type: models.MemoryImage,
		Title: "beach", Description: "summer",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "type", "title", "description",
		"storage_locations", "storage_count", "storage_status",
		"created_at", "updated_at", "deleted_at",
	}).AddRow("mem-1", "user-1", "image", "beach", "", "icp,neon", 2, "stored_forever", now, now, nil)

	mock.ExpectQuery("SELECT (.+) FROM memories").
		WithArgs("mem-1", "user-1").
		WillReturnRows(rows)

	repo := NewPostgresRepository(db)
	m, err := repo.GetByID(context.Background(), "user-1", "mem-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.StorageStatus != models.StatusForever || m.StorageCount != 2 {
		t.Fatalf("unexpected memory: %+v", m)
	}
	want := []models.Backend{models.BackendICP, models.BackendNeon}
	if len(m.StorageLocations) != 2 || m.StorageLocations[0] != want[0] || m.StorageLocations[1] != want[1] {
		t.Fatalf("locations not decoded: %v", m.StorageLocations)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM memories").
		WithArgs("mem-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewPostgresRepository(db)
	_, err = repo.GetByID(context.Background(), "user-1", "mem-1")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdateStorageProjection(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE memories").
		WithArgs("mem-1", "icp,neon", 2, "stored_forever").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresRepository(db)
	err = repo.UpdateStorageProjection(context.Background(), "mem-1",
		[]models.Backend{models.BackendICP, models.BackendNeon}, 2, models.StatusForever)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateStorageProjection_MissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE memories").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresRepository(db)
	err = repo.UpdateStorageProjection(context.Background(), "mem-1", nil, 0, models.StatusWeb2Only)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMarkDeleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE memories SET deleted_at").
		WithArgs("mem-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresRepository(db)
	if err := repo.MarkDeleted(context.Background(), "user-1", "mem-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMarkDeleted_AlreadyDeleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE memories SET deleted_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresRepository(db)
	err = repo.MarkDeleted(context.Background(), "user-1", "mem-1")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM memories").
		WithArgs("mem-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresRepository(db)
	if err := repo.Delete(context.Background(), "mem-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLocationsRoundTrip(t *testing.T) {
	in := []models.Backend{models.BackendICP, models.BackendNeon}
	out := splitLocations(joinLocations(in))
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Fatalf("round trip failed: %v", out)
	}
	if splitLocations("") != nil {
		t.Fatalf("empty string must decode to nil")
	}
}
