package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/stitchline/stitchline/internal/logger"
	"github.com/stitchline/stitchline/models"
)

func newTestConflictRepo(t *testing.T) (ConflictRepository, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	l := logger.Nop()
	repo := NewConflictRepository(&DB{DB: db, logger: l}, l)
	return repo, mock, db
}

func conflictColumns() []string {
	return []string{
		"conflict_id", "entity_type", "entity_id", "local_payload", "server_payload",
		"local_version", "server_version", "actor_id", "detected_at", "status",
		"resolution", "resolved_by", "resolved_at", "reason",
	}
}

func pendingConflictRow(conflictID string) *sqlmock.Rows {
	return sqlmock.NewRows(conflictColumns()).
		AddRow(conflictID, "order", "ord-1", `{"qty":5}`, `{"qty":8}`,
			3, 4, "cutter-3", time.Now(), "PENDING", "", "", nil, "")
}

func TestConflictRepository_Insert_NullPayloadForDeleteConflict(t *testing.T) {
	repo, mock, db := newTestConflictRepo(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO conflicts").
		WithArgs("c-1", models.EntityOrder, "ord-1", nil, `{"qty":8}`,
			int64(3), int64(4), "cutter-3", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), models.ConflictRecord{
		ConflictID:    "c-1",
		EntityType:    models.EntityOrder,
		EntityID:      "ord-1",
		ServerPayload: json.RawMessage(`{"qty":8}`),
		LocalVersion:  3,
		ServerVersion: 4,
		ActorID:       "cutter-3",
		DetectedAt:    time.Now(),
		Status:        models.ConflictPending,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err = mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestConflictRepository_Resolve_LocalOverwritesEntity(t *testing.T) {
	repo, mock, db := newTestConflictRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM conflicts").
		WithArgs("c-1").
		WillReturnRows(pendingConflictRow("c-1"))
	mock.ExpectQuery("UPDATE entities").
		WithArgs(models.EntityType("order"), "ord-1", `{"qty":5}`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(9))
	mock.ExpectExec("UPDATE conflicts").
		WithArgs("c-1", models.ResolutionLocal, "supervisor-1", "recount").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO conflict_audit").
		WithArgs("c-1", models.ResolutionLocal, "supervisor-1", "recount").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	version, err := repo.Resolve(context.Background(), "c-1", models.ResolutionLocal,
		json.RawMessage(`{"qty":5}`), false, "supervisor-1", "recount")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 9 {
		t.Errorf("expected minted version 9, got %d", version)
	}
	if err = mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestConflictRepository_Resolve_ServerLeavesEntityAlone(t *testing.T) {
	repo, mock, db := newTestConflictRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM conflicts").
		WithArgs("c-1").
		WillReturnRows(pendingConflictRow("c-1"))
	mock.ExpectExec("UPDATE conflicts").
		WithArgs("c-1", models.ResolutionServer, "supervisor-1", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO conflict_audit").
		WithArgs("c-1", models.ResolutionServer, "supervisor-1", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	version, err := repo.Resolve(context.Background(), "c-1", models.ResolutionServer, nil, false, "supervisor-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 4 {
		t.Errorf("expected the untouched server version 4, got %d", version)
	}
}

func TestConflictRepository_Resolve_TombstoneSoftDeletes(t *testing.T) {
	repo, mock, db := newTestConflictRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM conflicts").
		WithArgs("c-1").
		WillReturnRows(pendingConflictRow("c-1"))
	mock.ExpectQuery("UPDATE entities").
		WithArgs(models.EntityType("order"), "ord-1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(5))
	mock.ExpectExec("UPDATE conflicts").
		WithArgs("c-1", models.ResolutionLocal, "supervisor-1", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO conflict_audit").
		WithArgs("c-1", models.ResolutionLocal, "supervisor-1", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	version, err := repo.Resolve(context.Background(), "c-1", models.ResolutionLocal, nil, true, "supervisor-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 5 {
		t.Errorf("expected tombstone version 5, got %d", version)
	}
}

func TestConflictRepository_Resolve_AlreadyResolved(t *testing.T) {
	repo, mock, db := newTestConflictRepo(t)
	defer db.Close()

	resolvedAt := time.Now()
	rows := sqlmock.NewRows(conflictColumns()).
		AddRow("c-1", "order", "ord-1", `{"qty":5}`, `{"qty":8}`,
			3, 4, "cutter-3", time.Now(), "RESOLVED", "SERVER", "supervisor-1", resolvedAt, "done")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM conflicts").
		WithArgs("c-1").
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := repo.Resolve(context.Background(), "c-1", models.ResolutionLocal, nil, false, "supervisor-2", "")
	if !errors.Is(err, ErrConflictAlreadyResolved) {
		t.Errorf("expected ErrConflictAlreadyResolved, got %v", err)
	}
}

func TestConflictRepository_Resolve_UnknownConflict(t *testing.T) {
	repo, mock, db := newTestConflictRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM conflicts").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Resolve(context.Background(), "ghost", models.ResolutionServer, nil, false, "supervisor-1", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConflictRepository_ListPending_ScopeFilters(t *testing.T) {
	repo, mock, db := newTestConflictRepo(t)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM conflicts").
		WithArgs(models.ConflictPending, "cutter-3", models.EntityQCRecord).
		WillReturnRows(sqlmock.NewRows(conflictColumns()))

	_, err := repo.ListPending(context.Background(), ConflictScope{
		ActorID:    "cutter-3",
		EntityType: models.EntityQCRecord,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err = mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
