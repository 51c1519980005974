package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"signalexecutor/src/model"
)

func TestOrderRepositoryFindBySignalID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &OrderRepository{db: db}

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "signal_id", "contract_id", "status"}).
			AddRow(1, 42, "NIFTY26AUG24500CE", model.OrderStatusSubmitted)

		mock.ExpectQuery(`SELECT \* FROM "orders" WHERE signal_id = `).
			WillReturnRows(rows)

		order, err := repo.FindBySignalID(context.Background(), 42)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order == nil || order.ID != 1 || order.SignalID != 42 {
			t.Fatalf("unexpected order: %+v", order)
		}
	})

	t.Run("not found returns nil, nil", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "orders" WHERE signal_id = `).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		order, err := repo.FindBySignalID(context.Background(), 43)
		if err != nil {
			t.Fatalf("not found must not be an error, got: %v", err)
		}
		if order != nil {
			t.Fatalf("expected nil, got %+v", order)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderRepositoryFindLatestByContractID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &OrderRepository{db: db}

	rows := sqlmock.NewRows([]string{"id", "contract_id", "status", "current_stop"}).
		AddRow(5, "NIFTY26AUG24500CE", model.OrderStatusSubmitted, "150.1")

	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE contract_id = .+ AND status <> .+ ORDER BY id DESC`).
		WillReturnRows(rows)

	order, err := repo.FindLatestByContractID(context.Background(), "NIFTY26AUG24500CE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order == nil || order.ID != 5 {
		t.Fatalf("unexpected order: %+v", order)
	}
	if !order.CurrentStop.Equal(decimal.RequireFromString("150.1")) {
		t.Fatalf("unexpected current stop: %s", order.CurrentStop.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderRepositoryMarkSubmitted(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &OrderRepository{db: db}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET .+ WHERE id = `).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.MarkSubmitted(context.Background(), 1, "BRK-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderRepositoryUpdateProtection(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &OrderRepository{db: db}

	t.Run("submitted", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "orders" SET .+ WHERE id = `).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.UpdateProtection(context.Background(), 1, model.ProtectionStatusSubmitted, "STOP-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("active stamps protected_at", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "orders" SET .+ WHERE id = `).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.UpdateProtection(context.Background(), 1, model.ProtectionStatusActive, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderRepositoryUpdateCurrentStop(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &OrderRepository{db: db}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET .+current_stop.+ WHERE id = `).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.UpdateCurrentStop(context.Background(), 1, decimal.RequireFromString("156.75")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrderRepositoryCountByProtectionStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &OrderRepository{db: db}

	rows := sqlmock.NewRows([]string{"protection_status", "total"}).
		AddRow(model.ProtectionStatusActive, 3).
		AddRow(model.ProtectionStatusUnprotected, 1)

	mock.ExpectQuery(`SELECT protection_status, count\(\*\) as total FROM "orders"`).
		WillReturnRows(rows)

	counts, err := repo.CountByProtectionStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts[model.ProtectionStatusActive] != 3 || counts[model.ProtectionStatusUnprotected] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
