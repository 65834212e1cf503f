package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/workpass-app/workpass/internal/common"
	"github.com/workpass-app/workpass/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func userColumns() []string {
	return []string{"id", "username", "name", "avatar", "created_at", "updated_at"}
}

func TestFind_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+id,\s*username,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s*$`
	now := time.Now()
	rows := sqlmock.NewRows(userColumns()).
		AddRow(int64(7), "alice", "Alice", "https://cdn/a.png", now, now)

	mock.ExpectQuery(q).WithArgs(int64(7)).WillReturnRows(rows)

	got, err := repo.Find(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 7 || got.Username != "alice" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFind_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+users`).WithArgs(int64(99)).WillReturnError(sql.ErrNoRows)

	_, err := repo.Find(context.Background(), 99)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestFindByOpenID_JoinsIdentities(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)JOIN\s+user_identities\s+i\s+ON\s+i\.user_id\s*=\s*u\.id.*WHERE\s+i\.provider\s*=\s*\$1\s+AND\s+i\.open_id\s*=\s*\$2`
	now := time.Now()
	rows := sqlmock.NewRows(userColumns()).
		AddRow(int64(3), "bob", "Bob", "", now, now)

	mock.ExpectQuery(q).WithArgs("dingtalk", "manager7140").WillReturnRows(rows)

	got, err := repo.FindByOpenID(context.Background(), "dingtalk", "manager7140")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 3 {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestFindByOpenID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`JOIN\s+user_identities`).
		WithArgs("wechat", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByOpenID(context.Background(), "wechat", "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestCreate_AssignsIDAndTimestamps(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+users\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s+RETURNING\s+id\s*$`
	mock.ExpectQuery(q).
		WithArgs("carol", "Carol", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	got, err := repo.Create(context.Background(), &models.User{Username: "carol", Name: "Carol"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 11 {
		t.Fatalf("expected assigned id 11, got %d", got.ID)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be set: %+v", got)
	}
}

func TestLink_InsertsIdentity(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+user_identities\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*$`
	mock.ExpectExec(q).
		WithArgs(int64(11), "wechat", "oGZUI0e...", "{}").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Link(context.Background(), 11, "wechat", "oGZUI0e...", "{}"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateWithIdentity_CommitsBoth(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT\s+INTO\s+users\b`).
		WithArgs("zhangsan", "Zhang San", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)))
	mock.ExpectExec(`INSERT\s+INTO\s+user_identities\b`).
		WithArgs(int64(21), "dingtalk", "zhangsan", "{}").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.CreateWithIdentity(context.Background(),
		&models.User{Username: "zhangsan", Name: "Zhang San"}, "dingtalk", "zhangsan", "{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 21 {
		t.Fatalf("expected assigned id 21, got %d", got.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateWithIdentity_RollsBackOnLinkFailure(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT\s+INTO\s+users\b`).
		WithArgs("zhangsan", "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)))
	mock.ExpectExec(`INSERT\s+INTO\s+user_identities\b`).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	_, err := repo.CreateWithIdentity(context.Background(),
		&models.User{Username: "zhangsan"}, "dingtalk", "zhangsan", "{}")
	if err == nil {
		t.Fatal("expected an error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
