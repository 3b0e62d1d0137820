package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/passwords"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	sqlUserID  = "2a6c1f4e-0a5e-4a43-9f55-3c1f1d7b0c11"
	sqlTokenID = "9d9e2b1c-55a4-4d2e-8a43-1f0b6f1e7c22"
)

func newSQLSessions(t *testing.T) (*SessionService, sqlmock.Sqlmock, *auth.Codec) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	txdb := dbx.NewSQLDB(db, nil)
	rm := repomanager.NewPostgresRepositoryManager()
	hasher := passwords.NewBcrypt(bcrypt.MinCost)
	codec := auth.NewCodec([]byte(testSecret))
	log := logging.Nop{}

	users := NewUserService(txdb, rm, hasher, log)
	return NewSessionService(txdb, rm, users, codec, hasher, &recordingMailer{}, log, testLifetimes), mock, codec
}

func expectRefreshLookup(t *testing.T, mock sqlmock.Sqlmock, codec *auth.Codec) string {
	t.Helper()

	tok, exp, err := codec.Issue(sqlUserID, models.TokenTypeRefresh, time.Hour)
	require.NoError(t, err)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM tokens`)).
		WithArgs(tok).
		WillReturnRows(sqlmock.NewRows([]string{"id", "token", "type", "user_id", "expires_at", "blacklisted", "created_at"}).
			AddRow(sqlTokenID, tok, string(models.TokenTypeRefresh), sqlUserID, exp, false, now))

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs(sqlUserID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "role", "is_email_verified", "created_at", "updated_at"}).
			AddRow(sqlUserID, "Alice", "alice@example.com", "hash", string(models.RoleUser), false, now, now))

	return tok
}

func TestRefresh_SQL_CommitsRotation(t *testing.T) {
	sessions, mock, codec := newSQLSessions(t)
	tok := expectRefreshLookup(t, mock, codec)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM tokens`)).
		WithArgs(sqlTokenID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO tokens`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("new-id", time.Now()))
	mock.ExpectCommit()

	pair, err := sessions.Refresh(context.Background(), tok)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Refresh.Token)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefresh_SQL_LostRaceRollsBack(t *testing.T) {
	sessions, mock, codec := newSQLSessions(t)
	tok := expectRefreshLookup(t, mock, codec)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM tokens`)).
		WithArgs(sqlTokenID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := sessions.Refresh(context.Background(), tok)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.EqualError(t, err, "Please authenticate")
	require.NoError(t, mock.ExpectationsWereMet())
}
