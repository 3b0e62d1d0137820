package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/passwords"
	tokensrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/tokens"
	usersrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- in-memory credential store ---

type memStore struct {
	mu      sync.Mutex
	seq     int
	users   map[string]*models.User
	order   []string
	tokens  map[string]*models.Token
	failing map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]*models.User{},
		tokens:  map[string]*models.Token{},
		failing: map[string]error{},
	}
}

// failOn makes the named repository operation (e.g. "users.GetByEmail")
// return err until cleared with a nil err.
func (s *memStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failing, op)
		return
	}
	s.failing[op] = err
}

func (s *memStore) tokensOf(userID string, tokenType models.TokenType) []models.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Token
	for _, t := range s.tokens {
		if t.UserID == userID && t.Type == tokenType {
			out = append(out, *t)
		}
	}
	return out
}

func (s *memStore) tokenByString(token string) (models.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.Token == token {
			return *t, true
		}
	}
	return models.Token{}, false
}

func (s *memStore) putToken(t models.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t.ID = fmt.Sprintf("t-%d", s.seq)
	s.tokens[t.ID] = &t
}

func (s *memStore) userByID(id string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, false
	}
	return *u, true
}

type memUsers struct{ *memStore }

var _ usersrepo.Repository = memUsers{}

func (r memUsers) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failing["users.Create"]; err != nil {
		return nil, err
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return nil, common.ErrorEmailTaken
		}
	}
	r.seq++
	now := time.Now()
	user.ID = fmt.Sprintf("u-%d", r.seq)
	user.CreatedAt, user.UpdatedAt = now, now
	c := *user
	r.users[user.ID] = &c
	r.order = append(r.order, user.ID)
	return user, nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failing["users.GetByID"]; err != nil {
		return nil, err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failing["users.GetByEmail"]; err != nil {
		return nil, err
	}
	for _, u := range r.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) EmailTaken(_ context.Context, email string, excludeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r memUsers) Update(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.ID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	for _, u := range r.users {
		if u.ID != user.ID && u.Email == user.Email {
			return nil, common.ErrorEmailTaken
		}
	}
	stored.Name, stored.Email, stored.Role, stored.IsEmailVerified = user.Name, user.Email, user.Role, user.IsEmailVerified
	stored.UpdatedAt = time.Now()
	c := *stored
	return &c, nil
}

func (r memUsers) SetPassword(_ context.Context, id string, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failing["users.SetPassword"]; err != nil {
		return err
	}
	u, ok := r.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r memUsers) MarkEmailVerified(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.IsEmailVerified = true
	return nil
}

func (r memUsers) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.users, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for tid, t := range r.tokens {
		if t.UserID == id {
			delete(r.tokens, tid)
		}
	}
	return nil
}

func (r memUsers) List(_ context.Context, limit, offset int) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for i := len(r.order) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		c := *r.users[r.order[i]]
		out = append(out, &c)
	}
	return out, nil
}

func (r memUsers) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}

type memTokens struct{ *memStore }

var _ tokensrepo.Repository = memTokens{}

func (r memTokens) Create(_ context.Context, token *models.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failing["tokens.Create"]; err != nil {
		return err
	}
	if _, ok := r.users[token.UserID]; !ok {
		return errors.New("foreign key violation")
	}
	for _, t := range r.tokens {
		if t.Token == token.Token {
			return errors.New("unique violation on token")
		}
	}
	r.seq++
	token.ID = fmt.Sprintf("t-%d", r.seq)
	token.CreatedAt = time.Now()
	c := *token
	r.tokens[token.ID] = &c
	return nil
}

func (r memTokens) Find(_ context.Context, token string) (*models.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.Token == token {
			c := *t
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memTokens) Consume(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || t.Blacklisted {
		return common.ErrorNotFound
	}
	delete(r.tokens, id)
	return nil
}

func (r memTokens) Blacklist(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || t.Blacklisted {
		return common.ErrorNotFound
	}
	t.Blacklisted = true
	return nil
}

func (r memTokens) BlacklistByUser(_ context.Context, userID string, tokenType models.TokenType) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tokens {
		if t.UserID == userID && t.Type == tokenType && !t.Blacklisted {
			t.Blacklisted = true
			n++
		}
	}
	return n, nil
}

func (r memTokens) DeleteByUser(_ context.Context, userID string, tokenType models.TokenType) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failing["tokens.DeleteByUser"]; err != nil {
		return 0, err
	}
	var n int64
	for id, t := range r.tokens {
		if t.UserID == userID && t.Type == tokenType {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r memTokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.Expires.Before(before) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

// --- transactions and repository manager ---

// fakeTxDB runs "transactions" directly against the in-memory store.
// There is no rollback; tests that need one use sqlmock.
type fakeTxDB struct {
	txCount atomic.Int32
}

var _ dbx.TxDB = (*fakeTxDB)(nil)

var errNoSQL = errors.New("fakeTxDB: direct SQL is not supported")

func (f *fakeTxDB) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errNoSQL
}

func (f *fakeTxDB) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (f *fakeTxDB) QueryRowContext(context.Context, string, ...any) *sql.Row { return nil }

func (f *fakeTxDB) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	f.txCount.Add(1)
	return fn(ctx, f)
}

type fakeRepoManager struct {
	store *memStore
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return memUsers{m.store} }
func (m *fakeRepoManager) Tokens(dbx.DBTX) tokensrepo.Repository        { return memTokens{m.store} }

// --- mailer and logger ---

type sentMail struct {
	to, token string
}

type recordingMailer struct {
	mu            sync.Mutex
	resets        []sentMail
	verifications []sentMail
	err           error
}

func (m *recordingMailer) SendResetPasswordEmail(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.resets = append(m.resets, sentMail{to, token})
	return nil
}

func (m *recordingMailer) SendVerificationEmail(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.verifications = append(m.verifications, sentMail{to, token})
	return nil
}

func (m *recordingMailer) lastReset(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.resets, "no reset email sent")
	return m.resets[len(m.resets)-1]
}

func (m *recordingMailer) lastVerification(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.verifications, "no verification email sent")
	return m.verifications[len(m.verifications)-1]
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

var _ logging.Logger = (*captureLogger)(nil)

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level, msg, args})
}

func (l *captureLogger) Debug(_ context.Context, msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(_ context.Context, msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(_ context.Context, msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(_ context.Context, msg string, args ...any) { l.add("error", msg, args) }
func (l *captureLogger) With(...any) logging.Logger                       { return l }

func (l *captureLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

// --- harness ---

const testSecret = "test-secret"

var testLifetimes = TokenLifetimes{
	Access:        30 * time.Minute,
	Refresh:       30 * 24 * time.Hour,
	ResetPassword: 10 * time.Minute,
	VerifyEmail:   10 * time.Minute,
}

type harness struct {
	store    *memStore
	db       *fakeTxDB
	mailer   *recordingMailer
	log      *captureLogger
	codec    *auth.Codec
	users    *UserService
	sessions *SessionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:  newMemStore(),
		db:     &fakeTxDB{},
		mailer: &recordingMailer{},
		log:    &captureLogger{},
		codec:  auth.NewCodec([]byte(testSecret)),
	}
	rm := &fakeRepoManager{store: h.store}
	hasher := passwords.NewBcrypt(bcrypt.MinCost)

	h.users = NewUserService(h.db, rm, hasher, h.log)
	h.sessions = NewSessionService(h.db, rm, h.users, h.codec, hasher, h.mailer, h.log, testLifetimes)
	return h
}

func (h *harness) createUser(t *testing.T, email, password string) *models.User {
	t.Helper()
	u, err := h.users.Create(context.Background(), CreateUserInput{Name: "Test", Email: email, Password: password})
	require.NoError(t, err)
	return u
}
