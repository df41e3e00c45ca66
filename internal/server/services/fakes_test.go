package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/dmitrijs2005/contactbook/internal/dbx"
	"github.com/dmitrijs2005/contactbook/internal/logging"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
	"github.com/dmitrijs2005/contactbook/internal/server/repositories/contacts"
	"github.com/dmitrijs2005/contactbook/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/contactbook/internal/server/repositories/users"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (l nopLogger) With(...any) logging.Logger          { return l }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// fakeUsersRepo keeps users in memory and enforces the same uniqueness rules
// as the database.
type fakeUsersRepo struct {
	mu     sync.Mutex
	byID   map[int64]*models.User
	nextID int64
	err    error
	// interleave, when set, runs once right after the next lookup returns,
	// standing in for a concurrent request.
	interleave func()
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[int64]*models.User{}}
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, x := range f.byID {
		if x.Email == u.Email {
			return nil, users.ErrEmailTaken
		}
		if x.Username == u.Username {
			return nil, users.ErrUsernameTaken
		}
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	f.byID[u.ID] = u.Clone()
	return u, nil
}

func (f *fakeUsersRepo) find(match func(*models.User) bool) (*models.User, error) {
	u, err := f.lookup(match)
	f.mu.Lock()
	hook := f.interleave
	f.interleave = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return u, err
}

func (f *fakeUsersRepo) lookup(match func(*models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) FindByID(_ context.Context, id int64) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.ID == id })
}

func (f *fakeUsersRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Email == email })
}

func (f *fakeUsersRepo) FindByUsername(_ context.Context, name string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Username == name })
}

func (f *fakeUsersRepo) FindByVerificationToken(_ context.Context, token string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.VerificationToken != "" && u.VerificationToken == token })
}

func (f *fakeUsersRepo) FindByResetToken(_ context.Context, token string, now time.Time) (*models.User, error) {
	return f.find(func(u *models.User) bool {
		return u.ResetPasswordToken != "" && u.ResetPasswordToken == token &&
			u.ResetPasswordExpires != nil && u.ResetPasswordExpires.After(now)
	})
}

func (f *fakeUsersRepo) Save(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	cur, ok := f.byID[u.ID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	for _, x := range f.byID {
		if x.ID != u.ID && x.Username == u.Username {
			return nil, users.ErrUsernameTaken
		}
	}
	c := u.Clone()
	c.IsVerified = cur.IsVerified || u.IsVerified
	c.UpdatedAt = time.Now()
	f.byID[u.ID] = c
	return c.Clone(), nil
}

// update applies change to the first matching user under the lock, the way
// a single UPDATE ... RETURNING statement would.
func (f *fakeUsersRepo) update(match func(*models.User) bool, change func(*models.User) error) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if !match(u) {
			continue
		}
		c := u.Clone()
		if err := change(c); err != nil {
			return nil, err
		}
		c.UpdatedAt = time.Now()
		f.byID[c.ID] = c
		return c.Clone(), nil
	}
	return nil, common.ErrorNotFound
}

func withID(id int64) func(*models.User) bool {
	return func(u *models.User) bool { return u.ID == id }
}

func (f *fakeUsersRepo) MarkVerified(_ context.Context, token string) (*models.User, error) {
	return f.update(func(u *models.User) bool { return u.VerificationToken != "" && u.VerificationToken == token },
		func(u *models.User) error {
			u.IsVerified = true
			u.VerificationToken = ""
			return nil
		})
}

func (f *fakeUsersRepo) SetVerificationToken(_ context.Context, id int64, token string) (*models.User, error) {
	return f.update(func(u *models.User) bool { return u.ID == id && !u.IsVerified },
		func(u *models.User) error {
			u.VerificationToken = token
			return nil
		})
}

func (f *fakeUsersRepo) SetResetToken(_ context.Context, id int64, token string, expires time.Time) (*models.User, error) {
	return f.update(withID(id), func(u *models.User) error {
		u.SetResetToken(token, expires)
		return nil
	})
}

func (f *fakeUsersRepo) ConsumeResetToken(_ context.Context, token, hash string, now time.Time) (*models.User, error) {
	return f.update(func(u *models.User) bool {
		return u.ResetPasswordToken != "" && u.ResetPasswordToken == token &&
			u.ResetPasswordExpires != nil && u.ResetPasswordExpires.After(now)
	}, func(u *models.User) error {
		u.HashedPassword = hash
		u.ClearResetToken()
		return nil
	})
}

func (f *fakeUsersRepo) UpdateUsername(_ context.Context, id int64, username string) (*models.User, error) {
	for _, x := range f.snapshot() {
		if x.ID != id && x.Username == username {
			return nil, users.ErrUsernameTaken
		}
	}
	return f.update(withID(id), func(u *models.User) error {
		u.Username = username
		return nil
	})
}

func (f *fakeUsersRepo) UpdateAvatar(_ context.Context, id int64, url string) (*models.User, error) {
	return f.update(withID(id), func(u *models.User) error {
		u.AvatarURL = url
		return nil
	})
}

func (f *fakeUsersRepo) UpdateRole(_ context.Context, id int64, role models.Role) (*models.User, error) {
	return f.update(withID(id), func(u *models.User) error {
		u.Role = role
		return nil
	})
}

func (f *fakeUsersRepo) snapshot() []*models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.User, 0, len(f.byID))
	for _, u := range f.byID {
		out = append(out, u.Clone())
	}
	return out
}

func (f *fakeUsersRepo) get(id int64) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].Clone()
}

type fakeRefreshRepo struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken
	err    error
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]*models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(_ context.Context, userID int64, token string, validity time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: time.Now().Add(validity)}
	return nil
}

func (f *fakeRefreshRepo) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	rt, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *rt
	return &c, nil
}

func (f *fakeRefreshRepo) Delete(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, token)
	return nil
}

func (f *fakeRefreshRepo) DeleteByUser(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, rt := range f.tokens {
		if rt.UserID == userID {
			delete(f.tokens, k)
		}
	}
	return nil
}

type fakeContactsRepo struct {
	mu       sync.Mutex
	byID     map[int64]*models.Contact
	nextID   int64
	lastList contacts.ListFilter
	from, to time.Time
	err      error
}

func newFakeContactsRepo() *fakeContactsRepo {
	return &fakeContactsRepo{byID: map[int64]*models.Contact{}}
}

func (f *fakeContactsRepo) Create(_ context.Context, c *models.Contact) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, x := range f.byID {
		if x.Email == c.Email {
			return nil, contacts.ErrEmailTaken
		}
	}
	f.nextID++
	c.ID = f.nextID
	cp := *c
	f.byID[c.ID] = &cp
	return c, nil
}

func (f *fakeContactsRepo) Get(_ context.Context, id, ownerID int64) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok || c.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeContactsRepo) List(_ context.Context, ownerID int64, lf contacts.ListFilter) ([]*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.lastList = lf
	var out []*models.Contact
	for _, c := range f.byID {
		if c.OwnerID != ownerID {
			continue
		}
		q := strings.ToLower(lf.Search)
		if q != "" && !strings.Contains(strings.ToLower(c.FirstName+" "+c.LastName+" "+c.Email), q) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeContactsRepo) Update(_ context.Context, c *models.Contact) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.byID[c.ID]
	if !ok || old.OwnerID != c.OwnerID {
		return nil, common.ErrorNotFound
	}
	for _, x := range f.byID {
		if x.ID != c.ID && x.Email == c.Email {
			return nil, contacts.ErrEmailTaken
		}
	}
	cp := *c
	f.byID[c.ID] = &cp
	return c, nil
}

func (f *fakeContactsRepo) Delete(_ context.Context, id, ownerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok || c.OwnerID != ownerID {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

// BirthdaysBetween returns every contact of the owner; the service does the
// exact windowing.
func (f *fakeContactsRepo) BirthdaysBetween(_ context.Context, ownerID int64, from, to time.Time) ([]*models.Contact, error) {
	f.mu.Lock()
	f.from, f.to = from, to
	f.mu.Unlock()
	return f.List(context.Background(), ownerID, contacts.ListFilter{})
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	c *fakeContactsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{u: newFakeUsersRepo(), r: newFakeRefreshRepo(), c: newFakeContactsRepo()}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.r }
func (m *fakeRepoManager) Contacts(dbx.DBTX) contacts.Repository           { return m.c }

type fakeInvalidator struct {
	mu     sync.Mutex
	emails []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, email)
}

func (f *fakeInvalidator) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.emails...)
}

type sentMail struct {
	kind, to, token string
	validity        time.Duration
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendVerification(_ context.Context, to, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{kind: "verify", to: to, token: token})
	return f.err
}

func (f *fakeMailer) SendPasswordReset(_ context.Context, to, token string, validity time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{kind: "reset", to: to, token: token, validity: validity})
	return f.err
}

func (f *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no mail sent")
	}
	return f.sent[len(f.sent)-1]
}

type fakeAvatars struct {
	url string
	err error
}

func (f *fakeAvatars) Upload(context.Context, int64, string, []byte) (string, error) {
	return f.url, f.err
}
