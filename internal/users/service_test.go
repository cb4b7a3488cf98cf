package users

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/userhub/internal/auth"
	"github.com/hongminglow/userhub/internal/events"
	"github.com/hongminglow/userhub/internal/logging"
	"github.com/hongminglow/userhub/internal/models"
	"github.com/hongminglow/userhub/internal/storage"
	"github.com/hongminglow/userhub/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type failingHasher struct{}

func (failingHasher) Hash(string) (string, error) { return "", errors.New("rng exhausted") }
func (failingHasher) Verify(string, string) bool  { return false }

// spyStore wraps memory.Store and counts calls that reach persistence.
type spyStore struct {
	*memory.Store
	calls int
	err   error
}

func (s *spyStore) Insert(ctx context.Context, rec models.NewUserRecord) (models.User, error) {
	s.calls++
	if s.err != nil {
		return models.User{}, s.err
	}
	return s.Store.Insert(ctx, rec)
}

func (s *spyStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) (models.User, error) {
	s.calls++
	if s.err != nil {
		return models.User{}, s.err
	}
	return s.Store.UpdatePasswordHash(ctx, id, hash)
}

func (s *spyStore) List(ctx context.Context) ([]models.User, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.List(ctx)
}

func newTestService(t *testing.T) (*Service, *recordingPublisher, auth.PasswordHasher) {
	t.Helper()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	pub := &recordingPublisher{}
	return NewService(memory.NewStore(), hasher, pub, logging.Nop()), pub, hasher
}

func ann() models.NewUser {
	return models.NewUser{Email: "a@x.com", Password: "secret123", Name: "Ann"}
}

func TestCreateUser_ThenFindByEmail(t *testing.T) {
	s, pub, _ := newTestService(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, ann())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "a@x.com", created.Email)
	assert.Equal(t, "Ann", created.Name)
	assert.False(t, created.CreatedAt.IsZero())

	found, err := s.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created, *found)

	assert.Equal(t, []string{events.UserCreated}, pub.types())
}

func TestCreateUser_TrimsInput(t *testing.T) {
	s, _, _ := newTestService(t)

	created, err := s.CreateUser(context.Background(), models.NewUser{Email: "  a@x.com ", Password: "secret123", Name: " Ann "})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", created.Email)
	assert.Equal(t, "Ann", created.Name)
}

func TestFindByEmail_AbsentIsNotAnError(t *testing.T) {
	s, _, _ := newTestService(t)

	found, err := s.FindByEmail(context.Background(), "ghost@x.com")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = s.FindByEmail(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestCreateUser_DuplicateEmailConflicts(t *testing.T) {
	s, pub, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, ann())
	require.NoError(t, err)

	dup := ann()
	dup.Name = "Another Ann"
	_, err = s.CreateUser(ctx, dup)
	require.ErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, storage.KindConflict, storage.KindOf(err))

	all, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Ann", all[0].Name)
	assert.Equal(t, []string{events.UserCreated}, pub.types(), "failed writes publish nothing")
}

func TestCreateUser_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   models.NewUser
	}{
		{"empty email", models.NewUser{Email: "", Password: "secret123", Name: "Ann"}},
		{"blank name", models.NewUser{Email: "a@x.com", Password: "secret123", Name: "   "}},
		{"malformed email", models.NewUser{Email: "not-an-email", Password: "secret123", Name: "Ann"}},
		{"display-name email", models.NewUser{Email: "Ann <a@x.com>", Password: "secret123", Name: "Ann"}},
		{"short password", models.NewUser{Email: "a@x.com", Password: "short", Name: "Ann"}},
		{"invalid utf8 password", models.NewUser{Email: "a@x.com", Password: "secret\xff\xfe123", Name: "Ann"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestService(t)
			_, err := s.CreateUser(context.Background(), tc.in)
			require.ErrorIs(t, err, storage.ErrValidation)

			all, err := s.ListUsers(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestCreateUser_HashingFailureNeverStoresEmptyHash(t *testing.T) {
	store := &spyStore{Store: memory.NewStore()}
	s := NewService(store, failingHasher{}, nil, nil)

	_, err := s.CreateUser(context.Background(), ann())
	require.ErrorIs(t, err, storage.ErrHashing)
	assert.Equal(t, 0, store.calls, "store must not be touched when hashing fails")

	_, err = store.FindByEmail(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateUser_HasherRejectsNulByte(t *testing.T) {
	s, _, _ := newTestService(t)
	in := ann()
	in.Password = "secret\x00123"

	_, err := s.CreateUser(context.Background(), in)
	require.ErrorIs(t, err, storage.ErrHashing)
}

func TestCreateUser_ResourceExhaustedPropagates(t *testing.T) {
	store := &spyStore{Store: memory.NewStore(), err: storage.NewError(storage.KindResourceExhausted, "insert user", context.DeadlineExceeded)}
	s := NewService(store, auth.NewBcryptHasher(bcrypt.MinCost), nil, nil)

	_, err := s.CreateUser(context.Background(), ann())
	require.ErrorIs(t, err, storage.ErrResourceExhausted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateUser_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	s := NewService(memory.NewStore(), auth.NewBcryptHasher(bcrypt.MinCost), pub, logging.Nop())

	created, err := s.CreateUser(context.Background(), ann())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Len(t, pub.types(), 1)
}

func TestUpdateUser_Scenario(t *testing.T) {
	s, pub, _ := newTestService(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, ann())
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, ann())
	require.ErrorIs(t, err, storage.ErrConflict)

	updated, err := s.UpdateUser(ctx, created.ID, "b@x.com", "Ann B")
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "b@x.com", updated.Email)
	assert.Equal(t, "Ann B", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	stored, err := s.store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.UpdatedAt.After(stored.CreatedAt))

	old, err := s.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, old)

	assert.Equal(t, []string{events.UserCreated, events.UserUpdated}, pub.types())
}

func TestUpdateUser_Errors(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := s.CreateUser(ctx, ann())
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, models.NewUser{Email: "b@x.com", Password: "secret123", Name: "Bob"})
	require.NoError(t, err)

	_, err = s.UpdateUser(ctx, uuid.New(), "c@x.com", "C")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.UpdateUser(ctx, uuid.Nil, "c@x.com", "C")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.UpdateUser(ctx, a.ID, "b@x.com", "Ann")
	assert.ErrorIs(t, err, storage.ErrConflict)

	_, err = s.UpdateUser(ctx, a.ID, "", "Ann")
	assert.ErrorIs(t, err, storage.ErrValidation)
}

func TestUpdatePassword_ChangesWhatVerifies(t *testing.T) {
	s, pub, hasher := newTestService(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, ann())
	require.NoError(t, err)

	before, err := s.store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, hasher.Verify("secret123", before.PasswordHash))

	resp, err := s.UpdatePassword(ctx, created.ID, "n3w-secret")
	require.NoError(t, err)
	assert.Equal(t, created.ID, resp.ID)

	after, err := s.store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, before.PasswordHash, after.PasswordHash)
	assert.False(t, hasher.Verify("secret123", after.PasswordHash))
	assert.True(t, hasher.Verify("n3w-secret", after.PasswordHash))
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	ok, err := s.Authenticate(ctx, "a@x.com", "n3w-secret")
	require.NoError(t, err)
	require.NotNil(t, ok)
	bad, err := s.Authenticate(ctx, "a@x.com", "secret123")
	require.NoError(t, err)
	assert.Nil(t, bad)

	assert.Equal(t, []string{events.UserCreated, events.UserPasswordChanged}, pub.types())
}

func TestUpdatePassword_Errors(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.UpdatePassword(ctx, uuid.New(), "n3w-secret")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.UpdatePassword(ctx, uuid.New(), "short")
	assert.ErrorIs(t, err, storage.ErrValidation)

	store := &spyStore{Store: memory.NewStore()}
	failing := NewService(store, failingHasher{}, nil, nil)
	_, err = failing.UpdatePassword(ctx, uuid.New(), "n3w-secret")
	assert.ErrorIs(t, err, storage.ErrHashing)
	assert.Equal(t, 0, store.calls)
}

func TestDeleteUser_Idempotent(t *testing.T) {
	s, pub, _ := newTestService(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, ann())
	require.NoError(t, err)

	n, err := s.DeleteUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	found, err := s.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Nil(t, found)

	assert.Equal(t, []string{events.UserCreated, events.UserDeleted}, pub.types())
}

func TestListUsers(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	empty, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = s.CreateUser(ctx, ann())
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, models.NewUser{Email: "b@x.com", Password: "secret123", Name: "Bob"})
	require.NoError(t, err)

	all, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	failing := NewService(&spyStore{Store: memory.NewStore(), err: errors.New("db down")}, failingHasher{}, nil, nil)
	_, err = failing.ListUsers(ctx)
	assert.Error(t, err)
}

func TestAuthenticate_UnknownEmail(t *testing.T) {
	s, _, _ := newTestService(t)

	got, err := s.Authenticate(context.Background(), "ghost@x.com", "secret123")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConcurrentCreates_OneWinner(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateUser(ctx, ann())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, storage.ErrConflict)
	}
	assert.Equal(t, 1, wins)
}
