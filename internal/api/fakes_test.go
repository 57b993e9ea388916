package api

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/premunia/leadline/internal/auth"
	"github.com/premunia/leadline/internal/lead"
	"github.com/premunia/leadline/internal/settings"
	"github.com/premunia/leadline/internal/user"
)

// ---------------------------------------------------------------------------
// In-memory repositories behind the real services
// ---------------------------------------------------------------------------

type memUsers struct {
	mu    sync.Mutex
	users map[string]*user.User
	roles map[string]string
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]*user.User{}, roles: map[string]string{}}
}

func (m *memUsers) Create(_ context.Context, in user.CreateUserInput) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == in.Email {
			return nil, user.ErrEmailTaken
		}
	}
	u := &user.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetActiveByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email && u.IsActive {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) GetRole(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.roles[userID]; ok {
		return r, nil
	}
	return auth.RoleUser, nil
}

func (m *memUsers) SetRole(_ context.Context, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return user.ErrNotFound
	}
	m.roles[userID] = role
	return nil
}

func (m *memUsers) IDByEmail(_ context.Context, email string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.Email == email {
			return id, nil
		}
	}
	return "", user.ErrNotFound
}

func (m *memUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

type memLeads struct {
	mu    sync.Mutex
	leads map[string]*lead.Lead
	clock time.Time
}

func newMemLeads() *memLeads {
	return &memLeads{
		leads: map[string]*lead.Lead{},
		clock: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// tick advances the fake clock so created_at ordering is deterministic.
func (m *memLeads) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memLeads) Create(_ context.Context, in lead.CreateLeadInput) (*lead.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	l := &lead.Lead{
		ID:         uuid.NewString(),
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Email:      in.Email,
		Phone:      in.Phone,
		Profession: in.Profession,
		Message:    in.Message,
		Status:     lead.StatusNew,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.leads[l.ID] = l
	cp := *l
	return &cp, nil
}

func (m *memLeads) List(_ context.Context) ([]*lead.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*lead.Lead, 0, len(m.leads))
	for _, l := range m.leads {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memLeads) GetByID(_ context.Context, id string) (*lead.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, lead.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memLeads) Update(_ context.Context, id string, in lead.UpdateLeadInput) (*lead.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, lead.ErrNotFound
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&l.FirstName, in.FirstName)
	set(&l.LastName, in.LastName)
	set(&l.Email, in.Email)
	if in.Phone != nil {
		l.Phone = blankToNil(in.Phone)
	}
	if in.Profession != nil {
		l.Profession = blankToNil(in.Profession)
	}
	if in.Message != nil {
		l.Message = blankToNil(in.Message)
	}
	if in.Notes != nil {
		l.Notes = blankToNil(in.Notes)
	}
	if in.Status != nil {
		l.Status = *in.Status
	}
	l.UpdatedAt = m.tick()
	cp := *l
	return &cp, nil
}

// blankToNil mirrors the store, which writes an empty optional as NULL.
func blankToNil(p *string) *string {
	if *p == "" {
		return nil
	}
	v := *p
	return &v
}

func (m *memLeads) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leads[id]; !ok {
		return lead.ErrNotFound
	}
	delete(m.leads, id)
	return nil
}

type memSettings struct {
	mu   sync.Mutex
	rows map[string]*settings.Setting
}

func newMemSettings() *memSettings {
	return &memSettings{rows: map[string]*settings.Setting{}}
}

func (m *memSettings) GetAll(_ context.Context) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage, len(m.rows))
	for k, s := range m.rows {
		out[k] = s.Value
	}
	return out, nil
}

func (m *memSettings) Get(_ context.Context, key string) (*settings.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[key]
	if !ok {
		return nil, settings.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSettings) Upsert(_ context.Context, key string, value json.RawMessage, updatedBy *string) (*settings.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &settings.Setting{Key: key, Value: value, UpdatedBy: updatedBy, UpdatedAt: time.Now()}
	m.rows[key] = s
	cp := *s
	return &cp, nil
}

func (m *memSettings) UpsertMany(_ context.Context, values map[string]json.RawMessage, updatedBy *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.rows[k] = &settings.Setting{Key: k, Value: v, UpdatedBy: updatedBy, UpdatedAt: time.Now()}
	}
	return nil
}

func (m *memSettings) InsertDefault(_ context.Context, key string, value json.RawMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[key]; ok {
		return false, nil
	}
	m.rows[key] = &settings.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return true, nil
}

// ---------------------------------------------------------------------------
// Misc fakes
// ---------------------------------------------------------------------------

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

type countingNotifier struct {
	mu    sync.Mutex
	leads []lead.Lead
}

func (n *countingNotifier) Enqueue(l lead.Lead) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leads = append(n.leads, l)
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.leads)
}

// failingLeads returns an internal store error from every call.
type failingLeads struct{ LeadService }

func (failingLeads) List(context.Context) ([]*lead.Lead, error) {
	return nil, errors.New("pq: relation \"leads\" has secret detail")
}

// panickingLeads panics from List.
type panickingLeads struct{ LeadService }

func (panickingLeads) List(context.Context) ([]*lead.Lead, error) {
	panic("boom")
}
