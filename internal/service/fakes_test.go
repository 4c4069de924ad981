package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"safetywatch/internal/config"
	"safetywatch/internal/models"
	"safetywatch/internal/queue"
	"safetywatch/internal/realtime"
	"safetywatch/internal/repository"
	"safetywatch/internal/security"
)

func testConfig() *config.AppConfig {
	policy := config.PasswordPolicy{MinLength: 8, RequireUpper: true, RequireLower: true, RequireDigit: true}
	return &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTAccessSecret: "test-secret",
			JWTAccessTTL:    time.Hour,
			MaxSessions:     3,
		},
		Identity:   config.IdentityConfig{LoginDomain: "safetysystem.local"},
		Passwords:  config.PasswordsConfig{Server: policy, Client: policy},
		Validation: config.ValidationConfig{MaxAge: 100},
	}
}

// Cheap argon2 parameters keep the tests fast.
var testHasher = security.NewPasswordHasher(security.Argon2Params{
	Time:    1,
	Memory:  1024,
	Threads: 1,
	KeyLen:  32,
	SaltLen: 16,
})

type memPrincipals struct {
	mu        sync.Mutex
	byID      map[string]models.Principal
	deleteErr error
	deleted   []string
}

func newMemPrincipals() *memPrincipals {
	return &memPrincipals{byID: make(map[string]models.Principal)}
}

func (m *memPrincipals) Create(_ context.Context, p models.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Login == p.Login {
			return repository.ErrLoginTaken
		}
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.byID[p.ID] = p
	return nil
}

func (m *memPrincipals) FindByLogin(_ context.Context, login string) (models.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Login == login {
			return p, nil
		}
	}
	return models.Principal{}, repository.ErrPrincipalNotFound
}

func (m *memPrincipals) GetByID(_ context.Context, id string) (models.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return models.Principal{}, repository.ErrPrincipalNotFound
	}
	return p, nil
}

func (m *memPrincipals) UpdatePasswordHash(_ context.Context, id string, hash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return repository.ErrPrincipalNotFound
	}
	p.PasswordHash = hash
	m.byID[id] = p
	return nil
}

func (m *memPrincipals) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.byID[id]; !ok {
		return repository.ErrPrincipalNotFound
	}
	delete(m.byID, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memPrincipals) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type memSessions struct {
	mu   sync.Mutex
	byID map[string]models.Session
}

func newMemSessions() *memSessions {
	return &memSessions{byID: make(map[string]models.Session)}
}

func (m *memSessions) Create(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.CreatedAt = time.Now()
	s.LastSeenAt = s.CreatedAt
	m.byID[s.ID] = s
	return nil
}

func (m *memSessions) GetByID(_ context.Context, id string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return s, nil
}

func (m *memSessions) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memSessions) TrimToLatest(_ context.Context, principalID string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var own []models.Session
	for _, s := range m.byID {
		if s.PrincipalID == principalID {
			own = append(own, s)
		}
	}
	sort.Slice(own, func(i, j int) bool { return own[i].LastSeenAt.After(own[j].LastSeenAt) })
	for i := keep; i < len(own); i++ {
		delete(m.byID, own[i].ID)
	}
	return nil
}

func (m *memSessions) Touch(_ context.Context, id string, _ string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.LastSeenAt = time.Now()
	m.byID[id] = s
	return nil
}

type memRoles struct {
	mu     sync.Mutex
	grants map[string]models.Role
}

func newMemRoles() *memRoles {
	return &memRoles{grants: make(map[string]models.Role)}
}

func (m *memRoles) Upsert(_ context.Context, principalID string, role models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[principalID] = role
	return nil
}

func (m *memRoles) GetRole(_ context.Context, principalID string) (models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.grants[principalID]
	if !ok {
		return "", repository.ErrRoleNotFound
	}
	return role, nil
}

type memSupervisors struct {
	mu   sync.Mutex
	rows []models.Supervisor
}

func (m *memSupervisors) Upsert(_ context.Context, s models.Supervisor) (models.Supervisor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, row := range m.rows {
		if row.PrincipalID == s.PrincipalID {
			s.ID = row.ID
			m.rows[i] = s
			return s, nil
		}
	}
	s.CreatedAt = time.Now()
	m.rows = append(m.rows, s)
	return s, nil
}

func (m *memSupervisors) GetByPrincipal(_ context.Context, principalID string) (models.Supervisor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.PrincipalID == principalID {
			return row, nil
		}
	}
	return models.Supervisor{}, repository.ErrSupervisorNotFound
}

func (m *memSupervisors) List(_ context.Context) ([]models.Supervisor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Supervisor(nil), m.rows...), nil
}

type memWorkers struct {
	mu        sync.Mutex
	rows      []models.Worker
	roles     *memRoles
	createErr error
}

func (m *memWorkers) CreateWithRole(ctx context.Context, w models.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, row := range m.rows {
		if row.WorkerCode == w.WorkerCode {
			return repository.ErrWorkerCodeTaken
		}
		if w.DeviceID != nil && row.DeviceID != nil && *row.DeviceID == *w.DeviceID {
			return repository.ErrDeviceTaken
		}
	}
	if m.roles != nil {
		_ = m.roles.Upsert(ctx, w.PrincipalID, models.RoleWorker)
	}
	m.rows = append(m.rows, w)
	return nil
}

func (m *memWorkers) Upsert(_ context.Context, w models.Worker) (models.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, row := range m.rows {
		if row.PrincipalID == w.PrincipalID {
			w.ID = row.ID
			w.IsActive = row.IsActive
			m.rows[i] = w
			return w, nil
		}
	}
	m.rows = append(m.rows, w)
	return w, nil
}

func (m *memWorkers) find(match func(models.Worker) bool) (models.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if match(row) {
			return row, nil
		}
	}
	return models.Worker{}, repository.ErrWorkerNotFound
}

func (m *memWorkers) GetByID(_ context.Context, id string) (models.Worker, error) {
	return m.find(func(w models.Worker) bool { return w.ID == id })
}

func (m *memWorkers) GetByPrincipal(_ context.Context, principalID string) (models.Worker, error) {
	return m.find(func(w models.Worker) bool { return w.PrincipalID == principalID })
}

func (m *memWorkers) GetByDeviceID(_ context.Context, deviceID string) (models.Worker, error) {
	return m.find(func(w models.Worker) bool { return w.DeviceID != nil && *w.DeviceID == deviceID })
}

func (m *memWorkers) ListStatus(_ context.Context, supervisorID *string) ([]models.WorkerStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkerStatus
	for _, row := range m.rows {
		if supervisorID != nil && (row.SupervisorID == nil || *row.SupervisorID != *supervisorID) {
			continue
		}
		out = append(out, models.WorkerStatus{Worker: row, HealthStatus: models.HealthSafe})
	}
	return out, nil
}

func (m *memWorkers) SetActive(_ context.Context, id string, active bool) (models.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, row := range m.rows {
		if row.ID == id {
			m.rows[i].IsActive = active
			return m.rows[i], nil
		}
	}
	return models.Worker{}, repository.ErrWorkerNotFound
}

func (m *memWorkers) all() []models.Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Worker(nil), m.rows...)
}

type memReadings struct {
	mu        sync.Mutex
	rows      []models.SensorReading
	insertErr error
	batches   int
}

func (m *memReadings) Insert(_ context.Context, r models.SensorReading) (models.SensorReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return models.SensorReading{}, m.insertErr
	}
	if r.ID == "" {
		return models.SensorReading{}, repository.ErrReadingIDMissing
	}
	for _, existing := range m.rows {
		if existing.ID == r.ID {
			return models.SensorReading{}, fmt.Errorf("duplicate reading id %q", r.ID)
		}
	}
	r.RecordedAt = time.Now().UTC()
	m.rows = append(m.rows, r)
	return r, nil
}

func (m *memReadings) InsertBatch(_ context.Context, readings []models.SensorReading) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	m.rows = append(m.rows, readings...)
	return int64(len(readings)), nil
}

func (m *memReadings) CountByWorker(_ context.Context, workerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.WorkerID == workerID {
			n++
		}
	}
	return n, nil
}

func (m *memReadings) ListByWorker(_ context.Context, workerID string, limit int) ([]models.SensorReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SensorReading
	for _, r := range m.rows {
		if r.WorkerID == workerID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []queue.Task
}

func (q *recordingEnqueuer) Enqueue(_ context.Context, task queue.Task) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return "1-0", nil
}

type testEnv struct {
	cfg         *config.AppConfig
	principals  *memPrincipals
	sessions    *memSessions
	roles       *memRoles
	supervisors *memSupervisors
	workers     *memWorkers
	readings    *memReadings
	auth        *AuthService
}

func newTestEnv() *testEnv {
	cfg := testConfig()
	env := &testEnv{
		cfg:         cfg,
		principals:  newMemPrincipals(),
		sessions:    newMemSessions(),
		roles:       newMemRoles(),
		supervisors: &memSupervisors{},
		readings:    &memReadings{},
	}
	env.workers = &memWorkers{roles: env.roles}
	env.auth = NewAuthService(env.principals, env.sessions, env.roles, testHasher, cfg, zerolog.Nop())
	return env
}
