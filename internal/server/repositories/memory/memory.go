// Package memory is an in-process RepositoryManager with the same observable
// semantics as the PostgreSQL repositories. Services use it in tests; the
// DBTX handed to each factory is ignored, so rollbacks do not undo writes.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/dbx"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/documents"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/ingestion"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/permissions"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/qahistory"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/users"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/versions"
	"github.com/google/uuid"
)

// Manager holds all tables. Fail maps an operation name such as
// "versions.Create" to an error returned instead of performing it.
type Manager struct {
	mu sync.Mutex

	UsersByID   map[string]*models.User
	Tokens      map[string]*models.RefreshToken
	Docs        map[string]*models.Document
	VersionRows map[string][]*models.DocumentVersion
	PermRows    map[string]*models.DocumentPermission
	Jobs        map[string]*models.IngestionJob
	History     map[string]*models.QAHistory
	Fail        map[string]error
	Now         func() time.Time
	clock       time.Time
}

var _ repomanager.RepositoryManager = (*Manager)(nil)

func NewManager() *Manager {
	m := &Manager{
		UsersByID:   map[string]*models.User{},
		Tokens:      map[string]*models.RefreshToken{},
		Docs:        map[string]*models.Document{},
		VersionRows: map[string][]*models.DocumentVersion{},
		PermRows:    map[string]*models.DocumentPermission{},
		Jobs:        map[string]*models.IngestionJob{},
		History:     map[string]*models.QAHistory{},
		Fail:        map[string]error{},
	}
	m.clock = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Now = m.tick
	return m
}

// tick returns strictly increasing timestamps so orderings are stable.
func (m *Manager) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

// SeedUser stores an active user with the given role and returns it.
func (m *Manager) SeedUser(email string, role models.Role) *models.User {
	u := &models.User{Email: email, Name: email, Role: role, IsActive: true}
	_, _ = userRepo{m}.Create(context.Background(), u)
	return u
}

// SeedDocument stores a live document owned by ownerID.
func (m *Manager) SeedDocument(ownerID, title string) *models.Document {
	d := &models.Document{
		Title:   title,
		OwnerID: ownerID,
		FileRef: models.FileRef{StorageKey: "seed/" + title, FileName: title + ".txt", FileType: "text/plain", FileSize: 1},
	}
	_, _ = docRepo{m}.Create(context.Background(), d)
	return d
}

// Grant stores a permission row directly.
func (m *Manager) Grant(documentID, userID string, level models.PermissionLevel) *models.DocumentPermission {
	p, _ := permRepo{m}.Upsert(context.Background(), &models.DocumentPermission{
		DocumentID: documentID, UserID: userID, Permission: level,
	})
	return p
}

func (m *Manager) fail(op string) error {
	if err, ok := m.Fail[op]; ok {
		return err
	}
	return nil
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return m.fail("migrations") }

func (m *Manager) Users(dbx.DBTX) users.Repository                 { return userRepo{m} }
func (m *Manager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return tokenRepo{m} }
func (m *Manager) Documents(dbx.DBTX) documents.Repository         { return docRepo{m} }
func (m *Manager) Versions(dbx.DBTX) versions.Repository           { return versionRepo{m} }
func (m *Manager) Permissions(dbx.DBTX) permissions.Repository     { return permRepo{m} }
func (m *Manager) Ingestion(dbx.DBTX) ingestion.Repository         { return jobRepo{m} }
func (m *Manager) QAHistory(dbx.DBTX) qahistory.Repository         { return historyRepo{m} }

func paginate[T any](items []T, p models.Page) []T {
	n := p.Normalize()
	start := n.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + n.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// users

type userRepo struct{ m *Manager }

func (r userRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("users.Create"); err != nil {
		return nil, err
	}
	for _, existing := range r.m.UsersByID {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = r.m.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	r.m.UsersByID[u.ID] = &cp
	return u, nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.UsersByID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.UsersByID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r userRepo) List(_ context.Context, f models.UserFilter) ([]models.User, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var all []models.User
	for _, u := range r.m.UsersByID {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Active != nil && u.IsActive != *f.Active {
			continue
		}
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, f.Page), len(all), nil
}

func (r userRepo) Update(_ context.Context, u *models.User) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.UsersByID[u.ID]; !ok {
		return nil, common.ErrorNotFound
	}
	for id, existing := range r.m.UsersByID {
		if id != u.ID && existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	u.UpdatedAt = r.m.Now()
	cp := *u
	r.m.UsersByID[u.ID] = &cp
	return u, nil
}

func (r userRepo) SetActive(_ context.Context, id string, active bool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.UsersByID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.IsActive = active
	u.UpdatedAt = r.m.Now()
	return nil
}

// refresh tokens

type tokenRepo struct{ m *Manager }

func (r tokenRepo) Create(_ context.Context, userID, token string, validity time.Duration) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("refreshtokens.Create"); err != nil {
		return err
	}
	r.m.Tokens[token] = &models.RefreshToken{
		ID: uuid.NewString(), UserID: userID, Token: token,
		ExpiresAt: time.Now().Add(validity), CreatedAt: time.Now(),
	}
	return nil
}

func (r tokenRepo) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.Tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *t
	return &cp, nil
}

func (r tokenRepo) Delete(_ context.Context, token string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.Tokens, token)
	return nil
}

func (r tokenRepo) DeleteByUser(_ context.Context, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for k, t := range r.m.Tokens {
		if t.UserID == userID {
			delete(r.m.Tokens, k)
		}
	}
	return nil
}

// documents

type docRepo struct{ m *Manager }

func copyDoc(d *models.Document) *models.Document {
	cp := *d
	cp.Tags = append([]string{}, d.Tags...)
	return &cp
}

func (r docRepo) Create(_ context.Context, d *models.Document) (*models.Document, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("documents.Create"); err != nil {
		return nil, err
	}
	if _, ok := r.m.UsersByID[d.OwnerID]; !ok && len(r.m.UsersByID) > 0 {
		return nil, common.ErrorNotFound
	}
	d.ID = uuid.NewString()
	d.CreatedAt = r.m.Now()
	d.UpdatedAt = d.CreatedAt
	if d.Tags == nil {
		d.Tags = []string{}
	}
	r.m.Docs[d.ID] = copyDoc(d)
	return d, nil
}

func (r docRepo) live(id string) (*models.Document, error) {
	d, ok := r.m.Docs[id]
	if !ok || d.IsDeleted {
		return nil, common.ErrorNotFound
	}
	return d, nil
}

func (r docRepo) GetByID(_ context.Context, id string) (*models.Document, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, err := r.live(id)
	if err != nil {
		return nil, err
	}
	return copyDoc(d), nil
}

func (r docRepo) GetForUpdate(ctx context.Context, id string) (*models.Document, error) {
	return r.GetByID(ctx, id)
}

// readable must be called with the lock held.
func (m *Manager) readable(d *models.Document, readerID string) bool {
	if readerID == "" || d.OwnerID == readerID {
		return true
	}
	for _, p := range m.PermRows {
		if p.DocumentID == d.ID && p.UserID == readerID {
			return true
		}
	}
	return false
}

func (r docRepo) filter(readerID string, keep func(*models.Document) bool) []models.Document {
	var out []models.Document
	for _, d := range r.m.Docs {
		if d.IsDeleted || !r.m.readable(d, readerID) || !keep(d) {
			continue
		}
		out = append(out, *copyDoc(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (r docRepo) List(_ context.Context, f models.DocumentFilter) ([]models.Document, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	search := strings.ToLower(f.Search)
	all := r.filter(f.ReaderID, func(d *models.Document) bool {
		if search != "" && !strings.Contains(strings.ToLower(d.Title), search) &&
			!strings.Contains(strings.ToLower(d.Description), search) {
			return false
		}
		if f.Tag != "" {
			for _, t := range d.Tags {
				if t == f.Tag {
					return true
				}
			}
			return false
		}
		return true
	})
	return paginate(all, f.Page), len(all), nil
}

func (r docRepo) ListReadable(_ context.Context, readerID string, ids []string) ([]models.Document, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("documents.ListReadable"); err != nil {
		return nil, err
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := r.filter(readerID, func(d *models.Document) bool { return ids == nil || want[d.ID] })
	if out == nil {
		out = []models.Document{}
	}
	return out, nil
}

func (r docRepo) UpdateMeta(_ context.Context, id string, upd models.DocumentUpdate) (*models.Document, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, err := r.live(id)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		d.Title = *upd.Title
	}
	if upd.Description != nil {
		d.Description = *upd.Description
	}
	if upd.Tags != nil {
		d.Tags = append([]string{}, upd.Tags...)
	}
	d.UpdatedAt = r.m.Now()
	return copyDoc(d), nil
}

func (r docRepo) UpdateFile(_ context.Context, id string, f models.FileRef) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("documents.UpdateFile"); err != nil {
		return err
	}
	d, err := r.live(id)
	if err != nil {
		return err
	}
	d.FileRef = f
	d.UpdatedAt = r.m.Now()
	return nil
}

func (r docRepo) SoftDelete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, err := r.live(id)
	if err != nil {
		return err
	}
	t := r.m.Now()
	d.IsDeleted = true
	d.DeletedAt = &t
	return nil
}

func (r docRepo) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("documents.Delete"); err != nil {
		return err
	}
	if _, ok := r.m.Docs[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.m.Docs, id)
	return nil
}

// versions

type versionRepo struct{ m *Manager }

func (r versionRepo) NextNumber(_ context.Context, documentID string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	highest := 0
	for _, v := range r.m.VersionRows[documentID] {
		if v.VersionNumber > highest {
			highest = v.VersionNumber
		}
	}
	return highest + 1, nil
}

func (r versionRepo) Create(_ context.Context, v *models.DocumentVersion) (*models.DocumentVersion, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("versions.Create"); err != nil {
		return nil, err
	}
	for _, existing := range r.m.VersionRows[v.DocumentID] {
		if existing.VersionNumber == v.VersionNumber {
			return nil, common.ErrorAlreadyExists
		}
	}
	v.ID = uuid.NewString()
	v.CreatedAt = r.m.Now()
	cp := *v
	r.m.VersionRows[v.DocumentID] = append(r.m.VersionRows[v.DocumentID], &cp)
	return v, nil
}

func (r versionRepo) sorted(documentID string) []models.DocumentVersion {
	out := []models.DocumentVersion{}
	for _, v := range r.m.VersionRows[documentID] {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out
}

func (r versionRepo) List(_ context.Context, documentID string) ([]models.DocumentVersion, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.sorted(documentID), nil
}

func (r versionRepo) Get(_ context.Context, documentID string, number int) (*models.DocumentVersion, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, v := range r.m.VersionRows[documentID] {
		if v.VersionNumber == number {
			cp := *v
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r versionRepo) Latest(_ context.Context, documentID string) (*models.DocumentVersion, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	all := r.sorted(documentID)
	if len(all) == 0 {
		return nil, common.ErrorNotFound
	}
	return &all[len(all)-1], nil
}

func (r versionRepo) DeleteByDocument(_ context.Context, documentID string) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	keys := []string{}
	for _, v := range r.sorted(documentID) {
		keys = append(keys, v.StorageKey)
	}
	delete(r.m.VersionRows, documentID)
	return keys, nil
}

// permissions

type permRepo struct{ m *Manager }

func (r permRepo) Get(_ context.Context, documentID, userID string) (*models.DocumentPermission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("permissions.Get"); err != nil {
		return nil, err
	}
	for _, p := range r.m.PermRows {
		if p.DocumentID == documentID && p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r permRepo) Upsert(_ context.Context, p *models.DocumentPermission) (*models.DocumentPermission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.UsersByID[p.UserID]; !ok && len(r.m.UsersByID) > 0 {
		return nil, common.ErrorNotFound
	}
	t := r.m.Now()
	for _, existing := range r.m.PermRows {
		if existing.DocumentID == p.DocumentID && existing.UserID == p.UserID {
			existing.Permission = p.Permission
			existing.GrantedBy = p.GrantedBy
			existing.UpdatedAt = t
			cp := *existing
			return &cp, nil
		}
	}
	row := *p
	row.ID = uuid.NewString()
	row.CreatedAt = t
	row.UpdatedAt = t
	r.m.PermRows[row.ID] = &row
	cp := row
	return &cp, nil
}

func (r permRepo) ListByDocument(_ context.Context, documentID string) ([]models.DocumentPermission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []models.DocumentPermission{}
	for _, p := range r.m.PermRows {
		if p.DocumentID == documentID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r permRepo) Delete(_ context.Context, documentID, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.PermRows[id]
	if !ok || p.DocumentID != documentID {
		return common.ErrorNotFound
	}
	delete(r.m.PermRows, id)
	return nil
}

func (r permRepo) DeleteByDocument(_ context.Context, documentID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, p := range r.m.PermRows {
		if p.DocumentID == documentID {
			delete(r.m.PermRows, id)
		}
	}
	return nil
}

// ingestion jobs

type jobRepo struct{ m *Manager }

func copyJob(j *models.IngestionJob) *models.IngestionJob {
	cp := *j
	return &cp
}

func (r jobRepo) Create(_ context.Context, j *models.IngestionJob) (*models.IngestionJob, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("ingestion.Create"); err != nil {
		return nil, err
	}
	if _, ok := r.m.Docs[j.DocumentID]; !ok {
		return nil, common.ErrorNotFound
	}
	j.ID = uuid.NewString()
	j.CreatedAt = r.m.Now()
	j.UpdatedAt = j.CreatedAt
	r.m.Jobs[j.ID] = copyJob(j)
	return j, nil
}

func (r jobRepo) GetByID(_ context.Context, id string) (*models.IngestionJob, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	j, ok := r.m.Jobs[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyJob(j), nil
}

func (r jobRepo) GetForUpdate(ctx context.Context, id string) (*models.IngestionJob, error) {
	return r.GetByID(ctx, id)
}

func (r jobRepo) List(_ context.Context, f models.JobFilter) ([]models.IngestionJob, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var all []models.IngestionJob
	for _, j := range r.m.Jobs {
		if f.DocumentID != "" && j.DocumentID != f.DocumentID {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.ReaderID != "" {
			d, ok := r.m.Docs[j.DocumentID]
			if !ok || d.IsDeleted || !r.m.readable(d, f.ReaderID) {
				continue
			}
		}
		all = append(all, *j)
	}
	sort.Slice(all, func(i, k int) bool { return all[i].CreatedAt.After(all[k].CreatedAt) })
	return paginate(all, f.Page), len(all), nil
}

func (r jobRepo) Update(_ context.Context, j *models.IngestionJob) (*models.IngestionJob, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.Jobs[j.ID]; !ok {
		return nil, common.ErrorNotFound
	}
	j.UpdatedAt = r.m.Now()
	r.m.Jobs[j.ID] = copyJob(j)
	return j, nil
}

func (r jobRepo) DeleteByDocument(_ context.Context, documentID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, j := range r.m.Jobs {
		if j.DocumentID == documentID {
			delete(r.m.Jobs, id)
		}
	}
	return nil
}

// Q&A history

type historyRepo struct{ m *Manager }

func (r historyRepo) Create(_ context.Context, h *models.QAHistory) (*models.QAHistory, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.fail("qahistory.Create"); err != nil {
		return nil, err
	}
	h.ID = uuid.NewString()
	h.CreatedAt = r.m.Now()
	if h.Sources == nil {
		h.Sources = []models.QASource{}
	}
	cp := *h
	r.m.History[h.ID] = &cp
	return h, nil
}

func (r historyRepo) List(_ context.Context, userID string, p models.Page) ([]models.QAHistory, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var all []models.QAHistory
	for _, h := range r.m.History {
		if h.UserID == userID {
			all = append(all, *h)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, p), len(all), nil
}

func (r historyRepo) Get(_ context.Context, userID, id string) (*models.QAHistory, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	h, ok := r.m.History[id]
	if !ok || h.UserID != userID {
		return nil, common.ErrorNotFound
	}
	cp := *h
	return &cp, nil
}

func (r historyRepo) Delete(_ context.Context, userID, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	h, ok := r.m.History[id]
	if !ok || h.UserID != userID {
		return common.ErrorNotFound
	}
	delete(r.m.History, id)
	return nil
}

func (r historyRepo) Clear(_ context.Context, userID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, h := range r.m.History {
		if h.UserID == userID {
			delete(r.m.History, id)
			n++
		}
	}
	return n, nil
}
