package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/limbovvv/phone-directly/internal/domain"
)

// MemoryStore: DB 未就绪时的联调与单元测试用
// - 事务串行执行：WithTx 持有全局锁，在状态副本上运行 fn，成功后整体替换（失败即丢弃副本）
// - 维护与表结构相同的唯一约束：phones(type, number)、contact_phones(contact_id, phone_id)、
//   departments(parent, name)、contacts(department_id, full_name)、users(login)
// - 行锁（FOR UPDATE / FOR SHARE）在串行事务下无需实现
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

type memoryState struct {
	seq         int64
	departments map[int64]domain.Department
	contacts    map[int64]domain.Contact
	phones      map[int64]domain.Phone
	links       map[int64]domain.ContactPhone
	settings    map[string]string
	audit       []domain.AuditLog
	users       map[int64]domain.User
}

// NewMemoryStore 创建内存 Store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			departments: map[int64]domain.Department{},
			contacts:    map[int64]domain.Contact{},
			phones:      map[int64]domain.Phone{},
			links:       map[int64]domain.ContactPhone{},
			settings:    map[string]string{},
			users:       map[int64]domain.User{},
		},
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		seq:         s.seq,
		departments: make(map[int64]domain.Department, len(s.departments)),
		contacts:    make(map[int64]domain.Contact, len(s.contacts)),
		phones:      make(map[int64]domain.Phone, len(s.phones)),
		links:       make(map[int64]domain.ContactPhone, len(s.links)),
		settings:    make(map[string]string, len(s.settings)),
		audit:       append([]domain.AuditLog(nil), s.audit...),
		users:       make(map[int64]domain.User, len(s.users)),
	}
	for k, v := range s.departments {
		c.departments[k] = v
	}
	for k, v := range s.contacts {
		c.contacts[k] = v
	}
	for k, v := range s.phones {
		c.phones[k] = v
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	for k, v := range s.settings {
		c.settings[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

func (s *memoryState) nextID() int64 {
	s.seq++
	return s.seq
}

// Repos 非事务 Repository：每次调用单独加锁
func (m *MemoryStore) Repos() Repos {
	return newMemoryRepos(&memoryRepo{run: func(fn func(*memoryState) error) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		return fn(m.state)
	}})
}

// WithTx 串行事务
func (m *MemoryStore) WithTx(ctx context.Context, fn func(r Repos) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	repo := &memoryRepo{run: func(f func(*memoryState) error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return f(work)
	}}
	if err := fn(newMemoryRepos(repo)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

// Snapshot 在状态副本上执行 fn，副本用后即弃，fn 内的写入不可见
func (m *MemoryStore) Snapshot(ctx context.Context, fn func(r Repos) error) error {
	m.mu.Lock()
	view := m.state.clone()
	m.mu.Unlock()

	repo := &memoryRepo{run: func(f func(*memoryState) error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return f(view)
	}}
	return fn(newMemoryRepos(repo))
}

func newMemoryRepos(r *memoryRepo) Repos {
	return Repos{
		Departments: r,
		Contacts:    r,
		Phones:      r,
		Links:       r,
		Settings:    r,
		Audit:       r,
		Users:       r,
	}
}

// memoryRepo 实现全部 Repository 接口
type memoryRepo struct {
	run func(fn func(*memoryState) error) error
}

var (
	_ DepartmentsRepository   = (*memoryRepo)(nil)
	_ ContactsRepository      = (*memoryRepo)(nil)
	_ PhonesRepository        = (*memoryRepo)(nil)
	_ ContactPhonesRepository = (*memoryRepo)(nil)
	_ SettingsRepository      = (*memoryRepo)(nil)
	_ AuditRepository         = (*memoryRepo)(nil)
)

func nullInt64Equal(a, b sql.NullInt64) bool {
	if !a.Valid || !b.Valid {
		return a.Valid == b.Valid
	}
	return a.Int64 == b.Int64
}

// ---- departments ----

func (r *memoryRepo) ListDepartments(_ context.Context, activeOnly bool) ([]*domain.Department, error) {
	items := []*domain.Department{}
	err := r.run(func(s *memoryState) error {
		for _, d := range s.departments {
			if activeOnly && !d.IsActive {
				continue
			}
			d := d
			items = append(items, &d)
		}
		return nil
	})
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ParentID.Valid != b.ParentID.Valid {
			return !a.ParentID.Valid
		}
		if a.ParentID.Int64 != b.ParentID.Int64 {
			return a.ParentID.Int64 < b.ParentID.Int64
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.ID < b.ID
	})
	return items, err
}

func (r *memoryRepo) GetDepartment(_ context.Context, id int64) (*domain.Department, error) {
	var out *domain.Department
	err := r.run(func(s *memoryState) error {
		d, ok := s.departments[id]
		if !ok {
			return domain.NotFoundf("department %d", id)
		}
		out = &d
		return nil
	})
	return out, err
}

func findDepartment(s *memoryState, parentID sql.NullInt64, name string) (domain.Department, bool) {
	var (
		found domain.Department
		ok    bool
	)
	for _, d := range s.departments {
		if d.Name == name && nullInt64Equal(d.ParentID, parentID) && (!ok || d.ID < found.ID) {
			found, ok = d, true
		}
	}
	return found, ok
}

func (r *memoryRepo) FindDepartmentByName(_ context.Context, parentID sql.NullInt64, name string) (*domain.Department, error) {
	var out *domain.Department
	err := r.run(func(s *memoryState) error {
		d, ok := findDepartment(s, parentID, name)
		if !ok {
			return domain.NotFoundf("department %q", name)
		}
		out = &d
		return nil
	})
	return out, err
}

func (r *memoryRepo) CreateDepartment(_ context.Context, d *domain.Department) (int64, error) {
	var id int64
	err := r.run(func(s *memoryState) error {
		if d.ParentID.Valid {
			if _, ok := s.departments[d.ParentID.Int64]; !ok {
				return domain.NotFoundf("parent department %d", d.ParentID.Int64)
			}
		}
		if _, dup := findDepartment(s, d.ParentID, d.Name); dup {
			return domain.Validationf("department %q already exists under this parent", d.Name)
		}
		now := time.Now().UTC()
		id = s.nextID()
		row := *d
		row.ID, row.CreatedAt, row.UpdatedAt = id, now, now
		s.departments[id] = row
		return nil
	})
	return id, err
}

func (r *memoryRepo) EnsureDepartment(_ context.Context, parentID sql.NullInt64, name string) (*domain.Department, bool, error) {
	var (
		out     domain.Department
		created bool
	)
	err := r.run(func(s *memoryState) error {
		if d, ok := findDepartment(s, parentID, name); ok {
			out = d
			return nil
		}
		now := time.Now().UTC()
		out = domain.Department{ID: s.nextID(), ParentID: parentID, Name: name, IsActive: true, CreatedAt: now, UpdatedAt: now}
		s.departments[out.ID] = out
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

func (r *memoryRepo) UpdateDepartment(_ context.Context, d *domain.Department) error {
	return r.run(func(s *memoryState) error {
		cur, ok := s.departments[d.ID]
		if !ok {
			return domain.NotFoundf("department %d", d.ID)
		}
		if other, dup := findDepartment(s, d.ParentID, d.Name); dup && other.ID != d.ID {
			return domain.Validationf("department %q already exists under this parent", d.Name)
		}
		cur.ParentID, cur.Name, cur.SortOrder = d.ParentID, d.Name, d.SortOrder
		cur.UpdatedAt = time.Now().UTC()
		s.departments[d.ID] = cur
		return nil
	})
}

// LockDepartmentTree 内存事务已串行
func (r *memoryRepo) LockDepartmentTree(context.Context) error {
	return nil
}

func (r *memoryRepo) SetDepartmentActive(_ context.Context, id int64, active bool) error {
	return r.run(func(s *memoryState) error {
		cur, ok := s.departments[id]
		if !ok {
			return domain.NotFoundf("department %d", id)
		}
		cur.IsActive = active
		cur.UpdatedAt = time.Now().UTC()
		s.departments[id] = cur
		return nil
	})
}

// ---- contacts ----

func (r *memoryRepo) GetContact(_ context.Context, id int64) (*domain.Contact, error) {
	var out *domain.Contact
	err := r.run(func(s *memoryState) error {
		c, ok := s.contacts[id]
		if !ok {
			return domain.NotFoundf("contact %d", id)
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *memoryRepo) LockContact(ctx context.Context, id int64) (*domain.Contact, error) {
	return r.GetContact(ctx, id)
}

func (r *memoryRepo) FindContact(_ context.Context, fullName string, departmentID int64) (*domain.Contact, error) {
	var out *domain.Contact
	err := r.run(func(s *memoryState) error {
		for _, c := range s.contacts {
			if c.FullName == fullName && c.DepartmentID == departmentID && (out == nil || c.ID < out.ID) {
				c := c
				out = &c
			}
		}
		if out == nil {
			return domain.NotFoundf("contact %q", fullName)
		}
		return nil
	})
	return out, err
}

func (r *memoryRepo) CreateContact(_ context.Context, c *domain.Contact) (int64, error) {
	var id int64
	err := r.run(func(s *memoryState) error {
		if _, ok := s.departments[c.DepartmentID]; !ok {
			return domain.NotFoundf("department %d", c.DepartmentID)
		}
		for _, existing := range s.contacts {
			if existing.DepartmentID == c.DepartmentID && existing.FullName == c.FullName {
				return domain.Validationf("contact %q already exists in department %d", c.FullName, c.DepartmentID)
			}
		}
		now := time.Now().UTC()
		id = s.nextID()
		row := *c
		row.ID, row.CreatedAt, row.UpdatedAt = id, now, now
		s.contacts[id] = row
		return nil
	})
	return id, err
}

func (r *memoryRepo) SetContactArchived(_ context.Context, id int64, archived bool) error {
	return r.run(func(s *memoryState) error {
		c, ok := s.contacts[id]
		if !ok {
			return domain.NotFoundf("contact %d", id)
		}
		c.IsArchived = archived
		c.UpdatedAt = time.Now().UTC()
		s.contacts[id] = c
		return nil
	})
}

func (r *memoryRepo) ListContacts(_ context.Context, filter ContactFilter) ([]*domain.Contact, error) {
	items := []*domain.Contact{}
	deptSet := make(map[int64]bool, len(filter.DepartmentIDs))
	for _, id := range filter.DepartmentIDs {
		deptSet[id] = true
	}
	q := strings.ToLower(strings.TrimSpace(filter.Query))

	err := r.run(func(s *memoryState) error {
		for _, c := range s.contacts {
			if !filter.IncludeArchived && c.IsArchived {
				continue
			}
			if len(deptSet) > 0 && !deptSet[c.DepartmentID] {
				continue
			}
			if q != "" && !memoryContactMatches(s, c, q) {
				continue
			}
			c := c
			items = append(items, &c)
		}
		return nil
	})
	sort.Slice(items, func(i, j int) bool {
		if items[i].FullName != items[j].FullName {
			return items[i].FullName < items[j].FullName
		}
		return items[i].ID < items[j].ID
	})
	return items, err
}

func memoryContactMatches(s *memoryState, c domain.Contact, q string) bool {
	if strings.Contains(strings.ToLower(c.FullName), q) {
		return true
	}
	if d, ok := s.departments[c.DepartmentID]; ok && strings.Contains(strings.ToLower(d.Name), q) {
		return true
	}
	for _, l := range s.links {
		if l.ContactID != c.ID {
			continue
		}
		if p, ok := s.phones[l.PhoneID]; ok && strings.Contains(strings.ToLower(p.Number), q) {
			return true
		}
	}
	return false
}

// ---- phones ----

func (r *memoryRepo) GetPhone(_ context.Context, id int64) (*domain.Phone, error) {
	var out *domain.Phone
	err := r.run(func(s *memoryState) error {
		p, ok := s.phones[id]
		if !ok {
			return domain.NotFoundf("phone %d", id)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *memoryRepo) LockPhone(ctx context.Context, id int64) (*domain.Phone, error) {
	return r.GetPhone(ctx, id)
}

func (r *memoryRepo) GetPhoneByKey(_ context.Context, phoneType domain.PhoneType, number string) (*domain.Phone, error) {
	var out *domain.Phone
	err := r.run(func(s *memoryState) error {
		for _, p := range s.phones {
			if p.Type == phoneType && p.Number == number {
				p := p
				out = &p
				return nil
			}
		}
		return domain.NotFoundf("phone %s/%s", phoneType, number)
	})
	return out, err
}

func (r *memoryRepo) InsertPhoneIfAbsent(_ context.Context, phoneType domain.PhoneType, number string) (int64, bool, error) {
	var (
		id       int64
		inserted bool
	)
	err := r.run(func(s *memoryState) error {
		for _, p := range s.phones {
			if p.Type == phoneType && p.Number == number {
				return nil
			}
		}
		now := time.Now().UTC()
		id = s.nextID()
		s.phones[id] = domain.Phone{ID: id, Type: phoneType, Number: number, IsActive: true, CreatedAt: now, UpdatedAt: now}
		inserted = true
		return nil
	})
	return id, inserted, err
}

// ---- contact phones ----

func memoryLinkedPhones(s *memoryState, keep func(domain.ContactPhone) bool) []domain.LinkedPhone {
	items := []domain.LinkedPhone{}
	for _, l := range s.links {
		if !keep(l) {
			continue
		}
		items = append(items, domain.LinkedPhone{Link: l, Phone: s.phones[l.PhoneID]})
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].Link, items[j].Link
		if a.ContactID != b.ContactID {
			return a.ContactID < b.ContactID
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.ID < b.ID
	})
	return items
}

func (r *memoryRepo) ListLinksByContact(_ context.Context, contactID int64) ([]domain.LinkedPhone, error) {
	var items []domain.LinkedPhone
	err := r.run(func(s *memoryState) error {
		items = memoryLinkedPhones(s, func(l domain.ContactPhone) bool { return l.ContactID == contactID })
		return nil
	})
	return items, err
}

func (r *memoryRepo) ListAllLinks(_ context.Context) (map[int64][]domain.LinkedPhone, error) {
	byContact := map[int64][]domain.LinkedPhone{}
	err := r.run(func(s *memoryState) error {
		for _, lp := range memoryLinkedPhones(s, func(domain.ContactPhone) bool { return true }) {
			byContact[lp.Link.ContactID] = append(byContact[lp.Link.ContactID], lp)
		}
		return nil
	})
	return byContact, err
}

func (r *memoryRepo) DeleteLinksByContact(_ context.Context, contactID int64) (int64, error) {
	var n int64
	err := r.run(func(s *memoryState) error {
		for id, l := range s.links {
			if l.ContactID == contactID {
				delete(s.links, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *memoryRepo) InsertLink(_ context.Context, link *domain.ContactPhone) (bool, error) {
	var inserted bool
	err := r.run(func(s *memoryState) error {
		if _, ok := s.contacts[link.ContactID]; !ok {
			return domain.NotFoundf("contact %d", link.ContactID)
		}
		if _, ok := s.phones[link.PhoneID]; !ok {
			return domain.NotFoundf("phone %d", link.PhoneID)
		}
		for _, l := range s.links {
			if l.ContactID == link.ContactID && l.PhoneID == link.PhoneID {
				return nil
			}
		}
		row := *link
		row.ID = s.nextID()
		row.CreatedAt = time.Now().UTC()
		s.links[row.ID] = row
		link.ID = row.ID
		inserted = true
		return nil
	})
	return inserted, err
}

func countActive(s *memoryState, phoneID int64) int {
	n := 0
	for _, l := range s.links {
		if l.PhoneID != phoneID {
			continue
		}
		if c, ok := s.contacts[l.ContactID]; ok && !c.IsArchived {
			n++
		}
	}
	return n
}

func (r *memoryRepo) CountActiveLinks(_ context.Context, phoneID int64) (int, error) {
	var n int
	err := r.run(func(s *memoryState) error {
		n = countActive(s, phoneID)
		return nil
	})
	return n, err
}

func (r *memoryRepo) MaxActiveUsage(_ context.Context) (string, int, error) {
	var (
		number string
		best   int
		bestID int64
	)
	err := r.run(func(s *memoryState) error {
		for id, p := range s.phones {
			n := countActive(s, id)
			if n > best || (n == best && n > 0 && id < bestID) {
				number, best, bestID = p.Number, n, id
			}
		}
		return nil
	})
	return number, best, err
}

// ---- settings ----

func (r *memoryRepo) GetSetting(_ context.Context, key string, _ LockMode) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := r.run(func(s *memoryState) error {
		value, ok = s.settings[key]
		return nil
	})
	return value, ok, err
}

func (r *memoryRepo) UpsertSetting(_ context.Context, key, value string) error {
	return r.run(func(s *memoryState) error {
		s.settings[key] = value
		return nil
	})
}

func (r *memoryRepo) EnsureSetting(_ context.Context, key, value string) error {
	return r.run(func(s *memoryState) error {
		if _, ok := s.settings[key]; !ok {
			s.settings[key] = value
		}
		return nil
	})
}

// ---- audit ----

func (r *memoryRepo) InsertAudit(_ context.Context, entry *domain.AuditLog) (int64, error) {
	err := r.run(func(s *memoryState) error {
		entry.ID = s.nextID()
		entry.CreatedAt = time.Now().UTC()
		s.audit = append(s.audit, *entry)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert audit log: %w", err)
	}
	return entry.ID, nil
}

func (r *memoryRepo) ListAudit(_ context.Context, limit int) ([]*domain.AuditLog, error) {
	items := []*domain.AuditLog{}
	err := r.run(func(s *memoryState) error {
		for i := len(s.audit) - 1; i >= 0 && len(items) < limit; i-- {
			e := s.audit[i]
			items = append(items, &e)
		}
		return nil
	})
	return items, err
}

// ---- users ----

func (r *memoryRepo) ListUsers(_ context.Context) ([]*domain.User, error) {
	var items []*domain.User
	err := r.run(func(s *memoryState) error {
		items = make([]*domain.User, 0, len(s.users))
		for _, u := range s.users {
			u := u
			items = append(items, &u)
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Login < items[j].Login })
		return nil
	})
	return items, err
}

func (r *memoryRepo) GetUser(_ context.Context, id int64) (*domain.User, error) {
	var out *domain.User
	err := r.run(func(s *memoryState) error {
		u, ok := s.users[id]
		if !ok {
			return domain.NotFoundf("user %d", id)
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *memoryRepo) CreateUser(_ context.Context, u *domain.User) (int64, error) {
	var id int64
	err := r.run(func(s *memoryState) error {
		for _, existing := range s.users {
			if existing.Login == u.Login {
				return domain.Validationf("login %q is already taken", u.Login)
			}
		}
		now := time.Now().UTC()
		id = s.nextID()
		row := *u
		row.ID, row.CreatedAt, row.UpdatedAt = id, now, now
		s.users[id] = row
		return nil
	})
	return id, err
}

func (r *memoryRepo) SetUserActive(_ context.Context, id int64, active bool) error {
	return r.run(func(s *memoryState) error {
		u, ok := s.users[id]
		if !ok {
			return domain.NotFoundf("user %d", id)
		}
		u.IsActive = active
		u.UpdatedAt = time.Now().UTC()
		s.users[id] = u
		return nil
	})
}
