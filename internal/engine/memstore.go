package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-aci/pkg/schema"
	"github.com/celerix-dev/celerix-aci/pkg/sdk"
	"github.com/celerix-dev/celerix-aci/pkg/services"
)

// MemStore is a thread-safe in-memory data platform.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [accountID][service/endpoint][recordID]fields
	data      map[string]accountData
	registry  *services.Registry
	persister *Persistence
	wg        sync.WaitGroup
	now       func() time.Time
}

// NewMemStore initializes a store with existing data (from LoadAll) and an
// optional persister.
func NewMemStore(initialData map[string]accountData, reg *services.Registry, p *Persistence) *MemStore {
	if initialData == nil {
		initialData = make(map[string]accountData)
	}
	return &MemStore{
		data:      initialData,
		registry:  reg,
		persister: p,
		now:       time.Now,
	}
}

// Open loads every account persisted under dir and returns a store that
// keeps persisting there.
func Open(dir string, reg *services.Registry, p *Persistence) (*MemStore, error) {
	if p == nil {
		return nil, fmt.Errorf("open %s: no persistence", dir)
	}
	all, err := p.LoadAll()
	if err != nil {
		return nil, err
	}
	return NewMemStore(all, reg, p), nil
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

// Close waits for pending writes.
func (m *MemStore) Close() error {
	m.Wait()
	return nil
}

// Accounts lists every account holding records.
func (m *MemStore) Accounts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]string, 0, len(m.data))
	for id := range m.data {
		list = append(list, id)
	}
	sort.Strings(list)
	return list
}

func (m *MemStore) endpoint(service, endpoint string) (services.Service, error) {
	svc, err := m.registry.Lookup(service)
	if err != nil {
		return services.Service{}, err
	}
	if !svc.HasEndpoint(endpoint) {
		return services.Service{}, fmt.Errorf("%w: %s/%s", ErrUnknownEndpoint, service, endpoint)
	}
	return svc, nil
}

// Get answers q. Supported parameters are byGuid, byOwnerId (or ownerId)
// and byQualifiedFieldName. Entries are sorted by id.
func (m *MemStore) Get(ctx context.Context, user *schema.User, q schema.Query) (*schema.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, sdk.ErrNotSignedIn
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if _, err := m.endpoint(q.Service, q.Endpoint); err != nil {
		return nil, err
	}

	owner := q.Param(schema.ByOwnerID)
	if owner == "" {
		owner = q.Param(schema.OwnerID)
	}
	owner = services.AbsoluteAccountID(owner)

	m.mu.RLock()
	defer m.mu.RUnlock()

	key := collectionKey(q.Service, q.Endpoint)
	page := &schema.Page{Entries: []map[string]any{}}
	for account, collections := range m.data {
		if owner != "" && account != owner {
			continue
		}
		for id, fields := range collections[key] {
			if matches(q, id, fields) {
				page.Entries = append(page.Entries, project(fields, q.Fields))
			}
		}
	}
	sort.Slice(page.Entries, func(i, j int) bool {
		a, _ := page.Entries[i][schema.FieldID].(string)
		b, _ := page.Entries[j][schema.FieldID].(string)
		return a < b
	})
	return page, nil
}

func matches(q schema.Query, id string, fields map[string]any) bool {
	if len(q.IDs) > 0 {
		found := false
		for _, want := range q.IDs {
			if want == id || want == services.Tail(id) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if guid := q.Param(schema.ByGUID); guid != "" {
		if v, _ := fields[schema.FieldGUID].(string); v != guid {
			return false
		}
	}
	if qfn := q.Param(schema.ByQualifiedFieldName); qfn != "" {
		ns, _ := fields[schema.FieldNamespace].(string)
		name, _ := fields[schema.FieldName].(string)
		if ns+"$"+name != qfn {
			return false
		}
	}
	return true
}

func project(fields map[string]any, names []string) map[string]any {
	if len(names) == 0 {
		out, _ := schema.CopyValue(fields).(map[string]any)
		return out
	}
	out := make(map[string]any, len(names))
	for _, n := range names {
		if v, ok := fields[n]; ok {
			out[n] = schema.CopyValue(v)
		}
	}
	return out
}

// Save creates rec when it has no id and replaces the stored record
// otherwise. The stored owner is the absolute form of rec's ownerId.
func (m *MemStore) Save(ctx context.Context, user *schema.User, rec *schema.Record) (*schema.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, sdk.ErrNotSignedIn
	}
	if rec.OwnerID() == "" {
		return nil, sdk.ErrMissingOwner
	}
	svc, err := m.endpoint(rec.Service, rec.Endpoint)
	if err != nil {
		return nil, err
	}

	stored := rec.Clone()
	owner := services.AbsoluteAccountID(rec.OwnerID())
	stored.SetOwnerID(owner)
	key := collectionKey(rec.Service, rec.Endpoint)
	stamp := m.now().UnixMilli()

	m.mu.Lock()
	id := stored.ID()
	var previous string
	if id == "" {
		if stored.GUID() == "" {
			stored.Fields[schema.FieldGUID] = uuid.NewString()
		} else if m.guidTaken(owner, key, stored.GUID()) {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrDuplicateGUID, stored.GUID())
		}
		id = svc.RecordURL(rec.Endpoint, m.nextID(key))
		stored.SetID(id)
		stored.Fields[FieldAdded] = stamp
		stored.Fields[FieldAddedByUserID] = user.Username
		stored.Fields[FieldVersion] = int64(1)
	} else {
		account, old, ok := m.find(key, id)
		if !ok {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", sdk.ErrRecordNotFound, id)
		}
		previous = account
		stored.Fields[FieldAdded] = old[FieldAdded]
		stored.Fields[FieldAddedByUserID] = old[FieldAddedByUserID]
		stored.Fields[FieldVersion] = version(old) + 1
	}
	stored.Fields[FieldUpdated] = stamp
	stored.Fields[FieldUpdatedByUserID] = user.Username

	if previous != "" && previous != owner {
		delete(m.data[previous][key], id)
	}
	if m.data[owner] == nil {
		m.data[owner] = make(accountData)
	}
	if m.data[owner][key] == nil {
		m.data[owner][key] = make(map[string]map[string]any)
	}
	m.data[owner][key][id] = stored.Fields

	snapshots := map[string]accountData{owner: m.copyAccountData(owner)}
	if previous != "" && previous != owner {
		snapshots[previous] = m.copyAccountData(previous)
	}
	m.mu.Unlock()

	m.persist(snapshots)
	return stored.Clone(), nil
}

func (m *MemStore) persist(snapshots map[string]accountData) {
	if m.persister == nil {
		return
	}
	for account, data := range snapshots {
		m.wg.Add(1)
		go func(id string, d accountData) {
			defer m.wg.Done()
			if err := m.persister.SaveAccount(id, d); err != nil {
				m.persister.Logger.Error().Err(err).Str("account", id).Msg("persist account")
			}
		}(account, data)
	}
}

// find locates a record by id in any account.
// It MUST be called while holding m.mu.
func (m *MemStore) find(key, id string) (string, map[string]any, bool) {
	for account, collections := range m.data {
		if fields, ok := collections[key][id]; ok {
			return account, fields, true
		}
	}
	return "", nil, false
}

// guidTaken MUST be called while holding m.mu.
func (m *MemStore) guidTaken(owner, key, guid string) bool {
	for _, fields := range m.data[owner][key] {
		if v, _ := fields[schema.FieldGUID].(string); v == guid {
			return true
		}
	}
	return false
}

// nextID returns one more than the highest numeric id of the collection
// across all accounts.
// It MUST be called while holding m.mu.
func (m *MemStore) nextID(key string) int64 {
	var highest int64
	for _, collections := range m.data {
		for id := range collections[key] {
			if n, err := strconv.ParseInt(services.Tail(id), 10, 64); err == nil && n > highest {
				highest = n
			}
		}
	}
	return highest + 1
}

func version(fields map[string]any) int64 {
	switch v := fields[FieldVersion].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// copyAccountData creates a deep copy of an account's records.
// It MUST be called while holding m.mu.Lock or m.mu.RLock.
func (m *MemStore) copyAccountData(account string) accountData {
	original, ok := m.data[account]
	if !ok {
		return nil
	}
	out := make(accountData, len(original))
	for key, records := range original {
		recs := make(map[string]map[string]any, len(records))
		for id, fields := range records {
			recs[id], _ = schema.CopyValue(fields).(map[string]any)
		}
		out[key] = recs
	}
	return out
}

// Records returns copies of every record an account holds, sorted by id.
func (m *MemStore) Records(account string) []*schema.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*schema.Record
	for key, records := range m.data[services.AbsoluteAccountID(account)] {
		service, endpoint := splitCollectionKey(key)
		for _, fields := range records {
			f, _ := schema.CopyValue(fields).(map[string]any)
			out = append(out, schema.NewRecord(service, endpoint, f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
