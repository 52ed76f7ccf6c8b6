// ABOUTME: In-memory command backend for tests of packages built on the dashboard
// ABOUTME: Keeps JSON objects per kind, merges partial updates, and can fail every update

package backendtest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/pipedash/backend"
	"github.com/harperreed/pipedash/models"
)

// Memory implements command.Backend over plain maps.
type Memory struct {
	mu   sync.Mutex
	rows map[models.Kind]map[uuid.UUID]map[string]any
	fail error
}

func NewMemory() *Memory {
	return &Memory{rows: map[models.Kind]map[uuid.UUID]map[string]any{}}
}

func toObject(v any) map[string]any {
	raw, _ := json.Marshal(v)
	obj := map[string]any{}
	_ = json.Unmarshal(raw, &obj)
	return obj
}

func (m *Memory) table(kind models.Kind) map[uuid.UUID]map[string]any {
	t, ok := m.rows[kind]
	if !ok {
		t = map[uuid.UUID]map[string]any{}
		m.rows[kind] = t
	}
	return t
}

// Seed stores records as the server would return them.
func (m *Memory) Seed(recs ...models.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		m.table(rec.EntityKind())[rec.EntityID()] = toObject(rec)
	}
}

// FailUpdates makes every Update return err until called with nil.
func (m *Memory) FailUpdates(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Has reports whether the server still holds the record.
func (m *Memory) Has(kind models.Kind, id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[kind][id]
	return ok
}

func notFound() error {
	return &backend.Error{Kind: backend.KindNotFound, StatusCode: 404, Message: "not found"}
}

func (m *Memory) List(ctx context.Context, kind models.Kind) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]json.RawMessage, 0, len(m.rows[kind]))
	for _, obj := range m.rows[kind] {
		raw, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (m *Memory) Get(ctx context.Context, kind models.Kind, id uuid.UUID) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.rows[kind][id]
	if !ok {
		return nil, notFound()
	}
	return json.Marshal(obj)
}

func (m *Memory) Create(ctx context.Context, kind models.Kind, payload any) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj := toObject(payload)
	id := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	obj["id"] = id.String()
	obj["createdAt"] = now
	obj["updatedAt"] = now
	m.table(kind)[id] = obj
	return json.Marshal(obj)
}

func (m *Memory) Update(ctx context.Context, kind models.Kind, id uuid.UUID, payload any) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	obj, ok := m.rows[kind][id]
	if !ok {
		return nil, notFound()
	}
	for k, v := range toObject(payload) {
		switch k {
		case "addLeadIds", "removeLeadIds":
		default:
			obj[k] = v
		}
	}
	if kind == models.KindProject {
		applyMembership(obj, payload)
	}
	obj["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return json.Marshal(obj)
}

func (m *Memory) Delete(ctx context.Context, kind models.Kind, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[kind][id]; !ok {
		return notFound()
	}
	delete(m.rows[kind], id)
	return nil
}

// applyMembership applies an addLeadIds/removeLeadIds diff to a stored project.
func applyMembership(obj map[string]any, payload any) {
	var p models.Project
	raw, _ := json.Marshal(obj)
	_ = json.Unmarshal(raw, &p)

	var diff struct {
		Add    []uuid.UUID `json:"addLeadIds"`
		Remove []uuid.UUID `json:"removeLeadIds"`
	}
	raw, _ = json.Marshal(payload)
	_ = json.Unmarshal(raw, &diff)

	ids := models.ApplyMembership(p.LeadIDs, models.MembershipDiff{Added: diff.Add, Removed: diff.Remove})
	obj["leadIds"] = toObject(map[string]any{"v": ids})["v"]
}
