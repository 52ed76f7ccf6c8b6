// ABOUTME: In-memory backend used by dashboard tests
// ABOUTME: Stores JSON objects per kind, merges partial updates, and can gate or fail calls per id

package dashboard

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/backend"
	"github.com/harperreed/pipedash/models"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	t     *testing.T
	mu    sync.Mutex
	rows  map[models.Kind]map[uuid.UUID]map[string]any
	order map[models.Kind][]uuid.UUID
	gates map[uuid.UUID]chan struct{}
	fail  map[uuid.UUID]error
}

func newMemBackend(t *testing.T) *memBackend {
	return &memBackend{
		t:     t,
		rows:  map[models.Kind]map[uuid.UUID]map[string]any{},
		order: map[models.Kind][]uuid.UUID{},
		gates: map[uuid.UUID]chan struct{}{},
		fail:  map[uuid.UUID]error{},
	}
}

func toObject(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func (m *memBackend) put(kind models.Kind, id uuid.UUID, obj map[string]any) {
	if m.rows[kind] == nil {
		m.rows[kind] = map[uuid.UUID]map[string]any{}
	}
	if _, ok := m.rows[kind][id]; !ok {
		m.order[kind] = append(m.order[kind], id)
	}
	m.rows[kind][id] = obj
}

func (m *memBackend) seed(recs ...models.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		m.put(rec.EntityKind(), rec.EntityID(), toObject(m.t, rec))
	}
}

// gate blocks updates and deletes for id until the returned func is called.
func (m *memBackend) gate(id uuid.UUID) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{})
	m.gates[id] = ch
	return func() {
		m.mu.Lock()
		delete(m.gates, id)
		m.mu.Unlock()
		close(ch)
	}
}

func (m *memBackend) failWith(id uuid.UUID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[id] = err
}

func (m *memBackend) has(kind models.Kind, id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[kind][id]
	return ok
}

func (m *memBackend) patch(kind models.Kind, id uuid.UUID, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range toObject(m.t, fields) {
		m.rows[kind][id][k] = v
	}
}

func (m *memBackend) wait(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	ch := m.gates[id]
	err := m.fail[id]
	m.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *memBackend) List(_ context.Context, kind models.Kind) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []json.RawMessage{}
	for _, id := range m.order[kind] {
		obj, ok := m.rows[kind][id]
		if !ok {
			continue
		}
		raw, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (m *memBackend) Get(_ context.Context, kind models.Kind, id uuid.UUID) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.rows[kind][id]
	if !ok {
		return nil, &backend.Error{Kind: backend.KindNotFound, StatusCode: 404}
	}
	return json.Marshal(obj)
}

func (m *memBackend) Create(_ context.Context, kind models.Kind, payload any) (json.RawMessage, error) {
	obj := toObject(m.t, payload)
	id := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	obj["id"] = id.String()
	obj["createdAt"] = now
	obj["updatedAt"] = now

	m.mu.Lock()
	m.put(kind, id, obj)
	m.mu.Unlock()
	return json.Marshal(obj)
}

func (m *memBackend) Update(ctx context.Context, kind models.Kind, id uuid.UUID, payload any) (json.RawMessage, error) {
	if err := m.wait(ctx, id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.rows[kind][id]
	if !ok {
		return nil, &backend.Error{Kind: backend.KindNotFound, StatusCode: 404}
	}
	for k, v := range toObject(m.t, payload) {
		switch k {
		case "addLeadIds", "removeLeadIds":
		default:
			obj[k] = v
		}
	}
	if kind == models.KindProject {
		var p models.Project
		raw, _ := json.Marshal(obj)
		_ = json.Unmarshal(raw, &p)
		var diff struct {
			Add    []uuid.UUID `json:"addLeadIds"`
			Remove []uuid.UUID `json:"removeLeadIds"`
		}
		raw, _ = json.Marshal(payload)
		_ = json.Unmarshal(raw, &diff)
		p.LeadIDs = models.ApplyMembership(p.LeadIDs, models.MembershipDiff{Added: diff.Add, Removed: diff.Remove})
		obj["leadIds"] = toObject(m.t, map[string]any{"v": p.LeadIDs})["v"]
	}
	obj["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return json.Marshal(obj)
}

func (m *memBackend) Delete(ctx context.Context, kind models.Kind, id uuid.UUID) error {
	if err := m.wait(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[kind][id]; !ok {
		return &backend.Error{Kind: backend.KindNotFound, StatusCode: 404}
	}
	delete(m.rows[kind], id)
	return nil
}

// chanSource feeds events from a channel, standing in for the websocket.
type chanSource struct {
	ch chan models.StreamEvent
}

func (c chanSource) Run(ctx context.Context, sink backend.Sink) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.ch:
			if err := sink(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
