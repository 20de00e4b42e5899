package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lherron/cattree/internal/domain"
)

// Memory is an in-process backend with the same rules as the SQLite store.
// It backs dry runs and tests. FailHook, when set, runs before every write
// (op is "create", "update", "delete", "retype", "rewrite" or a type op) and
// aborts it with the returned error.
type Memory struct {
	mu     sync.Mutex
	opts   Options
	nodes  map[string]domain.Node
	types  map[string]domain.CategoryType
	refs   map[domain.Dependent]map[string]string // record id -> node id
	events []domain.Event

	FailHook func(op, id string) error

	Nodes *MemoryNodes
	Refs  *MemoryRefs
	Types *MemoryTypes
}

// MemoryNodes implements NodeRepository over a Memory.
type MemoryNodes struct{ m *Memory }

// MemoryRefs implements ReferenceRepository over a Memory.
type MemoryRefs struct{ m *Memory }

// MemoryTypes implements TypeRepository over a Memory.
type MemoryTypes struct{ m *Memory }

var (
	_ NodeRepository      = (*MemoryNodes)(nil)
	_ ReferenceRepository = (*MemoryRefs)(nil)
	_ TypeRepository      = (*MemoryTypes)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory(opts Options) *Memory {
	if opts.Dependents == nil {
		opts.Dependents = domain.DefaultDependents()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	m := &Memory{
		opts:  opts,
		nodes: make(map[string]domain.Node),
		types: make(map[string]domain.CategoryType),
		refs:  make(map[domain.Dependent]map[string]string),
	}
	m.Nodes = &MemoryNodes{m: m}
	m.Refs = &MemoryRefs{m: m}
	m.Types = &MemoryTypes{m: m}
	return m
}

// Dependents returns the configured dependent collections.
func (m *Memory) Dependents() []domain.Dependent {
	return m.opts.Dependents
}

// Load replaces the store's nodes with a snapshot, as read from another
// backend. References and the event log are kept.
func (m *Memory) Load(nodes []domain.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = make(map[string]domain.Node, len(nodes))
	for _, n := range nodes {
		m.nodes[n.ID] = n
	}
}

// AddReference records that recordID in dep points at nodeID.
func (m *Memory) AddReference(dep domain.Dependent, recordID, nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs[dep] == nil {
		m.refs[dep] = make(map[string]string)
	}
	m.refs[dep][recordID] = nodeID
}

// Events returns a copy of the audit log, oldest first.
func (m *Memory) Events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...)
}

func (m *Memory) fail(op, id string) error {
	if m.FailHook == nil {
		return nil
	}
	return m.FailHook(op, id)
}

func (m *Memory) logEvent(actor, resourceType, resourceID, eventType string, etag int64, payload map[string]interface{}) {
	e := domain.Event{
		ID:           int64(len(m.events) + 1),
		Timestamp:    time.Now().UTC(),
		Actor:        domain.StringPtr(actor),
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		EventType:    eventType,
	}
	if etag > 0 {
		e.ETag = &etag
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			s := string(data)
			e.Payload = &s
		}
	}
	m.events = append(m.events, e)
}

// byType returns a type's nodes; callers hold mu.
func (m *Memory) byType(nodeType string, includeInactive bool) []domain.Node {
	var out []domain.Node
	for _, n := range m.nodes {
		if n.Type == nodeType && (includeInactive || n.Active) {
			out = append(out, n)
		}
	}
	sortNodes(out)
	return out
}

func (m *Memory) parentCheck(nodeType string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	parent, ok := m.nodes[*parentID]
	if !ok {
		return domain.NotFound("parent", *parentID)
	}
	if parent.Type == nodeType {
		return nil
	}
	return foreignParent(nodeType, *parentID, &parent)
}

func (m *Memory) write(rows []domain.Node) []domain.Node {
	now := time.Now().UTC().Truncate(time.Second)
	written := make([]domain.Node, len(rows))
	for i, n := range rows {
		n.ETag++
		n.UpdatedAt = now
		m.nodes[n.ID] = n
		written[i] = n
	}
	return written
}

func (mn *MemoryNodes) Create(ctx context.Context, actor string, params CreateParams) (*domain.Node, error) {
	m := mn.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.parentCheck(params.Type, params.ParentID); err != nil {
		return nil, err
	}
	node, err := prepareCreate(m.byType(params.Type, true), params)
	if err != nil {
		return nil, err
	}
	if _, exists := m.nodes[node.ID]; exists {
		return nil, domain.Errorf(domain.ErrAlreadyExists, node.ID, "node already exists")
	}
	if err := m.fail("create", node.ID); err != nil {
		return nil, err
	}

	node.CreatedAt = time.Now().UTC().Truncate(time.Second)
	node.UpdatedAt = node.CreatedAt
	m.nodes[node.ID] = node
	m.logEvent(actor, domain.ResourceNode, node.ID, "category_node.created", node.ETag, map[string]interface{}{
		"name": node.Name, "level": node.Level, "type": node.Type,
	})
	return &node, nil
}

func (mn *MemoryNodes) Get(ctx context.Context, id string) (*domain.Node, error) {
	mn.m.mu.Lock()
	defer mn.m.mu.Unlock()
	n, ok := mn.m.nodes[id]
	if !ok {
		return nil, domain.NotFound("node", id)
	}
	return &n, nil
}

func (mn *MemoryNodes) ListByType(ctx context.Context, nodeType string, includeInactive bool) ([]domain.Node, error) {
	mn.m.mu.Lock()
	defer mn.m.mu.Unlock()
	return mn.m.byType(nodeType, includeInactive), nil
}

func (mn *MemoryNodes) Update(ctx context.Context, actor, id string, params UpdateParams) (*domain.Node, error) {
	m := mn.m
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.nodes[id]
	if !ok {
		return nil, domain.NotFound("node", id)
	}
	if params.Parent != nil {
		if err := m.parentCheck(current.Type, params.Parent.ParentID); err != nil {
			return nil, err
		}
	}

	rows, changes, err := applyUpdate(m.byType(current.Type, true), id, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &current, nil
	}
	if err := m.fail("update", id); err != nil {
		return nil, err
	}

	written := m.write(rows)
	for _, d := range written[1:] {
		m.logEvent(actor, domain.ResourceNode, d.ID, "category_node.relevelled", d.ETag, map[string]interface{}{"level": d.Level})
	}
	m.logEvent(actor, domain.ResourceNode, id, "category_node.updated", written[0].ETag, changes)
	return &written[0], nil
}

func (mn *MemoryNodes) Delete(ctx context.Context, actor, id string) error {
	m := mn.m
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.nodes[id]
	if !ok {
		return domain.NotFound("node", id)
	}
	if _, err := checkDelete(m.byType(current.Type, true), id); err != nil {
		return err
	}
	for _, dep := range m.opts.Dependents {
		if n := m.countRefs(dep, id); n > 0 {
			return domain.Errorf(domain.ErrHasReferences, id, "%d %s rows", n, dep)
		}
	}
	if err := m.fail("delete", id); err != nil {
		return err
	}

	m.logEvent(actor, domain.ResourceNode, id, "category_node.deleted", 0, map[string]interface{}{"name": current.Name})
	delete(m.nodes, id)
	return nil
}

func (mn *MemoryNodes) Retype(ctx context.Context, actor, rootID, newType string) (int, error) {
	m := mn.m
	m.mu.Lock()
	defer m.mu.Unlock()

	root, ok := m.nodes[rootID]
	if !ok {
		return 0, domain.NotFound("node", rootID)
	}
	rows, err := prepareRetype(m.byType(root.Type, true), m.byType(newType, true), rootID, newType)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	if err := m.fail("retype", rootID); err != nil {
		return 0, err
	}

	for _, n := range m.write(rows) {
		m.logEvent(actor, domain.ResourceNode, n.ID, "category_node.retyped", n.ETag, map[string]interface{}{"from": root.Type, "to": newType})
	}
	return len(rows), nil
}

func (m *Memory) countRefs(dep domain.Dependent, id string) int {
	n := 0
	for _, target := range m.refs[dep] {
		if target == id {
			n++
		}
	}
	return n
}

func (mr *MemoryRefs) CountReferences(ctx context.Context, dep domain.Dependent, id string) (int, error) {
	mr.m.mu.Lock()
	defer mr.m.mu.Unlock()
	return mr.m.countRefs(dep, id), nil
}

// RewriteReferences moves records in batches of BatchSize. FailHook runs once
// per batch, so a failure leaves earlier batches applied.
func (mr *MemoryRefs) RewriteReferences(ctx context.Context, actor string, dep domain.Dependent, fromID, toID string) (int64, error) {
	if fromID == toID {
		return 0, domain.Errorf(domain.ErrSameNode, fromID, "cannot rewrite references onto the same node")
	}
	m := mr.m
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []string
	for record, target := range m.refs[dep] {
		if target == fromID {
			pending = append(pending, record)
		}
	}
	sort.Strings(pending)

	var total int64
	for start := 0; start < len(pending); start += m.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if err := m.fail("rewrite", fromID); err != nil {
			return total, err
		}
		end := start + m.opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		for _, record := range pending[start:end] {
			m.refs[dep][record] = toID
		}
		n := int64(end - start)
		total += n
		m.logEvent(actor, domain.ResourceReference, fromID, "reference.rewritten", 0, map[string]interface{}{
			"collection": dep.Collection, "field": dep.Field, "to_id": toID, "count": n,
		})
	}
	return total, nil
}

func (mt *MemoryTypes) List(ctx context.Context) ([]domain.CategoryType, error) {
	mt.m.mu.Lock()
	defer mt.m.mu.Unlock()
	out := make([]domain.CategoryType, 0, len(mt.m.types))
	for _, t := range mt.m.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (mt *MemoryTypes) Get(ctx context.Context, key string) (*domain.CategoryType, error) {
	mt.m.mu.Lock()
	defer mt.m.mu.Unlock()
	t, ok := mt.m.types[key]
	if !ok {
		return nil, domain.NotFound("type", key)
	}
	return &t, nil
}

func (mt *MemoryTypes) Create(ctx context.Context, actor string, t domain.CategoryType) (*domain.CategoryType, error) {
	if err := domain.ValidateTypeKey(t.Key); err != nil {
		return nil, err
	}
	m := mt.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.types[t.Key]; ok {
		return nil, domain.Errorf(domain.ErrAlreadyExists, t.Key, "type already registered")
	}
	if err := m.fail("type.create", t.Key); err != nil {
		return nil, err
	}
	if t.Label == "" {
		t.Label = t.Key
	}
	t.CreatedAt = time.Now().UTC().Truncate(time.Second)
	t.UpdatedAt = t.CreatedAt
	m.types[t.Key] = t
	m.logEvent(actor, domain.ResourceType, t.Key, "category_type.created", 0, map[string]interface{}{"label": t.Label})
	return &t, nil
}

func (mt *MemoryTypes) UpdateLabel(ctx context.Context, actor, key, label string) (*domain.CategoryType, error) {
	m := mt.m
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.types[key]
	if !ok {
		return nil, domain.NotFound("type", key)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, domain.Errorf(domain.ErrInvalidInput, key, "label cannot be empty")
	}
	t.Label = label
	t.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	m.types[key] = t
	m.logEvent(actor, domain.ResourceType, key, "category_type.renamed", 0, map[string]interface{}{"label": label})
	return &t, nil
}

func (mt *MemoryTypes) Delete(ctx context.Context, actor, key string) error {
	m := mt.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.types[key]; !ok {
		return domain.NotFound("type", key)
	}
	delete(m.types, key)
	m.logEvent(actor, domain.ResourceType, key, "category_type.deleted", 0, nil)
	return nil
}
