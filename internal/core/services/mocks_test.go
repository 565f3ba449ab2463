package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
)

// --- Mock implementations of driven ports ---

// mockCorpus implements driven.CorpusSource over a path→content map.
type mockCorpus struct {
	files   map[string]string
	changes chan string
}

func (m *mockCorpus) Files(_ context.Context) (<-chan driven.CorpusFile, <-chan error) {
	out := make(chan driven.CorpusFile)
	errs := make(chan error, 1)

	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	go func() {
		defer close(out)
		defer close(errs)
		for _, p := range paths {
			out <- driven.CorpusFile{Path: p, Content: m.files[p]}
		}
	}()
	return out, errs
}

func (m *mockCorpus) Read(_ context.Context, path string) (*driven.CorpusFile, error) {
	content, ok := m.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &driven.CorpusFile{Path: path, Content: content}, nil
}

func (m *mockCorpus) Watch(_ context.Context) (<-chan string, error) {
	if m.changes == nil {
		m.changes = make(chan string)
	}
	return m.changes, nil
}

func (m *mockCorpus) Close() error { return nil }

// mockChunkStore implements driven.ChunkStore in memory.
type mockChunkStore struct {
	mu     sync.RWMutex
	byPath map[string][]domain.Chunk

	replaceErr error
}

func newMockChunkStore() *mockChunkStore {
	return &mockChunkStore{byPath: make(map[string][]domain.Chunk)}
}

func (m *mockChunkStore) ReplacePath(_ context.Context, path string, chunks []domain.Chunk) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPath[path] = chunks
	return nil
}

func (m *mockChunkStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, chunks := range m.byPath {
		for _, c := range chunks {
			if c.ID == id {
				return &c, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockChunkStore) ListByPath(_ context.Context, path string) ([]domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byPath[path], nil
}

func (m *mockChunkStore) All(_ context.Context) ([]domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.byPath))
	for p := range m.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	var all []domain.Chunk
	for _, p := range paths {
		all = append(all, m.byPath[p]...)
	}
	return all, nil
}

func (m *mockChunkStore) DeletePath(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byPath, path)
	return nil
}

// mockVectorIndex implements driven.VectorIndex with cosine similarity.
type mockVectorIndex struct {
	mu           sync.RWMutex
	vectors      map[string][]float32
	classes      map[string]domain.ContentClass
	replaceCalls int
}

func newMockVectorIndex() *mockVectorIndex {
	return &mockVectorIndex{
		vectors: make(map[string][]float32),
		classes: make(map[string]domain.ContentClass),
	}
}

func (m *mockVectorIndex) Add(_ context.Context, chunkID string, class domain.ContentClass, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[chunkID] = embedding
	m.classes[chunkID] = class
	return nil
}

func (m *mockVectorIndex) Delete(_ context.Context, chunkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vectors, chunkID)
	delete(m.classes, chunkID)
	return nil
}

func (m *mockVectorIndex) Replace(_ context.Context, deleteIDs []string, entries []driven.VectorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceCalls++
	for _, id := range deleteIDs {
		delete(m.vectors, id)
		delete(m.classes, id)
	}
	for _, e := range entries {
		m.vectors[e.ChunkID] = e.Embedding
		m.classes[e.ChunkID] = e.Class
	}
	return nil
}

func (m *mockVectorIndex) swapCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.replaceCalls
}

func (m *mockVectorIndex) Search(_ context.Context, query []float32, k int, class domain.ContentClass) ([]driven.VectorHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]driven.VectorHit, 0, len(m.vectors))
	for id, vec := range m.vectors {
		if class != domain.ClassAny && m.classes[id] != class {
			continue
		}
		hits = append(hits, driven.VectorHit{ChunkID: id, Similarity: cosine(query, vec)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *mockVectorIndex) Close() error { return nil }

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (sqrt(na) * sqrt(nb))
}

func sqrt(x float64) float64 {
	// Newton iteration is plenty for test vectors.
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// mockEmbedding implements driven.EmbeddingService deterministically.
// failOn marks contents whose embedding fails.
type mockEmbedding struct {
	dims   int
	failOn map[string]bool
}

func newMockEmbedding() *mockEmbedding {
	return &mockEmbedding{dims: 8, failOn: make(map[string]bool)}
}

func (m *mockEmbedding) Embed(_ context.Context, text string) ([]float32, error) {
	if m.failOn[text] {
		return nil, fmt.Errorf("embed failed")
	}
	vec := make([]float32, m.dims)
	for i, r := range text {
		vec[i%m.dims] += float32(r%31) / 31
	}
	return vec, nil
}

func (m *mockEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockEmbedding) Dimensions() int               { return m.dims }
func (m *mockEmbedding) ModelName() string             { return "mock-embed" }
func (m *mockEmbedding) Ping(_ context.Context) error  { return nil }
func (m *mockEmbedding) Close() error                  { return nil }

// mockProvider implements driven.AIProvider with scripted behaviour.
// err makes every call fail; failFirst makes only the first N calls
// fail with err before succeeding.
type mockProvider struct {
	id        string
	response  string
	inTok     int
	outTok    int
	err       error
	failFirst int
	delay     time.Duration

	mu   sync.Mutex
	reqs []driven.GenerateRequest
}

func (m *mockProvider) Generate(ctx context.Context, req driven.GenerateRequest) (*driven.GenerateResult, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	n := len(m.reqs)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &domain.ProviderError{Provider: m.id, Kind: domain.ProviderTimeout, Err: ctx.Err()}
		case <-time.After(m.delay):
		}
	}
	if m.err != nil && (m.failFirst == 0 || n <= m.failFirst) {
		return nil, m.err
	}
	return &driven.GenerateResult{Text: m.response, InputTokens: m.inTok, OutputTokens: m.outTok}, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reqs)
}

func (m *mockProvider) request(i int) driven.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reqs[i]
}

func (m *mockProvider) ID() string                    { return m.id }
func (m *mockProvider) ModelName() string             { return m.id + "-model" }
func (m *mockProvider) Ping(_ context.Context) error  { return nil }
func (m *mockProvider) Close() error                  { return nil }

// mockHistory implements driven.HistoryStore in memory.
type mockHistory struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (m *mockHistory) Append(_ context.Context, event domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockHistory) List(_ context.Context, sessionID string) ([]domain.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEvent
	for _, e := range m.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockHistory) kinds() []domain.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EventKind, len(m.events))
	for i, e := range m.events {
		out[i] = e.Kind
	}
	return out
}

// mockLedgerStore implements driven.LedgerStore in memory.
type mockLedgerStore struct {
	mu        sync.Mutex
	snapshots []domain.LedgerSnapshot
}

func (m *mockLedgerStore) Save(_ context.Context, snapshot domain.LedgerSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snapshot)
	return nil
}

func (m *mockLedgerStore) Load(_ context.Context, sessionID string) (*domain.LedgerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		if m.snapshots[i].SessionID == sessionID {
			snap := m.snapshots[i]
			return &snap, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockLedgerStore) last() *domain.LedgerSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshots) == 0 {
		return nil
	}
	snap := m.snapshots[len(m.snapshots)-1]
	return &snap
}

// mockWorkflowStore implements driven.WorkflowStore in memory.
type mockWorkflowStore struct {
	mu      sync.RWMutex
	records map[string]domain.WorkflowRecord
}

func newMockWorkflowStore() *mockWorkflowStore {
	return &mockWorkflowStore{records: make(map[string]domain.WorkflowRecord)}
}

func (m *mockWorkflowStore) Save(_ context.Context, rec *domain.WorkflowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = *rec
	return nil
}

func (m *mockWorkflowStore) Get(_ context.Context, id string) (*domain.WorkflowRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (m *mockWorkflowStore) List(_ context.Context) ([]domain.WorkflowRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.WorkflowRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

// mockRepo implements driven.RepositoryService with scripted failures.
type mockRepo struct {
	mu         sync.Mutex
	branches   []string
	commits    map[string]map[string]string // branch → path → content
	prs        map[int]*driven.PullRequest
	nextPR     int
	prior      map[string]string // pre-PR contents for InverseDiff
	commitErr  error
	branchErr  error
	openPRErr  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		commits: make(map[string]map[string]string),
		prs:     make(map[int]*driven.PullRequest),
		nextPR:  6, // first PR is #6, matching the rollback example
		prior:   map[string]string{},
	}
}

func (m *mockRepo) CreateBranch(_ context.Context, _, name string) error {
	if m.branchErr != nil {
		return m.branchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branches = append(m.branches, name)
	m.commits[name] = make(map[string]string)
	return nil
}

func (m *mockRepo) CommitFile(_ context.Context, branch, path, content, _ string) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits[branch][path] = content
	return nil
}

func (m *mockRepo) OpenPullRequest(_ context.Context, branch, title, body string) (*driven.PullRequest, error) {
	if m.openPRErr != nil {
		return nil, m.openPRErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pr := &driven.PullRequest{
		Number: m.nextPR,
		Title:  title,
		Body:   body,
		State:  "open",
		Branch: branch,
	}
	m.prs[pr.Number] = pr
	m.nextPR++
	return pr, nil
}

func (m *mockRepo) GetPullRequestStatus(_ context.Context, number int) (*driven.PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.prs[number]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return pr, nil
}

func (m *mockRepo) ListPullRequests(_ context.Context, filter driven.PullRequestFilter) ([]driven.PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]driven.PullRequest, 0, len(m.prs))
	for _, pr := range m.prs {
		if filter.State == "" || pr.State == filter.State {
			out = append(out, *pr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *mockRepo) MergePullRequest(_ context.Context, number int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.prs[number]
	if !ok {
		return domain.ErrNotFound
	}
	pr.State = "merged"
	return nil
}

func (m *mockRepo) InverseDiff(_ context.Context, _ int) (map[string]string, error) {
	return m.prior, nil
}
