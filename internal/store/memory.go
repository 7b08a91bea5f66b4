package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/landrecs/deedflow/internal/types"
)

// MemoryStore is an in-memory implementation of JobStore,
// DocumentStore and DedupLedger for tests and local runs.
type MemoryStore struct {
	mu        sync.Mutex
	books     map[string]*BookJob
	batches   map[string]*BatchJob
	documents map[int64]*MemoryDocument
	parties   map[string]struct{} // documentID|role|name
	ledger    map[string]struct{} // queue|hash
	nextDocID int64
}

// MemoryDocument is the in-memory document record, exported so tests
// can assert on persisted state.
type MemoryDocument struct {
	ID         int64
	CountyID   string
	PRSERV     string
	ExportFlag int
	Facts      types.DocumentFacts
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:     make(map[string]*BookJob),
		batches:   make(map[string]*BatchJob),
		documents: make(map[int64]*MemoryDocument),
		parties:   make(map[string]struct{}),
		ledger:    make(map[string]struct{}),
	}
}

func (s *MemoryStore) CreateBookJob(ctx context.Context, bookID, countyID, countyName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[bookID]; ok {
		return fmt.Errorf("book job %s already exists", bookID)
	}
	s.books[bookID] = &BookJob{
		BookID:     bookID,
		CountyID:   countyID,
		CountyName: countyName,
		Status:     StatusPending,
		UpdatedAt:  time.Now(),
	}
	return nil
}

func (s *MemoryStore) GetBookJob(ctx context.Context, bookID string) (*BookJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.books[bookID]
	if !ok {
		return nil, fmt.Errorf("%w: book job %s", ErrNotFound, bookID)
	}
	cp := *j
	return &cp, nil
}

func (s *MemoryStore) BookJobStatus(ctx context.Context, bookID string) (*StatusView, error) {
	j, err := s.GetBookJob(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return j.View(), nil
}

func (s *MemoryStore) SetBookStatus(ctx context.Context, bookID string, to Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.books[bookID]
	if !ok {
		return fmt.Errorf("%w: book job %s", ErrNotFound, bookID)
	}
	if err := ValidateTransition(j.Status, to); err != nil {
		return err
	}
	j.Status = to
	j.Error = truncateError(errMsg)
	j.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) mutateBook(bookID string, fn func(*BookJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.books[bookID]
	if !ok {
		return fmt.Errorf("%w: book job %s", ErrNotFound, bookID)
	}
	fn(j)
	j.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetPagesTotal(ctx context.Context, bookID string, n int) error {
	return s.mutateBook(bookID, func(j *BookJob) { j.PagesTotal = &n })
}

func (s *MemoryStore) AddPagesProcessed(ctx context.Context, bookID string, n int) error {
	return s.mutateBook(bookID, func(j *BookJob) { j.PagesProcessed += n })
}

func (s *MemoryStore) SetDocumentsTotal(ctx context.Context, bookID string, n int) error {
	return s.mutateBook(bookID, func(j *BookJob) { j.DocumentsTotal = &n })
}

func (s *MemoryStore) AddDocumentsCreated(ctx context.Context, bookID string, n int) error {
	return s.mutateBook(bookID, func(j *BookJob) { j.DocumentsCreated += n })
}

func (s *MemoryStore) AddDocumentsQueuedForAI(ctx context.Context, bookID string, n int) error {
	return s.mutateBook(bookID, func(j *BookJob) { j.DocumentsQueuedForAI += n })
}

func (s *MemoryStore) AddDocumentsAIProcessed(ctx context.Context, bookID string, n int) error {
	return s.mutateBook(bookID, func(j *BookJob) { j.DocumentsAIProcessed += n })
}

func (s *MemoryStore) AddDocumentsDBUpdated(ctx context.Context, bookID string, n int) error {
	return s.mutateBook(bookID, func(j *BookJob) { j.DocumentsDBUpdated += n })
}

func (s *MemoryStore) CreateBatchJob(ctx context.Context, batchID string, documentsTotal int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batchID]; ok {
		return fmt.Errorf("batch job %s already exists", batchID)
	}
	s.batches[batchID] = &BatchJob{
		BatchID:        batchID,
		DocumentsTotal: documentsTotal,
		UpdatedAt:      time.Now(),
	}
	return nil
}

func (s *MemoryStore) GetBatchJob(ctx context.Context, batchID string) (*BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("%w: batch job %s", ErrNotFound, batchID)
	}
	cp := *j
	return &cp, nil
}

func (s *MemoryStore) mutateBatch(batchID string, fn func(*BatchJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.batches[batchID]
	if !ok {
		return fmt.Errorf("%w: batch job %s", ErrNotFound, batchID)
	}
	fn(j)
	j.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AddBatchAIProcessed(ctx context.Context, batchID string, n int) error {
	return s.mutateBatch(batchID, func(j *BatchJob) { j.DocumentsAIProcessed += n })
}

func (s *MemoryStore) AddBatchDBUpdated(ctx context.Context, batchID string, n int) error {
	return s.mutateBatch(batchID, func(j *BatchJob) { j.DocumentsDBUpdated += n })
}

func (s *MemoryStore) CreateDocument(ctx context.Context, countyID string) (int64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextDocID++
	id := s.nextDocID
	prserv := PRSERV(id)
	s.documents[id] = &MemoryDocument{
		ID:         id,
		CountyID:   countyID,
		PRSERV:     prserv,
		ExportFlag: 1,
	}
	return id, prserv, nil
}

func (s *MemoryStore) UpsertExtractedFacts(ctx context.Context, documentID int64, facts types.DocumentFacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("%w: document %d", ErrNotFound, documentID)
	}
	doc.Facts = facts
	doc.ExportFlag = 2
	for _, name := range facts.Grantor {
		if name != "" {
			s.parties[partyKey(documentID, types.RoleGrantor, name)] = struct{}{}
		}
	}
	for _, name := range facts.Grantee {
		if name != "" {
			s.parties[partyKey(documentID, types.RoleGrantee, name)] = struct{}{}
		}
	}
	return nil
}

func partyKey(id int64, role types.PartyRole, name string) string {
	return fmt.Sprintf("%d|%s|%s", id, role, name)
}

func (s *MemoryStore) Seen(ctx context.Context, queue, messageHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ledger[queue+"|"+messageHash]
	return ok, nil
}

func (s *MemoryStore) Record(ctx context.Context, queue, messageHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger[queue+"|"+messageHash] = struct{}{}
	return nil
}

// Document returns a copy of a stored document record. Test helper.
func (s *MemoryStore) Document(id int64) *MemoryDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil
	}
	cp := *doc
	return &cp
}

// DocumentCount returns the number of document records. Test helper.
func (s *MemoryStore) DocumentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.documents)
}

// PartyCount returns the number of distinct party rows. Test helper.
func (s *MemoryStore) PartyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.parties)
}

// HasParty reports whether a (document, role, name) row exists. Test
// helper.
func (s *MemoryStore) HasParty(id int64, role types.PartyRole, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.parties[partyKey(id, role, name)]
	return ok
}
