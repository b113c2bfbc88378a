package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loandoc/pipeline/internal/geometry"
	"github.com/loandoc/pipeline/internal/lock"
	"github.com/loandoc/pipeline/internal/models"
	"github.com/loandoc/pipeline/internal/pdf"
)

// fakeEngine models a document as page tokens joined by ";". Operations
// rewrite tokens, so tests can assert on exactly which pages were touched.
type fakeEngine struct {
	failRedact  error
	failExtract error
	redactHook  func(ctx context.Context) ([]byte, error)
}

func encodeDoc(pages []string) []byte { return []byte(strings.Join(pages, ";")) }
func decodeDoc(doc []byte) []string   { return strings.Split(string(doc), ";") }

func pageTokens(n int) []string {
	pages := make([]string, n)
	for i := range pages {
		pages[i] = fmt.Sprintf("p%d", i)
	}
	return pages
}

func (e *fakeEngine) PageCount(ctx context.Context, doc []byte) (int, error) {
	return len(decodeDoc(doc)), nil
}

func (e *fakeEngine) PageSizes(ctx context.Context, doc []byte) ([]geometry.Size, error) {
	sizes := make([]geometry.Size, len(decodeDoc(doc)))
	for i := range sizes {
		sizes[i] = geometry.Size{Width: 612, Height: 792}
	}
	return sizes, nil
}

func (e *fakeEngine) Redact(ctx context.Context, doc []byte, boxes map[int][]pdf.Box) ([]byte, error) {
	if e.redactHook != nil {
		return e.redactHook(ctx)
	}
	if e.failRedact != nil {
		return nil, e.failRedact
	}
	pages := decodeDoc(doc)
	for i, b := range boxes {
		pages[i] = fmt.Sprintf("%s+R%d", pages[i], len(b))
	}
	return encodeDoc(pages), nil
}

func (e *fakeEngine) Rotate(ctx context.Context, doc []byte, angles map[int]int) ([]byte, error) {
	pages := decodeDoc(doc)
	for i, angle := range angles {
		pages[i] = fmt.Sprintf("%s+rot%d", pages[i], angle)
	}
	return encodeDoc(pages), nil
}

func (e *fakeEngine) RemovePages(ctx context.Context, doc []byte, pages []int) ([]byte, error) {
	remove := map[int]bool{}
	for _, p := range pages {
		remove[p] = true
	}
	var kept []string
	for i, p := range decodeDoc(doc) {
		if !remove[i] {
			kept = append(kept, p)
		}
	}
	return encodeDoc(kept), nil
}

func (e *fakeEngine) ExtractRange(ctx context.Context, doc []byte, start, end int) ([]byte, error) {
	if e.failExtract != nil {
		return nil, e.failExtract
	}
	pages := decodeDoc(doc)
	if start < 0 || end > len(pages) || start >= end {
		return nil, fmt.Errorf("range [%d, %d) out of bounds for %d pages", start, end, len(pages))
	}
	return encodeDoc(pages[start:end]), nil
}

// fakeStore is an in-memory DocumentStore with failure injection.
type fakeStore struct {
	mu sync.Mutex

	docs    map[int64]*models.Document
	nextID  int64
	pending models.AnnotationSet

	statusLog         map[int64][]models.DocumentStatus
	appliedRedactions []string
	appliedRotations  []string
	appliedDeletions  []string
	linkedBreaks      map[string]int64
	autoNames         map[int64]string
	deletedRecords    []int64

	failCreate      error
	failLinkBreak   error
	failLinkBreakID string
}

func newFakeStore(doc *models.Document) *fakeStore {
	return &fakeStore{
		docs:         map[int64]*models.Document{doc.ID: doc},
		nextID:       doc.ID + 1,
		statusLog:    map[int64][]models.DocumentStatus{},
		linkedBreaks: map[string]int64{},
		autoNames:    map[int64]string{},
	}
}

func (s *fakeStore) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %d not found", id)
	}
	cp := *doc
	return &cp, nil
}

func (s *fakeStore) CreateDocument(ctx context.Context, doc *models.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return 0, s.failCreate
	}
	id := s.nextID
	s.nextID++
	cp := *doc
	cp.ID = id
	s.docs[id] = &cp
	return id, nil
}

func (s *fakeStore) DeleteDocument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	s.deletedRecords = append(s.deletedRecords, id)
	return nil
}

func (s *fakeStore) SetStatus(ctx context.Context, id int64, status models.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		doc.Status = status
	}
	s.statusLog[id] = append(s.statusLog[id], status)
	return nil
}

func (s *fakeStore) SetPageCount(ctx context.Context, id int64, pageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id].PageCount = pageCount
	return nil
}

func (s *fakeStore) SetClassification(ctx context.Context, id int64, c models.Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docs[id]
	if c.IsGeneric() {
		doc.ClassificationID = 0
		doc.ClassificationName = ""
		return nil
	}
	doc.ClassificationID = c.SentinelID()
	doc.ClassificationName = c.Name()
	return nil
}

func (s *fakeStore) SetAutoClassification(ctx context.Context, id int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoNames[id] = name
	return nil
}

func (s *fakeStore) MarkRedacted(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id].Redacted = true
	return nil
}

func (s *fakeStore) MarkDeleted(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docs[id]
	doc.Deleted = true
	doc.Status = models.StatusDeleted
	s.statusLog[id] = append(s.statusLog[id], models.StatusDeleted)
	return nil
}

func (s *fakeStore) PendingAnnotations(ctx context.Context, docID int64) (models.AnnotationSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, nil
}

func (s *fakeStore) MarkRedactionsApplied(ctx context.Context, docID int64, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appliedRedactions = append(s.appliedRedactions, ids...)
	return nil
}

func (s *fakeStore) MarkRotationsApplied(ctx context.Context, docID int64, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appliedRotations = append(s.appliedRotations, ids...)
	return nil
}

func (s *fakeStore) MarkDeletionsApplied(ctx context.Context, docID int64, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appliedDeletions = append(s.appliedDeletions, ids...)
	return nil
}

func (s *fakeStore) LinkBreak(ctx context.Context, docID int64, breakID string, resultDocID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLinkBreak != nil {
		return s.failLinkBreak
	}
	if s.failLinkBreakID != "" && breakID == s.failLinkBreakID {
		return fmt.Errorf("injected link failure for %s", breakID)
	}
	s.linkedBreaks[breakID] = resultDocID
	return nil
}

func (s *fakeStore) UnlinkBreak(ctx context.Context, docID int64, breakID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.linkedBreaks, breakID)
	return nil
}

func (s *fakeStore) statuses(id int64) []models.DocumentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DocumentStatus(nil), s.statusLog[id]...)
}

func (s *fakeStore) childDocs(parentID int64) []*models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	var children []*models.Document
	for _, doc := range s.docs {
		if doc.ParentID == parentID {
			cp := *doc
			children = append(children, &cp)
		}
	}
	return children
}

// fakeObjects is an in-memory ObjectStore safe for concurrent uploads.
type fakeObjects struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	failKey string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{blobs: map[string][]byte{}}
}

func (o *fakeObjects) Download(ctx context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.blobs[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return append([]byte(nil), data...), nil
}

func (o *fakeObjects) Upload(ctx context.Context, key string, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failKey != "" && key == o.failKey {
		return fmt.Errorf("injected upload failure for %s", key)
	}
	o.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (o *fakeObjects) UploadIfAbsent(ctx context.Context, key string, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failKey != "" && key == o.failKey {
		return fmt.Errorf("injected upload failure for %s", key)
	}
	if _, ok := o.blobs[key]; ok {
		return nil
	}
	o.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (o *fakeObjects) Copy(ctx context.Context, src, dst string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.blobs[src]
	if !ok {
		return fmt.Errorf("object %s not found", src)
	}
	o.blobs[dst] = append([]byte(nil), data...)
	return nil
}

func (o *fakeObjects) Delete(ctx context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.blobs, key)
	return nil
}

func (o *fakeObjects) get(key string) ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.blobs[key]
	return data, ok
}

func (o *fakeObjects) keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var keys []string
	for k := range o.blobs {
		keys = append(keys, k)
	}
	return keys
}

// fakeLocker hands out locks from an in-memory held set.
type fakeLocker struct {
	mu   sync.Mutex
	held map[int64]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[int64]bool{}}
}

func (l *fakeLocker) Acquire(ctx context.Context, docID int64, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[docID] {
		return nil, fmt.Errorf("lock doclock:%d: %w", docID, lock.ErrAlreadyLocked)
	}
	l.held[docID] = true
	release := func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, docID)
		return nil
	}
	return release, nil
}

// fakeReporter records every progress update in order.
type fakeReporter struct {
	mu      sync.Mutex
	updates []models.ProgressUpdate
}

func (r *fakeReporter) Report(ctx context.Context, u models.ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *fakeReporter) last() models.ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return models.ProgressUpdate{}
	}
	return r.updates[len(r.updates)-1]
}

func (r *fakeReporter) all() []models.ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ProgressUpdate(nil), r.updates...)
}
