package meta

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/mokrunka/taskwarrior-capsules/internal/db"
)

// Entry summarizes a stored document.
type Entry struct {
	Name      string
	Bytes     int
	UpdatedAt time.Time
}

// Store persists whole documents keyed by capsule name. Get on a name that
// was never written returns an empty document, not an error. Names lists
// stored documents, most recently updated first.
type Store interface {
	Get(ctx context.Context, name string) (Document, error)
	Put(ctx context.Context, name string, doc Document) error
	Names(ctx context.Context) ([]Entry, error)
}

// SQLStore is the sqlite-backed Store rooted at the capsules home
// directory. The database is created and opened on first access, so runs
// that never touch metadata never create it.
type SQLStore struct {
	dir string
	now func() time.Time

	once sync.Once
	conn *sql.DB
	err  error
}

// NewSQLStore returns a store that will keep its database in dir.
func NewSQLStore(dir string) *SQLStore {
	return &SQLStore{dir: dir, now: time.Now}
}

func (s *SQLStore) open() (*sql.DB, error) {
	s.once.Do(func() {
		s.conn, s.err = db.Init(s.dir)
	})
	return s.conn, s.err
}

// Opened reports whether the database has been opened.
func (s *SQLStore) Opened() bool {
	return s.conn != nil
}

func (s *SQLStore) Get(ctx context.Context, name string) (Document, error) {
	conn, err := s.open()
	if err != nil {
		return Document{}, err
	}
	row, err := db.GetMeta(ctx, conn, name)
	if stderrors.Is(err, db.ErrNotFound) {
		return NewDocument(), nil
	}
	if err != nil {
		return Document{}, err
	}
	return ParseDocument(row.Doc)
}

func (s *SQLStore) Put(ctx context.Context, name string, doc Document) error {
	conn, err := s.open()
	if err != nil {
		return err
	}
	return db.PutMeta(ctx, conn, name, doc.Raw(), s.now().Unix())
}

func (s *SQLStore) Names(ctx context.Context) ([]Entry, error) {
	conn, err := s.open()
	if err != nil {
		return nil, err
	}
	rows, err := db.ListMeta(ctx, conn)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = Entry{Name: r.Name, Bytes: r.Bytes, UpdatedAt: time.Unix(r.UpdatedAt, 0)}
	}
	return entries, nil
}

// Close closes the database if it was opened.
func (s *SQLStore) Close() error {
	if !s.Opened() {
		return nil
	}
	return s.conn.Close()
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu   sync.Mutex
	docs map[string]memEntry
	seq  int64
}

type memEntry struct {
	doc Document
	seq int64
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string]memEntry)}
}

func (m *MemStore) Get(_ context.Context, name string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.docs[name]; ok {
		return e.doc, nil
	}
	return NewDocument(), nil
}

func (m *MemStore) Put(_ context.Context, name string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.docs[name] = memEntry{doc: doc, seq: m.seq}
	return nil
}

func (m *MemStore) Names(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type ranked struct {
		Entry
		seq int64
	}
	list := make([]ranked, 0, len(m.docs))
	for name, e := range m.docs {
		list = append(list, ranked{Entry{Name: name, Bytes: len(e.doc.Raw())}, e.seq})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq > list[j].seq })
	entries := make([]Entry, len(list))
	for i, r := range list {
		entries[i] = r.Entry
	}
	return entries, nil
}
