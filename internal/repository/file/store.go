package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"
	"trade_desk/internal/domain"
	"trade_desk/internal/repository"

	"github.com/zeebo/blake3"
)

const (
	documentExt   = ".json"
	tempSuffix    = ".tmp"
	corruptSuffix = ".corrupt"
)

var errVerifyFailed = errors.New("persisted document does not match staged bytes")

// Store keeps one JSON file per collection under dir.
type Store struct {
	dir      string
	locksMu  sync.Mutex
	locks    map[repository.Collection]*sync.RWMutex
	observer repository.StoreObserver
	logger   *slog.Logger
}

var _ repository.LedgerStore = (*Store)(nil)

func NewStore(dir string, observer repository.StoreObserver, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = repository.NopObserver{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", domain.ErrIO, err)
	}

	s := &Store{
		dir:      dir,
		locks:    make(map[repository.Collection]*sync.RWMutex),
		observer: observer,
		logger:   logger,
	}

	for _, c := range repository.Collections {
		if err := s.Read(context.Background(), c, repository.NewDocument(c)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Read(ctx context.Context, c repository.Collection, doc repository.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validCollection(c); err != nil {
		return err
	}

	l := s.lock(c)
	l.RLock()
	missing, err := s.readLocked(c, doc)
	l.RUnlock()
	if err != nil || !missing {
		return err
	}

	l.Lock()
	defer l.Unlock()
	missing, err = s.readLocked(c, doc)
	if err != nil || !missing {
		return err
	}
	s.logger.Info("Creating default document",
		slog.String("collection", string(c)),
		slog.String("path", s.path(c)))
	return s.writeLocked(c, doc)
}

func (s *Store) Write(ctx context.Context, c repository.Collection, doc repository.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validCollection(c); err != nil {
		return err
	}

	l := s.lock(c)
	l.Lock()
	defer l.Unlock()
	return s.writeLocked(c, doc)
}

func (s *Store) Update(ctx context.Context, c repository.Collection, doc repository.Document, mutate func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validCollection(c); err != nil {
		return err
	}

	l := s.lock(c)
	l.Lock()
	defer l.Unlock()

	if _, err := s.readLocked(c, doc); err != nil {
		return err
	}
	if err := mutate(); err != nil {
		return err
	}
	return s.writeLocked(c, doc)
}

func (s *Store) lock(c repository.Collection) *sync.RWMutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[c]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[c] = l
	}
	return l
}

func (s *Store) path(c repository.Collection) string {
	return filepath.Join(s.dir, string(c)+documentExt)
}

// readLocked decodes the collection into doc. It reports missing=true when
// the file does not exist, leaving doc in its default shape.
func (s *Store) readLocked(c repository.Collection, doc repository.Document) (bool, error) {
	doc.Reset()

	data, err := os.ReadFile(s.path(c))
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: read %s: %v", domain.ErrIO, c, err)
	}

	if err := json.Unmarshal(data, doc); err != nil {
		s.fallback(c, doc, data, err)
		return false, nil
	}
	doc.Normalize()
	return false, nil
}

func (s *Store) fallback(c repository.Collection, doc repository.Document, data []byte, reason error) {
	doc.Reset()
	s.observer.ObserveFallback(c, reason)

	quarantine := s.path(c) + corruptSuffix
	if err := os.WriteFile(quarantine, data, 0o600); err != nil {
		quarantine = ""
	}
	s.logger.Warn("Unreadable document, using empty default",
		slog.String("collection", string(c)),
		slog.String("error", reason.Error()),
		slog.String("quarantine", quarantine))
}

func (s *Store) writeLocked(c repository.Collection, doc repository.Document) error {
	start := time.Now()
	err := s.persist(c, doc)
	s.observer.ObserveWrite(c, time.Since(start), err)

	if err != nil {
		s.logger.Error("Document write failed",
			slog.String("collection", string(c)),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: write %s: %v", domain.ErrIO, c, err)
	}
	return nil
}

func (s *Store) persist(c repository.Collection, doc repository.Document) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}

	target := s.path(c)
	tempPath := target + tempSuffix
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		_ = os.Remove(tempPath)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tempPath)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, target); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	syncDir(s.dir)

	return verify(target, data, doc)
}

// verify re-reads the target and checks that both the raw bytes and the
// decoded document match what was staged.
func verify(path string, staged []byte, doc repository.Document) error {
	persisted, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	want := blake3.Sum256(staged)
	if blake3.Sum256(persisted) != want {
		return errVerifyFailed
	}

	decoded := reflect.New(reflect.TypeOf(doc).Elem()).Interface()
	if err := json.Unmarshal(persisted, decoded); err != nil {
		return fmt.Errorf("%w: %v", errVerifyFailed, err)
	}
	reencoded, err := encode(decoded)
	if err != nil {
		return err
	}
	if blake3.Sum256(reencoded) != want {
		return errVerifyFailed
	}
	return nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func validCollection(c repository.Collection) error {
	name := string(c)
	if name == "" || strings.ContainsAny(name, `/\.`) {
		return fmt.Errorf("%w: %q", repository.ErrUnknownCollection, name)
	}
	return nil
}
