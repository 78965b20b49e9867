// Package filestore persists accounts as a single JSON document keyed by
// username. Writes go to a temp file first and are renamed over the real
// file, so a crash mid-write leaves the previous snapshot intact.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("infra/filestore")

// Store is a JSON-file account store. All mutations are serialized by mu,
// which makes Register and Update atomic check-and-write operations within
// one process.
type Store struct {
	path   string
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

// Open loads the file at path (creating nothing until the first write).
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		path:     path,
		logger:   logger,
		now:      time.Now,
		accounts: map[string]*domain.Account{},
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	if _, err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Ping reports whether the data directory is still reachable.
func (s *Store) Ping(_ context.Context) error {
	info, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", filepath.Dir(s.path))
	}
	return nil
}

// Load re-reads the file and replaces the in-memory view. A missing file is
// an empty store. A malformed file is moved aside to <path>.corrupt-<unix>
// and also reads as empty, so the next Save cannot overwrite the only copy
// of the damaged data.
func (s *Store) Load(ctx context.Context) (map[string]*domain.Account, error) {
	_, span := tracer.Start(ctx, "Store.Load")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.readFile()
	if err != nil {
		return nil, err
	}
	s.accounts = accounts
	span.SetAttributes(attribute.Int("accounts", len(accounts)))
	return cloneAll(accounts), nil
}

// Save overwrites the file with accounts and adopts them as the current view.
func (s *Store) Save(ctx context.Context, accounts map[string]*domain.Account) error {
	_, span := tracer.Start(ctx, "Store.Save")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneAll(accounts)
	for username, a := range next {
		a.Username = username
	}
	if err := s.writeFile(next); err != nil {
		return err
	}
	s.accounts = next
	return nil
}

// Get returns a copy of the account for username.
func (s *Store) Get(_ context.Context, username string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[username]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: username}
	}
	return a.Clone(), nil
}

// FindByEmail scans for the account registered with email (exact match).
func (s *Store) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a := s.findByEmailLocked(email); a != nil {
		return a.Clone(), nil
	}
	return nil, &domain.ErrNotFound{Resource: "account", ID: email}
}

// List returns copies of all accounts ordered by username.
func (s *Store) List(_ context.Context) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Register inserts account if neither its username nor its email is taken.
func (s *Store) Register(ctx context.Context, account *domain.Account) error {
	_, span := tracer.Start(ctx, "Store.Register")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.Username]; ok {
		return &domain.ErrDuplicateAccount{Field: "username"}
	}
	if s.findByEmailLocked(account.Email) != nil {
		return &domain.ErrDuplicateAccount{Field: "email"}
	}

	next := cloneAll(s.accounts)
	next[account.Username] = account.Clone()
	if err := s.writeFile(next); err != nil {
		return err
	}
	s.accounts = next

	s.logger.Info("account stored", zap.String("username", account.Username))
	return nil
}

// Update applies fn to a copy of the account and persists the full mapping
// when fn succeeds. Nothing is written when fn returns an error.
func (s *Store) Update(ctx context.Context, username string, fn func(*domain.Account) error) (*domain.Account, error) {
	_, span := tracer.Start(ctx, "Store.Update")
	defer span.End()
	span.SetAttributes(attribute.String("username", username))

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[username]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: username}
	}

	updated := current.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	updated.Username = username

	next := cloneAll(s.accounts)
	next[username] = updated
	if err := s.writeFile(next); err != nil {
		return nil, err
	}
	s.accounts = next
	return updated.Clone(), nil
}

// ============================================================
// File I/O
// ============================================================

func (s *Store) readFile() (map[string]*domain.Account, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]*domain.Account{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read account file: %w", err)
	}

	accounts := map[string]*domain.Account{}
	if err := json.Unmarshal(data, &accounts); err != nil {
		s.quarantine(err)
		return map[string]*domain.Account{}, nil
	}
	for username, a := range accounts {
		if a == nil {
			delete(accounts, username)
			continue
		}
		a.Username = username
	}
	return accounts, nil
}

func (s *Store) quarantine(cause error) {
	target := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := os.Rename(s.path, target); err != nil {
		s.logger.Error("account file is malformed and could not be moved aside",
			zap.String("path", s.path),
			zap.NamedError("parse_error", cause),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("account file is malformed, starting empty",
		zap.String("path", s.path),
		zap.String("quarantined_to", target),
		zap.NamedError("parse_error", cause),
	)
}

func (s *Store) writeFile(accounts map[string]*domain.Account) error {
	tmp := s.path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "    ")
	if err := enc.Encode(accounts); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode accounts: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace account file: %w", err)
	}
	return nil
}

func (s *Store) findByEmailLocked(email string) *domain.Account {
	for _, a := range s.accounts {
		if a.Email == email {
			return a
		}
	}
	return nil
}

func cloneAll(in map[string]*domain.Account) map[string]*domain.Account {
	out := make(map[string]*domain.Account, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}
