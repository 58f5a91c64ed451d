// Package credentials stores the access token and account of each Mastodon
// instance tootmix is signed in to.
package credentials

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"github.com/gauthierbraillon/tootmix/internal/mastodon"
)

var ErrAccountNotFound = errors.New("account not found")

const fileSuffix = "_account.json"

// InstanceAccount is one signed-in account.
type InstanceAccount struct {
	Instance    string           `json:"instance"`
	Account     mastodon.Account `json:"account"`
	AccessToken string           `json:"access_token"` // #nosec G117 - JSON field for the stored token, not an exposed secret
	SavedAt     time.Time        `json:"saved_at"`
}

// Store keeps one JSON file per instance in a directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(instance string) string {
	clean := filepath.Base(strings.ToLower(strings.TrimSpace(instance)))
	return filepath.Join(s.dir, clean+fileSuffix)
}

func (s *Store) Save(account InstanceAccount) error {
	if account.Instance == "" {
		return errors.New("instance is required")
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return errors.Wrap(err, "create credentials directory")
	}
	if account.SavedAt.IsZero() {
		account.SavedAt = time.Now().UTC()
	}

	data, err := sonic.Marshal(account)
	if err != nil {
		return errors.Wrap(err, "marshal account")
	}
	return os.WriteFile(s.path(account.Instance), data, 0600)
}

func (s *Store) Load(instance string) (*InstanceAccount, error) {
	data, err := os.ReadFile(s.path(instance)) // #nosec G304 -- instance is sanitized
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "read account")
	}

	var account InstanceAccount
	if err := sonic.Unmarshal(data, &account); err != nil {
		return nil, errors.Wrap(err, "unmarshal account")
	}
	return &account, nil
}

// List returns every stored account ordered by instance.
func (s *Store) List() ([]InstanceAccount, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "list accounts")
	}

	var accounts []InstanceAccount
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		account, err := s.Load(strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Instance < accounts[j].Instance
	})
	return accounts, nil
}

// Remove deletes the account of instance.
func (s *Store) Remove(instance string) error {
	if err := os.Remove(s.path(instance)); err != nil {
		if os.IsNotExist(err) {
			return ErrAccountNotFound
		}
		return errors.Wrap(err, "remove account")
	}
	return nil
}
