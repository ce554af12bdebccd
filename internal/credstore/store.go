// Package credstore persists per-customer transfer-service credentials in a
// single TOML file. Each customer is one section; a reserved [encryption]
// section holds the KDF salt and the key-check ciphertext. Reads go through
// the TOML parser; writes are line-level section edits with an atomic
// rename, so saving one customer never rewrites or reorders the others.
package credstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/fts-tools/ftsctl/internal/secretbox"
)

// Keys within the reserved encryption section.
const (
	keySalt     = "salt"
	keyKeyCheck = "key_check"
)

// ErrNotFound is returned when a named customer section does not exist.
var ErrNotFound = errors.New("credstore: customer not found")

// ErrReservedName rejects operations that would treat the encryption
// metadata section as a customer.
var ErrReservedName = errors.New("credstore: name is reserved")

// ProfileInput carries the editable fields of a customer profile, secret in
// plaintext. The store encrypts the secret before anything touches disk.
type ProfileInput struct {
	Name         string
	HostBaseURL  string
	OAuthBaseURL string
	OAuthScope   string
	ClientID     string
	ClientSecret string
}

// Store owns the on-disk credential file and the cipher derived from the
// operator's password. Mutations rewrite the file atomically, so a reader
// never observes a half-merged section.
type Store struct {
	path   string
	cipher *secretbox.Cipher
	logger *slog.Logger
}

// Open loads or initializes the credential file at path. On first run it
// generates the salt and key-check; on every later run it verifies the
// key-check and fails with secretbox.ErrKeyCheckFailed when the password
// derives the wrong key. That failure is fatal to the session — callers
// must not continue past it.
func Open(path string, password []byte, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	raw, err := readSections(path)
	if err != nil {
		return nil, err
	}

	enc := raw[EncryptionSection]

	salt, saltCreated, err := resolveSalt(enc[keySalt])
	if err != nil {
		return nil, err
	}

	cipher, err := secretbox.NewFromPassword(password, salt)
	if err != nil {
		return nil, err
	}

	s := &Store{path: path, cipher: cipher, logger: logger}

	keyCheck := enc[keyKeyCheck]
	if keyCheck == "" {
		// First run for this file: persist salt and a key-check ciphertext
		// of a throwaway random plaintext.
		keyCheck, err = cipher.Encrypt(uuid.NewString())
		if err != nil {
			return nil, fmt.Errorf("credstore: creating key check: %w", err)
		}

		if err := s.upsert(EncryptionSection, []keyValue{
			{keySalt, secretbox.EncodeSalt(salt)},
			{keyKeyCheck, keyCheck},
		}); err != nil {
			return nil, err
		}

		logger.Info("initialized credential store",
			slog.String("path", path),
			slog.Bool("new_salt", saltCreated),
		)

		return s, nil
	}

	if err := cipher.VerifyKeyCheck(keyCheck); err != nil {
		return nil, err
	}

	logger.Debug("credential store opened", slog.String("path", path))

	return s, nil
}

// resolveSalt decodes a stored salt or generates a fresh one.
func resolveSalt(encoded string) ([]byte, bool, error) {
	if encoded == "" {
		salt, err := secretbox.NewSalt()

		return salt, true, err
	}

	salt, err := secretbox.DecodeSalt(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("credstore: stored salt is corrupt: %w", err)
	}

	return salt, false, nil
}

// Load reads every customer profile, excluding the encryption section.
// Secrets stay encrypted; use Secret to decrypt one at point of use.
func (s *Store) Load() (map[string]CustomerProfile, error) {
	raw, err := readSections(s.path)
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]CustomerProfile, len(raw))

	for name, keys := range raw {
		if name == EncryptionSection {
			continue
		}

		profiles[name] = CustomerProfile{
			Name:                  name,
			HostBaseURL:           keys[keyHostBaseURL],
			OAuthBaseURL:          keys[keyOAuthBaseURL],
			OAuthScope:            keys[keyOAuthScope],
			ClientID:              keys[keyClientID],
			ClientSecretEncrypted: keys[keyClientSecret],
		}
	}

	return profiles, nil
}

// Get returns one customer profile or ErrNotFound.
func (s *Store) Get(name string) (*CustomerProfile, error) {
	profiles, err := s.Load()
	if err != nil {
		return nil, err
	}

	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	return &p, nil
}

// ListNames returns customer names sorted case-insensitively.
func (s *Store) ListNames() ([]string, error) {
	profiles, err := s.Load()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}

	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})

	return names, nil
}

// Save validates, encrypts the secret, and merges the profile into its
// section. Validation reports every missing field at once; nothing is
// written when validation fails.
func (s *Store) Save(in ProfileInput) error {
	if in.Name == EncryptionSection {
		return ErrReservedName
	}

	probe := CustomerProfile{
		Name:                  in.Name,
		HostBaseURL:           in.HostBaseURL,
		OAuthBaseURL:          in.OAuthBaseURL,
		OAuthScope:            in.OAuthScope,
		ClientID:              in.ClientID,
		ClientSecretEncrypted: in.ClientSecret, // presence check only
	}
	if missing := probe.MissingFields(); len(missing) > 0 {
		return &ValidationError{Name: in.Name, Missing: missing}
	}

	encrypted, err := s.cipher.Encrypt(in.ClientSecret)
	if err != nil {
		return err
	}

	if err := s.upsert(in.Name, []keyValue{
		{keyHostBaseURL, in.HostBaseURL},
		{keyOAuthBaseURL, in.OAuthBaseURL},
		{keyOAuthScope, in.OAuthScope},
		{keyClientID, in.ClientID},
		{keyClientSecret, encrypted},
	}); err != nil {
		return err
	}

	s.logger.Info("saved customer profile", slog.String("customer", in.Name))

	return nil
}

// Delete removes an entire customer section. Deleting the encryption
// section is refused; deleting an absent customer returns ErrNotFound.
func (s *Store) Delete(name string) error {
	if name == EncryptionSection {
		return ErrReservedName
	}

	lines, err := readLines(s.path)
	if err != nil {
		return err
	}

	lines, found := removeSection(lines, name)
	if !found {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	if err := atomicWriteFile(s.path, []byte(strings.Join(lines, "\n"))); err != nil {
		return err
	}

	s.logger.Info("deleted customer profile", slog.String("customer", name))

	return nil
}

// Secret decrypts a profile's client secret at point of use. The plaintext
// must not be persisted or logged by the caller.
func (s *Store) Secret(p *CustomerProfile) (string, error) {
	return s.cipher.Decrypt(p.ClientSecretEncrypted)
}

// Path returns the credential file location.
func (s *Store) Path() string {
	return s.path
}

// upsert merges key/value pairs into one section and writes atomically.
func (s *Store) upsert(name string, kvs []keyValue) error {
	lines, err := readLines(s.path)
	if err != nil {
		return err
	}

	lines = upsertSection(lines, name, kvs)

	return atomicWriteFile(s.path, []byte(strings.Join(lines, "\n")))
}

// readLines reads the credential file as lines. A missing file is an empty
// store, not an error.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", path, err)
	}

	return strings.Split(string(data), "\n"), nil
}

// readSections parses the credential file into section -> key -> value.
func readSections(path string) (map[string]map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]map[string]string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", path, err)
	}

	var raw map[string]map[string]string
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("credstore: parsing %s: %w", path, err)
	}

	if raw == nil {
		raw = map[string]map[string]string{}
	}

	return raw, nil
}
