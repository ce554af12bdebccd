package credstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fts-tools/ftsctl/internal/secretbox"
)

func testStorePath(t *testing.T) string {
	t.Helper()

	return filepath.Join(t.TempDir(), "credentials.toml")
}

func openTestStore(t *testing.T, path, password string) *Store {
	t.Helper()

	s, err := Open(path, []byte(password), nil)
	require.NoError(t, err)

	return s
}

func acmeInput() ProfileInput {
	return ProfileInput{
		Name:         "acme",
		HostBaseURL:  "https://fts.acme.example",
		OAuthBaseURL: "https://idcs.acme.example",
		OAuthScope:   "urn:opc:resource:consumer::all",
		ClientID:     "acme-client",
		ClientSecret: "acme-secret",
	}
}

func TestOpen_FirstRunCreatesEncryptionSection(t *testing.T) {
	path := testStorePath(t)
	openTestStore(t, path, "pw")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, `["encryption"]`)
	assert.Contains(t, content, "salt = ")
	assert.Contains(t, content, "key_check = ")
}

func TestOpen_WrongPasswordIsFatal(t *testing.T) {
	path := testStorePath(t)
	openTestStore(t, path, "right")

	_, err := Open(path, []byte("wrong"), nil)
	assert.ErrorIs(t, err, secretbox.ErrKeyCheckFailed)
}

func TestOpen_SamePasswordReopens(t *testing.T) {
	path := testStorePath(t)
	s := openTestStore(t, path, "pw")
	require.NoError(t, s.Save(acmeInput()))

	reopened := openTestStore(t, path, "pw")

	p, err := reopened.Get("acme")
	require.NoError(t, err)

	secret, err := reopened.Secret(p)
	require.NoError(t, err)
	assert.Equal(t, "acme-secret", secret)
}

func TestSave_EncryptsSecretAtRest(t *testing.T) {
	path := testStorePath(t)
	s := openTestStore(t, path, "pw")
	require.NoError(t, s.Save(acmeInput()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "acme-secret")

	p, err := s.Get("acme")
	require.NoError(t, err)
	assert.NotEqual(t, "acme-secret", p.ClientSecretEncrypted)

	secret, err := s.Secret(p)
	require.NoError(t, err)
	assert.Equal(t, "acme-secret", secret)
}

func TestSave_AggregatesMissingFields(t *testing.T) {
	s := openTestStore(t, testStorePath(t), "pw")

	err := s.Save(ProfileInput{Name: "", HostBaseURL: "https://h", ClientSecret: ""})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Missing, "customer name")
	assert.Contains(t, verr.Missing, "OAuth base URL")
	assert.Contains(t, verr.Missing, "OAuth scope")
	assert.Contains(t, verr.Missing, "client ID")
	assert.Contains(t, verr.Missing, "client secret")
	assert.NotContains(t, verr.Missing, "host base URL")
}

func TestSave_PreservesOtherSections(t *testing.T) {
	path := testStorePath(t)
	s := openTestStore(t, path, "pw")

	require.NoError(t, s.Save(acmeInput()))

	other := acmeInput()
	other.Name = "globex"
	other.ClientID = "globex-client"
	require.NoError(t, s.Save(other))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// Updating acme must leave the globex section lines untouched.
	updated := acmeInput()
	updated.ClientID = "acme-client-v2"
	require.NoError(t, s.Save(updated))

	after, err := os.ReadFile(path)
	require.NoError(t, err)

	globexBefore := extractSection(t, string(before), "globex")
	globexAfter := extractSection(t, string(after), "globex")
	assert.Equal(t, globexBefore, globexAfter)

	p, err := s.Get("acme")
	require.NoError(t, err)
	assert.Equal(t, "acme-client-v2", p.ClientID)
}

// extractSection returns the raw lines of one section for byte-level
// comparison across writes.
func extractSection(t *testing.T, content, name string) []string {
	t.Helper()

	lines := strings.Split(content, "\n")
	headerLine, start := findSectionHeader(lines, name)
	require.GreaterOrEqual(t, headerLine, 0, "section %q not found", name)

	return lines[headerLine:findSectionEnd(lines, start)]
}

func TestSave_UpdateDoesNotDuplicateKeys(t *testing.T) {
	path := testStorePath(t)
	s := openTestStore(t, path, "pw")

	require.NoError(t, s.Save(acmeInput()))
	require.NoError(t, s.Save(acmeInput()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(string(data), "client_id = "))
}

func TestDelete_RemovesOnlyNamedSection(t *testing.T) {
	path := testStorePath(t)
	s := openTestStore(t, path, "pw")

	require.NoError(t, s.Save(acmeInput()))
	other := acmeInput()
	other.Name = "globex"
	require.NoError(t, s.Save(other))

	require.NoError(t, s.Delete("acme"))

	profiles, err := s.Load()
	require.NoError(t, err)
	assert.NotContains(t, profiles, "acme")
	assert.Contains(t, profiles, "globex")

	// Encryption metadata survives deletion.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `["encryption"]`)
}

func TestDelete_MissingAndReserved(t *testing.T) {
	s := openTestStore(t, testStorePath(t), "pw")

	assert.ErrorIs(t, s.Delete("nobody"), ErrNotFound)
	assert.ErrorIs(t, s.Delete(EncryptionSection), ErrReservedName)
}

func TestListNames_SortedCaseInsensitive(t *testing.T) {
	s := openTestStore(t, testStorePath(t), "pw")

	for _, name := range []string{"Zeta", "alpha", "Beta"} {
		in := acmeInput()
		in.Name = name
		require.NoError(t, s.Save(in))
	}

	names, err := s.ListNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "Beta", "Zeta"}, names)
}

func TestLoad_ExcludesEncryptionSection(t *testing.T) {
	s := openTestStore(t, testStorePath(t), "pw")
	require.NoError(t, s.Save(acmeInput()))

	profiles, err := s.Load()
	require.NoError(t, err)
	assert.NotContains(t, profiles, EncryptionSection)
	assert.Len(t, profiles, 1)
}

func TestMissingFields_PartialProfileIsInvalid(t *testing.T) {
	p := CustomerProfile{Name: "acme", HostBaseURL: "https://h"}
	assert.False(t, p.Complete())

	full := CustomerProfile{
		Name:                  "acme",
		HostBaseURL:           "h",
		OAuthBaseURL:          "o",
		OAuthScope:            "s",
		ClientID:              "c",
		ClientSecretEncrypted: "x",
	}
	assert.True(t, full.Complete())
}
