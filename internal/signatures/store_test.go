package signatures

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kleaSCM/tunnelscope/internal/model"
)

func TestParseEnvelopedForm(t *testing.T) {
	data := []byte(`{"version":1,"updatedAt":"2026-01-01","signatures":[{"label":"tiktok","domains":["tiktok.com"]}]}`)
	sigs := Parse(data)
	require.Len(t, sigs, 1)
	require.Equal(t, "tiktok", sigs[0].Label)
}

func TestParseBareArrayForm(t *testing.T) {
	data := []byte(`[{"label":"tiktok","domains":["tiktok.com"]}]`)
	sigs := Parse(data)
	require.Len(t, sigs, 1)
	require.Equal(t, "tiktok", sigs[0].Label)
}

func TestParseMalformedReturnsNil(t *testing.T) {
	require.Nil(t, Parse([]byte("not json")))
}

func TestLoadOnMissingFileReturnsNil(t *testing.T) {
	require.Nil(t, Load(filepath.Join(t.TempDir(), "missing.json")))
}

func TestValidateEmptySignatures(t *testing.T) {
	err := Validate(nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "emptySignatures", verr.Kind)
}

func TestValidateInvalidLabel(t *testing.T) {
	err := Validate([]model.AppSignature{{Label: "  ", Domains: []string{"example.com"}}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "invalidLabel", verr.Kind)
}

func TestValidateInvalidDomain(t *testing.T) {
	cases := []string{"", ".example.com", "example.com.", "https://example.com", "nodothere"}
	for _, d := range cases {
		err := Validate([]model.AppSignature{{Label: "app", Domains: []string{d}}})
		var verr *ValidationError
		require.ErrorAsf(t, err, &verr, "domain %q should be invalid", d)
		require.Equal(t, "invalidDomain", verr.Kind)
	}
}

func TestValidateDuplicateLabelCaseInsensitive(t *testing.T) {
	err := Validate([]model.AppSignature{
		{Label: "TikTok", Domains: []string{"tiktok.com"}},
		{Label: "tiktok", Domains: []string{"tiktokcdn.com"}},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "duplicateLabel", verr.Kind)
}

func TestValidateAcceptsWildcardDomain(t *testing.T) {
	err := Validate([]model.AppSignature{{Label: "app", Domains: []string{"*.example.com"}}})
	require.NoError(t, err)
}

func TestNormalizeTrimsLowercasesDedupesSorts(t *testing.T) {
	out := Normalize([]model.AppSignature{
		{Label: "  TikTok  ", Domains: []string{"TikTok.com", "tiktok.com", " Zeta.com", "", "alpha.com"}},
	})
	require.Len(t, out, 1)
	require.Equal(t, "TikTok", out[0].Label)
	require.Equal(t, []string{"alpha.com", "tiktok.com", "zeta.com"}, out[0].Domains)
}

func TestWriteThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signatures.json")
	sigs := []model.AppSignature{{Label: "app", Domains: []string{"example.com"}}}

	require.NoError(t, Write(sigs, path, "2026-01-01"))
	loaded := Load(path)
	require.Len(t, loaded, 1)
	require.Equal(t, "app", loaded[0].Label)
}

func TestWriteIfMissingDoesNotOverwriteExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signatures.json")
	require.NoError(t, Write([]model.AppSignature{{Label: "first", Domains: []string{"first.com"}}}, path, "v1"))

	require.NoError(t, WriteIfMissing([]model.AppSignature{{Label: "second", Domains: []string{"second.com"}}}, path, "v2"))

	loaded := Load(path)
	require.Len(t, loaded, 1)
	require.Equal(t, "first", loaded[0].Label)
}

func TestAtomicWriteLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signatures.json")
	require.NoError(t, Write([]model.AppSignature{{Label: "app", Domains: []string{"example.com"}}}, path, "v1"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "signatures.json", entries[0].Name())
}
