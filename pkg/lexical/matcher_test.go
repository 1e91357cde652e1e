package lexical

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	require.Equal(t, "acme corp", Canonicalize("  Acme   Corp!! "))
	require.Equal(t, "typescript", Canonicalize("TypeScript"))
	require.Equal(t, "", Canonicalize("   "))
}

func TestTokensDropsStopwords(t *testing.T) {
	toks := Tokens("Alice works at the big company")
	require.NotContains(t, toks, "the")
	require.NotContains(t, toks, "at")
	require.Contains(t, toks, "alice")
	require.Contains(t, toks, "company")
}

func TestCompileAndScanFindsEntities(t *testing.T) {
	dict, err := Compile([]EntityName{
		{ID: "alice", Label: "Alice"},
		{ID: "acme", Label: "Acme Corp", Aliases: []string{"Acme"}},
	})
	require.NoError(t, err)

	matches := dict.Scan("Alice works at Acme building great things")
	require.NotEmpty(t, matches)

	var foundAlice, foundAcme bool
	for _, m := range matches {
		for _, id := range m.EntityIDs {
			if id == "alice" {
				foundAlice = true
			}
			if id == "acme" {
				foundAcme = true
			}
		}
	}
	require.True(t, foundAlice)
	require.True(t, foundAcme)
}

func TestCompileEmptyIsGraceful(t *testing.T) {
	dict, err := Compile(nil)
	require.NoError(t, err)
	require.Empty(t, dict.Scan("anything at all"))
}
