package recall

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeDedupesByLayerAndID(t *testing.T) {
	vector := []Item{{Layer: LayerMemory, ID: "m1", Score: 0.4, CreatedAt: 1, Sources: []string{SourceVector}}}
	lexical := []Item{{Layer: LayerMemory, ID: "m1", Score: 0.9, CreatedAt: 1, Sources: []string{SourceLexical}}}

	merged := merge(10, vector, lexical)
	require.Len(t, merged, 1)
	require.Equal(t, 0.9, merged[0].Score)
	require.ElementsMatch(t, []string{SourceVector, SourceLexical}, merged[0].Sources)
}

func TestMergeOrdersByScoreThenImportanceThenCreatedAt(t *testing.T) {
	items := []Item{
		{Layer: LayerFact, ID: "f1", Score: 0.5, Importance: 1, CreatedAt: 10},
		{Layer: LayerFact, ID: "f2", Score: 0.5, Importance: 5, CreatedAt: 1},
		{Layer: LayerMemory, ID: "m1", Score: 0.9, Importance: 1, CreatedAt: 1},
	}
	merged := merge(10, items)
	require.Len(t, merged, 3)
	require.Equal(t, "m1", merged[0].ID)
	require.Equal(t, "f2", merged[1].ID) // same score as f1, higher importance wins
	require.Equal(t, "f1", merged[2].ID)
}

func TestMergeTruncatesToLimit(t *testing.T) {
	items := []Item{
		{Layer: LayerMemory, ID: "a", Score: 0.9},
		{Layer: LayerMemory, ID: "b", Score: 0.8},
		{Layer: LayerMemory, ID: "c", Score: 0.7},
	}
	merged := merge(2, items)
	require.Len(t, merged, 2)
}

func TestRestrictToConversationsKeepsUnscopedItems(t *testing.T) {
	items := []Item{
		{Layer: LayerMemory, ID: "a", ConversationID: "c1"},
		{Layer: LayerMemory, ID: "b", ConversationID: "c2"},
		{Layer: LayerMemory, ID: "e1"}, // no conversation, never filtered
	}
	allowed := map[string]bool{"c1": true}
	out := restrictToConversations(items, allowed)
	var ids []string
	for _, it := range out {
		ids = append(ids, it.ID)
	}
	require.ElementsMatch(t, []string{"a", "e1"}, ids)
}
