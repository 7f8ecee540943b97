package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElement(t *testing.T) {
	id := uuid.MustParse("7d4f7a0e-2f43-4a34-9b44-6f0d59a1c001")

	b, err := element("userId", id)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"userId":"7d4f7a0e-2f43-4a34-9b44-6f0d59a1c001"}]`, string(b))

	b, err = elementOf(map[string]any{"id": id, "userId": id})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"7d4f7a0e-2f43-4a34-9b44-6f0d59a1c001","userId":"7d4f7a0e-2f43-4a34-9b44-6f0d59a1c001"}]`, string(b))
}

func TestPulledAndActiveStoriesBindParams(t *testing.T) {
	sql := pulled("following", "userId", 2)
	assert.Contains(t, sql, "jsonb_array_elements(following) WITH ORDINALITY")
	assert.Contains(t, sql, "e.item->>'userId' <> $2")

	sql = activeStories(4)
	assert.Contains(t, sql, "> $4::timestamptz")
	assert.Contains(t, sql, "ORDER BY s.ord")
}

func TestPrefixed(t *testing.T) {
	assert.Equal(t, "a.id, a.handle, a.story", prefixed("a", "id, handle, story"))
}
