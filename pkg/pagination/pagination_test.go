package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 5, 1, 8, 0, 0, 123456789, time.UTC), ID: uuid.New()}
	encoded := EncodeCursor(in)
	assert.NotContains(t, encoded, "=")

	out, err := ParseCursor(encoded)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, empty)

	for _, raw := range []string{"!!!", encodeRaw("no-separator"), encodeRaw("yesterday|" + uuid.NewString()), encodeRaw(time.Now().Format(time.RFC3339Nano) + "|nope")} {
		_, err := ParseCursor(raw)
		assert.Error(t, err, raw)
	}
}

func TestTrim(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	cursorOf := func(i int) Cursor { return Cursor{CreatedAt: base.Add(-time.Duration(i) * time.Minute), ID: ids[i]} }

	page, next := Trim([]int{0, 1, 2}, 2, cursorOf)
	assert.Equal(t, []int{0, 1}, page)
	require.NotEmpty(t, next)
	c, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, ids[1], c.ID)

	page, next = Trim([]int{0, 1}, 2, cursorOf)
	assert.Equal(t, []int{0, 1}, page)
	assert.Empty(t, next)
}

func encodeRaw(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
