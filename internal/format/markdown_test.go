package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUTF16Len(t *testing.T) {
	assert.Equal(t, 5, UTF16Len("hello"))
	assert.Equal(t, 2, UTF16Len("é!"))
	assert.Equal(t, 2, UTF16Len("🔄"))
	assert.Equal(t, 4, UTF16Len("✅ 🔄"))
}

func TestParseMarkdown_Spans(t *testing.T) {
	res := ParseMarkdown("**Gym** at `07:00` is _daily_")
	assert.Equal(t, "Gym at 07:00 is daily", res.Text)
	require.Len(t, res.Entities, 3)

	assert.Equal(t, "bold", res.Entities[0].Type)
	assert.Equal(t, 0, res.Entities[0].Offset)
	assert.Equal(t, 3, res.Entities[0].Length)

	assert.Equal(t, "code", res.Entities[1].Type)
	assert.Equal(t, 7, res.Entities[1].Offset)
	assert.Equal(t, 5, res.Entities[1].Length)

	assert.Equal(t, "italic", res.Entities[2].Type)
	assert.Equal(t, 16, res.Entities[2].Offset)
}

func TestParseMarkdown_HeaderAndEmojiOffsets(t *testing.T) {
	res := ParseMarkdown("# Stats\n🔄 **7** days")
	assert.Equal(t, "Stats\n🔄 7 days", res.Text)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, 0, res.Entities[0].Offset)
	assert.Equal(t, 5, res.Entities[0].Length)
	// "Stats\n" is 6 units, the emoji 2 and the space 1.
	assert.Equal(t, 9, res.Entities[1].Offset)
}

func TestParseMarkdown_LeavesSnakeCaseAlone(t *testing.T) {
	res := ParseMarkdown("call send_report now")
	assert.Equal(t, "call send_report now", res.Text)
	assert.Empty(t, res.Entities)
}

func TestBuilder_DoesNotInterpretText(t *testing.T) {
	var b Builder
	res := b.Bold("**not markup**").Text("\n\n_plain_ ").Result()
	assert.Equal(t, "**not markup**\n\n_plain_", res.Text)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, 14, res.Entities[0].Length)
}
