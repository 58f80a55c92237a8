package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_ShouldIgnore(t *testing.T) {
	t.Run("ignores paths containing the log file name", func(t *testing.T) {
		m, err := NewMatcher([]string{"file_changes.log"}, nil)
		require.NoError(t, err)

		for _, p := range []string{
			"/watched/file_changes.log",
			"/watched/sub/file_changes.log.1",
			"file_changes.log",
			"/tmp/xfile_changes.logx",
		} {
			assert.True(t, m.ShouldIgnore(p), p)
		}
		assert.False(t, m.ShouldIgnore("/watched/notes.txt"))
	})

	t.Run("glob rules match full path or base name", func(t *testing.T) {
		m, err := NewMatcher(nil, []string{"*.swp", "**/.git/**"})
		require.NoError(t, err)

		assert.True(t, m.ShouldIgnore("/watched/.main.go.swp"))
		assert.True(t, m.ShouldIgnore("/watched/.git/index"))
		assert.False(t, m.ShouldIgnore("/watched/main.go"))
	})

	t.Run("skips blank and comment rules", func(t *testing.T) {
		m, err := NewMatcher([]string{"", "  ", "# comment"}, []string{"#*.tmp", ""})
		require.NoError(t, err)

		assert.False(t, m.ShouldIgnore("/watched/a.tmp"))
		assert.False(t, m.ShouldIgnore("/watched/# comment"))
	})

	t.Run("nil matcher ignores nothing", func(t *testing.T) {
		var m *Matcher
		assert.False(t, m.ShouldIgnore("/anything"))
	})
}

func TestNewMatcher_InvalidGlob(t *testing.T) {
	_, err := NewMatcher(nil, []string{"[unclosed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ignore glob")
}
