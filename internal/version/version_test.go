package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	orig, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = orig, origCommit, origDate })

	Version, Commit, Date = "1.2.3", "", ""
	assert.Equal(t, "1.2.3", String())

	Commit = "abc1234"
	assert.Equal(t, "1.2.3 (abc1234)", String())

	Date = "2026-08-28"
	assert.Equal(t, "1.2.3 (abc1234) built 2026-08-28", String())
}
