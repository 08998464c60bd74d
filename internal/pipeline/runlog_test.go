package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLog_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "file_log.txt")
	l := NewRunLog(path)
	assert.Equal(t, path, l.Path())

	require.NoError(t, l.Append(context.Background(), "daPulire/a.xlsx", 80, 60))
	require.NoError(t, l.Append(context.Background(), "daPulire/b.xlsx", 10, 0))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"File: daPulire/a.xlsx, Righe: 80, Righe Pulite: 60\n"+
			"File: daPulire/b.xlsx, Righe: 10, Righe Pulite: 0\n",
		string(data))
}

func TestRunLog_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file_log.txt")
	l := NewRunLog(path)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Append(context.Background(), fmt.Sprintf("f%d.xlsx", i), i, i))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "File: f"), line)
	}
}
