package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	"github.com/ey-asu-rnd/streamguard/internal/testutil"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// writeFiles creates n files of size bytes, one minute apart, oldest first.
func writeFiles(t *testing.T, dir, ext string, n, size int) []string {
	t.Helper()
	paths := make([]string, n)
	for i := range n {
		p := filepath.Join(dir, fmt.Sprintf("%016d%s", i, ext))
		require.NoError(t, os.WriteFile(p, make([]byte, size), 0644))
		mt := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(p, mt, mt))
		paths[i] = p
	}
	return paths
}

func remaining(t *testing.T, dir string) []string {
	t.Helper()
	files, err := listFiles(dir)
	require.NoError(t, err)
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names
}

func TestManager_MaxFiles(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, ".seg", 5, 100)

	m := New(dir, config.RetentionConfig{MaxFiles: 2, Interval: time.Minute})
	r := m.RunCleanup()

	assert.Equal(t, 3, r.FilesDeleted)
	assert.Equal(t, int64(300), r.BytesFreed)
	assert.Equal(t, paths[:3], r.Deleted)
	assert.Equal(t, 2, r.FilesKept)
	assert.Empty(t, r.Errors)
	assert.Equal(t, []string{"0000000000000003.seg", "0000000000000004.seg"}, remaining(t, dir))

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Runs)
	assert.Equal(t, int64(3), stats.FilesDeleted)
	assert.Equal(t, int64(300), stats.BytesFreed)
}

func TestManager_MaxTotalMB(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, ".parquet", 4, 512*1024)

	m := New(dir, config.RetentionConfig{MaxTotalMB: 1, Interval: time.Minute})
	r := m.RunCleanup()

	assert.Equal(t, 2, r.FilesDeleted)
	assert.Equal(t, int64(1024*1024), r.BytesKept)
	assert.Len(t, remaining(t, dir), 2)
}

func TestManager_MaxAge(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, ".seg", 6, 10)

	m := New(dir, config.RetentionConfig{MaxAge: 10 * time.Minute, Interval: time.Minute})
	// Files are at base+0..5 minutes; cutoff is base+3m.
	m.now = func() time.Time { return base.Add(13 * time.Minute) }

	r := m.RunCleanup()
	assert.Equal(t, 3, r.FilesDeleted)
	assert.Equal(t, 3, r.FilesKept)
	assert.Equal(t, base.Add(13*time.Minute), m.Stats().LastRunTime)
}

func TestManager_KeepsActiveFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, ".seg", 3, 2*1024*1024)

	m := New(dir, config.RetentionConfig{MaxTotalMB: 1, MaxAge: time.Second, Interval: time.Minute})
	m.now = func() time.Time { return base.Add(time.Hour) }

	r := m.RunCleanup()
	assert.Equal(t, 2, r.FilesDeleted)
	assert.Equal(t, []string{"0000000000000002.seg"}, remaining(t, dir))
}

func TestManager_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, ".seg", 3, 10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.seg"), 0755))

	m := New(dir, config.RetentionConfig{MaxFiles: 1, Interval: time.Minute})
	r := m.RunCleanup()

	assert.Equal(t, 2, r.FilesDeleted)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.DirExists(t, filepath.Join(dir, "sub.seg"))
}

func TestManager_DryRun(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, ".seg", 4, 10)

	m := New(dir, config.RetentionConfig{MaxFiles: 1, Interval: time.Minute})
	r := m.DryRun()

	assert.Equal(t, 3, r.FilesDeleted)
	assert.Len(t, remaining(t, dir), 4)
	assert.Zero(t, m.Stats().Runs)
}

func TestManager_MissingDir(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "absent"), config.RetentionConfig{MaxFiles: 1, Interval: time.Minute})
	r := m.RunCleanup()
	assert.Empty(t, r.Errors)
	assert.Zero(t, r.FilesDeleted)

	u, err := m.Usage()
	require.NoError(t, err)
	assert.Zero(t, u.Files)
}

func TestManager_Usage(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, ".seg", 2, 1024)
	writeFiles(t, dir, ".parquet", 1, 2048)

	m := New(dir, config.RetentionConfig{})
	u, err := m.Usage()
	require.NoError(t, err)

	assert.Equal(t, 3, u.Files)
	assert.Equal(t, int64(4096), u.TotalBytes)
	assert.Equal(t, map[string]int64{"seg": 2048, "parquet": 2048}, u.ByFormat)
	assert.True(t, base.Equal(u.Oldest), "oldest %v", u.Oldest)
	assert.True(t, base.Add(time.Minute).Equal(u.Newest), "newest %v", u.Newest)

	out := FormatDiskUsage(u)
	assert.Contains(t, out, "Sink Files: 3 (4.00 KB)")
	assert.Contains(t, out, "parquet:")
}

func TestManager_RunDisabled(t *testing.T) {
	m := New(t.TempDir(), config.RetentionConfig{})
	assert.False(t, m.Enabled())
	assert.NoError(t, testutil.WithTimeout(time.Second, func() error {
		return m.Run(context.Background())
	}))
}

func TestManager_RunPeriodic(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, ".seg", 5, 10)

	m := New(dir, config.RetentionConfig{MaxFiles: 2, Interval: 10 * time.Millisecond})
	gt := testutil.NewGoroutineTest(t)
	gt.GoWithContext(m.Run)

	require.NoError(t, testutil.Eventually(2*time.Second, 5*time.Millisecond, func() bool {
		return m.Stats().Runs > 0
	}))
	gt.Cancel()
	gt.Wait()

	assert.Len(t, remaining(t, dir), 2)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{3 * 1024 * 1024, "3.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}
