// Package retention prunes old sink output so unbounded runs keep a bounded
// footprint in the output directory.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	"github.com/ey-asu-rnd/streamguard/internal/constants"
	"github.com/ey-asu-rnd/streamguard/internal/logging"
)

// Manager deletes the oldest sink files once a limit is exceeded. The newest
// file is never deleted since a sink may still be appending to it.
type Manager struct {
	mu     sync.Mutex
	dir    string
	config config.RetentionConfig
	stats  Stats
	now    func() time.Time
	log    *slog.Logger
}

// Stats holds cumulative retention statistics.
type Stats struct {
	Runs         int64
	LastRunTime  time.Time
	FilesDeleted int64
	BytesFreed   int64
	Errors       int64
}

// Result holds the outcome of a single pass.
type Result struct {
	FilesDeleted int
	BytesFreed   int64
	FilesKept    int
	BytesKept    int64

	// Deleted lists removed (or, for DryRun, removable) paths, oldest first.
	Deleted []string
	Errors  []error
}

type fileInfo struct {
	path    string
	name    string
	size    int64
	modTime time.Time
}

// New creates a manager for the sink files in dir.
func New(dir string, cfg config.RetentionConfig) *Manager {
	return &Manager{
		dir:    dir,
		config: cfg,
		now:    time.Now,
		log:    logging.Component("retention"),
	}
}

// Enabled reports whether any limit is configured.
func (m *Manager) Enabled() bool { return m.config.Enabled() }

// RunCleanup deletes files until every limit is satisfied.
func (m *Manager) RunCleanup() Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := m.cleanup(false)

	m.stats.Runs++
	m.stats.LastRunTime = m.now()
	m.stats.FilesDeleted += int64(result.FilesDeleted)
	m.stats.BytesFreed += result.BytesFreed
	m.stats.Errors += int64(len(result.Errors))

	return result
}

// DryRun reports what RunCleanup would delete without deleting anything.
func (m *Manager) DryRun() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanup(true)
}

func (m *Manager) cleanup(dryRun bool) Result {
	var result Result

	files, err := listFiles(m.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, fmt.Errorf("list files: %w", err))
		}
		return result
	}

	var total int64
	for _, f := range files {
		total += f.size
	}
	count := len(files)

	var cutoff time.Time
	if m.config.MaxAge > 0 {
		cutoff = m.now().Add(-m.config.MaxAge)
	}
	maxBytes := int64(m.config.MaxTotalMB) * 1024 * 1024

	// files[len-1] is the active file.
	for _, f := range files[:max(count-1, 0)] {
		overCount := m.config.MaxFiles > 0 && count > m.config.MaxFiles
		overSize := maxBytes > 0 && total > maxBytes
		expired := !cutoff.IsZero() && f.modTime.Before(cutoff)
		if !overCount && !overSize && !expired {
			break
		}

		if !dryRun {
			if err := os.Remove(f.path); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("delete %s: %w", f.path, err))
				continue
			}
		}

		result.FilesDeleted++
		result.BytesFreed += f.size
		result.Deleted = append(result.Deleted, f.path)
		total -= f.size
		count--
	}

	result.FilesKept = count
	result.BytesKept = total
	return result
}

// Run performs a cleanup pass every interval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}

	interval := m.config.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Debug("retention started", "dir", m.dir, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r := m.RunCleanup()
			if r.FilesDeleted > 0 {
				m.log.Info("retention pass",
					"deleted", r.FilesDeleted,
					"freed", formatBytes(r.BytesFreed),
					"kept", r.FilesKept)
			}
			for _, err := range r.Errors {
				m.log.Warn("retention error", "error", err)
			}
		}
	}
}

// Stats returns cumulative statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// listFiles returns sink files in dir, oldest first. Sink files carry a
// zero-padded sequence number so name order is creation order.
func listFiles(dir string) ([]fileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []fileInfo
	for _, entry := range entries {
		if entry.IsDir() || !constants.IsSinkFile(filepath.Ext(entry.Name())) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{
			path:    filepath.Join(dir, entry.Name()),
			name:    entry.Name(),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].name < files[j].name
	})
	return files, nil
}

// DiskUsage summarizes the sink files in a directory.
type DiskUsage struct {
	Files      int
	TotalBytes int64
	ByFormat   map[string]int64
	Oldest     time.Time
	Newest     time.Time
}

// Usage reports the sink files currently in the directory.
func (m *Manager) Usage() (DiskUsage, error) {
	usage := DiskUsage{ByFormat: make(map[string]int64)}

	files, err := listFiles(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return usage, nil
		}
		return usage, err
	}

	for _, f := range files {
		usage.Files++
		usage.TotalBytes += f.size
		usage.ByFormat[strings.TrimPrefix(filepath.Ext(f.name), ".")] += f.size
		if usage.Oldest.IsZero() || f.modTime.Before(usage.Oldest) {
			usage.Oldest = f.modTime
		}
		if f.modTime.After(usage.Newest) {
			usage.Newest = f.modTime
		}
	}
	return usage, nil
}

// FormatDiskUsage returns a human-readable usage summary.
func FormatDiskUsage(u DiskUsage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sink Files: %d (%s)\n", u.Files, formatBytes(u.TotalBytes))

	formats := make([]string, 0, len(u.ByFormat))
	for f := range u.ByFormat {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	for _, f := range formats {
		fmt.Fprintf(&b, "  %-10s %s\n", f+":", formatBytes(u.ByFormat[f]))
	}
	return b.String()
}

func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/GB)
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/MB)
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/KB)
	default:
		return fmt.Sprintf("%d B", b)
	}
}
