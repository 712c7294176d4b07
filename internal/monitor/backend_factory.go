package monitor

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildSnapshotBackendFromDSN selects a snapshot backend by DSN scheme:
// memory://, file://<path> (or a bare path), sqlite://<path>, and
// postgres://. An empty DSN disables persistence and returns nil.
func BuildSnapshotBackendFromDSN(dsn string) (SnapshotBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot DSN: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if factory, ok := lookupSnapshotBackendFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "":
		// A bare filesystem path.
		return NewJSONFileSnapshotBackend(dsn), nil
	case "file":
		path := filePathFromDSN(parsed)
		if path == "" {
			return nil, fmt.Errorf("%w: file DSN carries no path", ErrInvalidInput)
		}
		return NewJSONFileSnapshotBackend(path), nil
	case "memory", "mem", "inmem":
		return NewInMemorySnapshotBackend(), nil
	case "sqlite", "sqlite3":
		path := filePathFromDSN(parsed)
		if path == "" {
			return nil, fmt.Errorf("%w: sqlite DSN carries no path", ErrInvalidInput)
		}
		return NewSQLiteSnapshotBackend(path)
	case "postgres", "postgresql":
		return NewPostgresSnapshotBackend(dsn)
	case "mysql", "redis":
		return nil, fmt.Errorf("%w: snapshot backend %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported snapshot backend scheme: %s", scheme)
	}
}

// filePathFromDSN pulls the filesystem path out of path-style DSNs.
// file:///var/x.json puts it in Path, file:x.json in Opaque, and
// file://x.json in Host.
func filePathFromDSN(parsed *url.URL) string {
	for _, candidate := range []string{parsed.Path, parsed.Opaque, parsed.Host} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
