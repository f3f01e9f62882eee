package mirror

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/meltforce/intervals/internal/models"
	_ "modernc.org/sqlite"
)

// StateDB is the local SQLite cache: the mirrored routine catalog, and which
// routine files have already been uploaded so they are not re-sent.
type StateDB struct {
	db *sql.DB
}

// OpenStateDB opens (or creates) the SQLite state database at dir/state.db.
func OpenStateDB(dir string) (*StateDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "state.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS uploaded_files (
			path        TEXT PRIMARY KEY,
			size        INTEGER NOT NULL,
			hash        TEXT NOT NULL,
			uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS routines (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			phases      TEXT NOT NULL,
			hash        TEXT NOT NULL,
			synced_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating state tables: %w", err)
		}
	}

	return &StateDB{db: db}, nil
}

// IsUploaded checks if a file has already been uploaded with the same size and hash.
func (s *StateDB) IsUploaded(relPath string, size int64, hash string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM uploaded_files WHERE path = ? AND size = ? AND hash = ?`,
		relPath, size, hash,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkUploaded records that a file was successfully uploaded.
func (s *StateDB) MarkUploaded(relPath string, size int64, hash string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO uploaded_files (path, size, hash) VALUES (?, ?, ?)`,
		relPath, size, hash,
	)
	return err
}

// SyncOutcome describes what UpsertRoutine did.
type SyncOutcome int

const (
	SyncUnchanged SyncOutcome = iota
	SyncNew
	SyncUpdated
)

// UpsertRoutine stores a mirrored routine. Rows whose content hash matches the
// cached copy are left alone.
func (s *StateDB) UpsertRoutine(row models.RoutineRow) (SyncOutcome, error) {
	phases, err := json.Marshal(row.Phases)
	if err != nil {
		return SyncUnchanged, fmt.Errorf("encoding phases: %w", err)
	}
	hash := routineHash(row.Name, row.Description, phases)

	var existing string
	err = s.db.QueryRow(`SELECT hash FROM routines WHERE id = ?`, row.ID.String()).Scan(&existing)
	outcome := SyncUpdated
	switch {
	case err == sql.ErrNoRows:
		outcome = SyncNew
	case err != nil:
		return SyncUnchanged, fmt.Errorf("reading cached routine %s: %w", row.ID, err)
	case existing == hash:
		return SyncUnchanged, nil
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO routines (id, name, description, phases, hash, synced_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		row.ID.String(), row.Name, row.Description, string(phases), hash, time.Now().UTC(),
	)
	if err != nil {
		return SyncUnchanged, fmt.Errorf("caching routine %s: %w", row.ID, err)
	}
	return outcome, nil
}

// RemoveRoutinesExcept deletes cached routines whose ID is not in keep and
// returns how many were removed.
func (s *StateDB) RemoveRoutinesExcept(keep map[uuid.UUID]bool) (int, error) {
	cached, err := s.ListRoutines()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, r := range cached {
		if keep[r.ID] {
			continue
		}
		if _, err := s.db.Exec(`DELETE FROM routines WHERE id = ?`, r.ID.String()); err != nil {
			return removed, fmt.Errorf("removing cached routine %s: %w", r.ID, err)
		}
		removed++
	}
	return removed, nil
}

// ListRoutines returns the cached routines ordered by name.
func (s *StateDB) ListRoutines() ([]models.RoutineRow, error) {
	rows, err := s.db.Query(`SELECT id, name, description, phases FROM routines ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying cached routines: %w", err)
	}
	defer rows.Close()

	var result []models.RoutineRow
	for rows.Next() {
		var id, phases string
		var r models.RoutineRow
		if err := rows.Scan(&id, &r.Name, &r.Description, &phases); err != nil {
			return nil, fmt.Errorf("scanning cached routine: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("cached routine id %q: %w", id, err)
		}
		if err := json.Unmarshal([]byte(phases), &r.Phases); err != nil {
			return nil, fmt.Errorf("cached routine %s phases: %w", id, err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Close closes the state database.
func (s *StateDB) Close() error {
	return s.db.Close()
}

func routineHash(name, description string, phases []byte) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(description))
	h.Write([]byte{0})
	h.Write(phases)
	return hex.EncodeToString(h.Sum(nil))
}

// HashFile computes the SHA-256 hash of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
