// Package position persists per-book reading positions so a session can be
// resumed where the reader left off.
package position

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"ebr/common"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	book_id       TEXT PRIMARY KEY,
	chapter       INTEGER NOT NULL,
	page          INTEGER NOT NULL,
	scroll_offset INTEGER NOT NULL,
	mode          TEXT NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS prefs (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Position is the durable record of where a reader left off in a book.
type Position struct {
	Chapter      int
	Page         int
	ScrollOffset int
	Mode         common.Mode
}

// Store keeps one position record per book identity plus global reader
// preferences in a local SQLite database. Records are written on chapter
// change and shutdown, read once when a book is opened.
type Store struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	log  *zap.Logger
}

// Open creates or opens the positions database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("unable to open positions database %s: %w", path, err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to prepare positions schema: %w", err)
	}
	return &Store{conn: conn, log: log}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Save upserts the book's position. Failures are reported to the caller,
// which is expected to log and swallow them - a failed position write must
// never block reading.
func (s *Store) Save(bookID string, pos Position) error {
	if !pos.Mode.IsValid() {
		return fmt.Errorf("refusing to save invalid mode %d", int(pos.Mode))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := sqlitex.Execute(s.conn, `
		INSERT INTO positions (book_id, chapter, page, scroll_offset, mode, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (book_id) DO UPDATE SET
			chapter = excluded.chapter,
			page = excluded.page,
			scroll_offset = excluded.scroll_offset,
			mode = excluded.mode,
			updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{bookID, pos.Chapter, pos.Page, pos.ScrollOffset, pos.Mode.String(), time.Now().Unix()},
		})
	if err != nil {
		return fmt.Errorf("unable to save position for %s: %w", bookID, err)
	}
	return nil
}

// Load returns the raw stored record, reporting whether one exists.
func (s *Store) Load(bookID string) (Position, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		pos   Position
		found bool
	)
	err := sqlitex.Execute(s.conn, `
		SELECT chapter, page, scroll_offset, mode FROM positions WHERE book_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{bookID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				pos.Chapter = int(stmt.ColumnInt64(0))
				pos.Page = int(stmt.ColumnInt64(1))
				pos.ScrollOffset = int(stmt.ColumnInt64(2))
				mode, err := common.ParseMode(stmt.ColumnText(3))
				if err != nil {
					return fmt.Errorf("corrupted record: %w", err)
				}
				pos.Mode = mode
				found = true
				return nil
			},
		})
	if err != nil {
		return Position{}, false, fmt.Errorf("unable to load position for %s: %w", bookID, err)
	}
	return pos, found, nil
}

// Restore loads and validates a position against the current book. A book
// file may have changed since the record was written, so out-of-range or
// corrupted records fall back to the beginning of the book with the default
// mode. Recovery is local: it is logged, never surfaced.
func (s *Store) Restore(bookID string, chapterCount int, defaultMode common.Mode) Position {
	fallback := Position{Mode: defaultMode}

	pos, found, err := s.Load(bookID)
	if err != nil {
		s.log.Warn("Unable to restore reading position, starting from the beginning",
			zap.String("book", bookID), zap.Error(err))
		return fallback
	}
	if !found {
		return fallback
	}

	if pos.Chapter < 0 || pos.Chapter >= chapterCount {
		s.log.Warn("Stored reading position is out of range, starting from the beginning",
			zap.String("book", bookID),
			zap.Int("stored_chapter", pos.Chapter),
			zap.Int("chapters", chapterCount))
		return fallback
	}
	if pos.Page < 0 || pos.ScrollOffset < 0 {
		s.log.Warn("Stored reading position is corrupted, starting from the beginning",
			zap.String("book", bookID),
			zap.Int("page", pos.Page),
			zap.Int("offset", pos.ScrollOffset))
		return fallback
	}
	return pos
}

// Forget removes the book's record, if any.
func (s *Store) Forget(bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := sqlitex.Execute(s.conn, `DELETE FROM positions WHERE book_id = ?`,
		&sqlitex.ExecOptions{Args: []any{bookID}})
	if err != nil {
		return fmt.Errorf("unable to forget position for %s: %w", bookID, err)
	}
	return nil
}

// DefaultMode returns the stored global mode preference, used for books
// with no position record yet.
func (s *Store) DefaultMode(fallback common.Mode) common.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := fallback
	err := sqlitex.Execute(s.conn, `SELECT value FROM prefs WHERE key = 'default_mode'`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				m, err := common.ParseMode(stmt.ColumnText(0))
				if err != nil {
					return err
				}
				mode = m
				return nil
			},
		})
	if err != nil {
		s.log.Warn("Unable to read default mode preference", zap.Error(err))
		return fallback
	}
	return mode
}

// SetDefaultMode stores the global mode preference.
func (s *Store) SetDefaultMode(mode common.Mode) error {
	if !mode.IsValid() {
		return fmt.Errorf("refusing to save invalid mode %d", int(mode))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := sqlitex.Execute(s.conn, `
		INSERT INTO prefs (key, value) VALUES ('default_mode', ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		&sqlitex.ExecOptions{Args: []any{mode.String()}})
	if err != nil {
		return fmt.Errorf("unable to save default mode: %w", err)
	}
	return nil
}
