package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/geo"
	"github.com/ftl/cellbroadcast/gsm"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const inMemory = ":memory:"

// SQLite is the message history backed by an SQLite database file.
type SQLite struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// Open the SQLite database at the configured path and apply the schema. Use ":memory:" for a transient database.
func Open(cfg Config, log zerolog.Logger) (*SQLite, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer, and an in-memory database exists only within one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	if path != inMemory {
		_, _ = db.Exec("PRAGMA journal_mode = WAL")
		_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	}

	result := &SQLite{db: db, log: log, now: time.Now}
	if err := result.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return result, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert records the given message and returns the ID of the new record.
func (s *SQLite) Insert(ctx context.Context, slot int, message cb.Message, broadcast bool) (string, error) {
	geometries, err := geo.MarshalGeometries(message.Geometries)
	if err != nil {
		return "", err
	}
	receivedAt := message.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages(id, slot, format, message_id, serial, dcs, total_pages, plmn, lac, cid, language, body, geometries, max_wait_ms, received_at, broadcast)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, slot, int(message.Header.Format), int(message.Header.MessageIdentifier), int(message.Header.SerialNumber),
		int(message.Header.DataCodingScheme), message.Header.TotalPages,
		message.Location.PLMN, message.Location.LAC, message.Location.CID,
		nullStr(message.Language), message.Body, string(geometries), message.MaximumWaitTime.Milliseconds(),
		receivedAt.UnixMilli(), broadcast,
	)
	if err != nil {
		return "", err
	}
	s.log.Debug().Str("id", id).Int("slot", slot).Stringer("identity", message.Identity()).Bool("broadcast", broadcast).Msg("message recorded")
	return id, nil
}

// MarkBroadcast marks the record with the given ID as broadcast.
func (s *SQLite) MarkBroadcast(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET broadcast = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectColumns = `id, slot, format, message_id, serial, dcs, total_pages, plmn, lac, cid, language, body, geometries, max_wait_ms, received_at, broadcast`

// FindPending returns the messages with the given identity that were not broadcast yet and were received after since,
// ordered by the time they were received.
func (s *SQLite) FindPending(ctx context.Context, identity cb.Identity, since time.Time) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM messages
		 WHERE message_id = ? AND serial = ? AND broadcast = 0 AND received_at > ?
		 ORDER BY received_at, id`,
		int(identity.MessageIdentifier), int(identity.SerialNumber), since.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

// HasReceived reports whether a message matching the given query was already received, no matter if it was
// broadcast or still waits for geo-fencing.
func (s *SQLite) HasReceived(ctx context.Context, query DuplicateQuery) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE message_id = ? AND serial = ? AND plmn = ? AND lac = ? AND cid = ? AND received_at > ?`,
		int(query.Identity.MessageIdentifier), int(query.Identity.SerialNumber),
		query.Location.PLMN, query.Location.LAC, query.Location.CID, query.Since.UnixMilli(),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Get returns the record with the given ID.
func (s *SQLite) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM messages WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return record, err
}

// Prune deletes all records received before the given time and returns the number of deleted records.
func (s *SQLite) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE received_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var record Record
	var format, messageID, serial, dcs, total, lac, cid int
	var plmn, body string
	var language, geometries sql.NullString
	var maxWaitMS, receivedAtMS int64
	var broadcast bool
	err := row.Scan(&record.ID, &record.Slot, &format, &messageID, &serial, &dcs, &total,
		&plmn, &lac, &cid, &language, &body, &geometries, &maxWaitMS, &receivedAtMS, &broadcast)
	if err != nil {
		return Record{}, err
	}

	decodedGeometries, err := geo.UnmarshalGeometries([]byte(geometries.String))
	if err != nil {
		return Record{}, fmt.Errorf("record %s: invalid geometries: %w", record.ID, err)
	}

	record.Broadcast = broadcast
	record.Message = cb.Message{
		Header: cb.Header{
			Format:            cb.Format(format),
			SerialNumber:      cb.SerialNumber(serial),
			MessageIdentifier: cb.MessageIdentifier(messageID),
			DataCodingScheme:  byte(dcs),
			PageIndex:         1,
			TotalPages:        total,
		},
		Location:        gsm.CellLocation{PLMN: plmn, LAC: lac, CID: cid},
		ReceivedAt:      time.UnixMilli(receivedAtMS),
		Language:        language.String,
		Body:            body,
		Geometries:      decodedGeometries,
		MaximumWaitTime: time.Duration(maxWaitMS) * time.Millisecond,
	}
	return record, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
