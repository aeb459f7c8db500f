package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"inkvoice/internal/config"
)

// ErrNotFound indicates the requested catalog record does not exist.
var ErrNotFound = errors.New("library: not found")

const schema = `
CREATE TABLE IF NOT EXISTS characters (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    voice_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS speeches (
    id TEXT PRIMARY KEY,
    chapter_id TEXT NOT NULL,
    order_index INTEGER NOT NULL,
    text TEXT NOT NULL,
    markup TEXT NOT NULL DEFAULT '',
    character_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_speeches_chapter ON speeches(chapter_id, order_index);

CREATE TABLE IF NOT EXISTS speech_artifacts (
    speech_id TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    format TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    voice_id TEXT NOT NULL DEFAULT '',
    synthesized_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chapter_audio_variants (
    chapter_id TEXT NOT NULL,
    bitrate_kbps INTEGER NOT NULL,
    path TEXT NOT NULL,
    duration_seconds INTEGER NOT NULL DEFAULT 0,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    PRIMARY KEY (chapter_id, bitrate_kbps)
);
`

// Store is a SQLite-backed Catalog implementation.
type Store struct {
	db   *sql.DB
	path string
}

var _ Catalog = (*Store)(nil)

// Open connects to the catalog database under the configured staging
// directory, creating the schema on first use.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.LibraryDatabasePath())
}

// OpenPath connects to a catalog database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create library schema: %w", err)
	}
	return &Store{db: db, path: dbPath}, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SpeechesForChapter returns the chapter's speeches in reading order.
func (s *Store) SpeechesForChapter(ctx context.Context, chapterID string) ([]Speech, error) {
	chapterID = strings.TrimSpace(chapterID)
	if chapterID == "" {
		return nil, errors.New("library: empty chapter id")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chapter_id, order_index, text, markup, character_id
         FROM speeches WHERE chapter_id = ? ORDER BY order_index ASC, id ASC`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("query speeches: %w", err)
	}
	defer rows.Close()

	speeches := make([]Speech, 0, 16)
	for rows.Next() {
		var speech Speech
		if err := rows.Scan(&speech.ID, &speech.ChapterID, &speech.OrderIndex, &speech.Text, &speech.Markup, &speech.CharacterID); err != nil {
			return nil, fmt.Errorf("scan speech: %w", err)
		}
		speeches = append(speeches, speech)
	}
	return speeches, rows.Err()
}

// VoiceForCharacter returns the character's assigned voice. Unknown
// characters and characters without an assignment both return "".
func (s *Store) VoiceForCharacter(ctx context.Context, characterID string) (string, error) {
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return "", nil
	}
	var voiceID string
	err := s.db.QueryRowContext(ctx, `SELECT voice_id FROM characters WHERE id = ?`, characterID).Scan(&voiceID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query character voice: %w", err)
	}
	return voiceID, nil
}

// ArtifactForSpeech returns the recorded artifact, or nil when absent.
func (s *Store) ArtifactForSpeech(ctx context.Context, speechID string) (*Artifact, error) {
	var (
		artifact Artifact
		stamp    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT speech_id, path, format, duration_ms, voice_id, synthesized_at
         FROM speech_artifacts WHERE speech_id = ?`, speechID).
		Scan(&artifact.SpeechID, &artifact.Path, &artifact.Format, &artifact.DurationMS, &artifact.VoiceID, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query speech artifact: %w", err)
	}
	if parsed, parseErr := time.Parse(time.RFC3339Nano, stamp); parseErr == nil {
		artifact.SynthesizedAt = parsed
	}
	return &artifact, nil
}

// SetSpeechArtifact records the artifact for a speech. A stale artifact
// (older synthesis time than the recorded one) is dropped without error so a
// cancelled or superseded run never clobbers newer work.
func (s *Store) SetSpeechArtifact(ctx context.Context, artifact Artifact) error {
	artifact.SpeechID = strings.TrimSpace(artifact.SpeechID)
	if artifact.SpeechID == "" {
		return errors.New("library: artifact missing speech id")
	}
	if artifact.SynthesizedAt.IsZero() {
		artifact.SynthesizedAt = time.Now().UTC()
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM speeches WHERE id = ?`, artifact.SpeechID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("library: speech %s: %w", artifact.SpeechID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check speech exists: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO speech_artifacts (speech_id, path, format, duration_ms, voice_id, synthesized_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(speech_id) DO UPDATE SET
            path = excluded.path,
            format = excluded.format,
            duration_ms = excluded.duration_ms,
            voice_id = excluded.voice_id,
            synthesized_at = excluded.synthesized_at
         WHERE excluded.synthesized_at >= speech_artifacts.synthesized_at`,
		artifact.SpeechID, artifact.Path, artifact.Format, artifact.DurationMS, artifact.VoiceID,
		artifact.SynthesizedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store speech artifact: %w", err)
	}
	return nil
}

// SetChapterAudioVariants atomically replaces the chapter's finished encodes.
func (s *Store) SetChapterAudioVariants(ctx context.Context, chapterID string, variants []AudioVariant) error {
	chapterID = strings.TrimSpace(chapterID)
	if chapterID == "" {
		return errors.New("library: empty chapter id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin variants tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chapter_audio_variants WHERE chapter_id = ?`, chapterID); err != nil {
		return fmt.Errorf("clear chapter variants: %w", err)
	}
	now := time.Now().UTC()
	for _, variant := range variants {
		createdAt := variant.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chapter_audio_variants (chapter_id, bitrate_kbps, path, duration_seconds, size_bytes, created_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			chapterID, variant.BitrateKbps, variant.Path, variant.DurationSeconds, variant.SizeBytes,
			createdAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert variant %dk: %w", variant.BitrateKbps, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit variants tx: %w", err)
	}
	return nil
}

// AudioVariantsForChapter returns the chapter's recorded encodes ordered by
// bitrate.
func (s *Store) AudioVariantsForChapter(ctx context.Context, chapterID string) ([]AudioVariant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chapter_id, bitrate_kbps, path, duration_seconds, size_bytes, created_at
         FROM chapter_audio_variants WHERE chapter_id = ? ORDER BY bitrate_kbps ASC`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("query chapter variants: %w", err)
	}
	defer rows.Close()

	var variants []AudioVariant
	for rows.Next() {
		var (
			variant AudioVariant
			stamp   string
		)
		if err := rows.Scan(&variant.ChapterID, &variant.BitrateKbps, &variant.Path, &variant.DurationSeconds, &variant.SizeBytes, &stamp); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		if parsed, parseErr := time.Parse(time.RFC3339Nano, stamp); parseErr == nil {
			variant.CreatedAt = parsed
		}
		variants = append(variants, variant)
	}
	return variants, rows.Err()
}

// UpsertSpeech inserts or updates a speech row. Exposed for seeding and for
// catalog synchronization tooling.
func (s *Store) UpsertSpeech(ctx context.Context, speech Speech) error {
	if strings.TrimSpace(speech.ID) == "" || strings.TrimSpace(speech.ChapterID) == "" {
		return errors.New("library: speech requires id and chapter id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO speeches (id, chapter_id, order_index, text, markup, character_id)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
            chapter_id = excluded.chapter_id,
            order_index = excluded.order_index,
            text = excluded.text,
            markup = excluded.markup,
            character_id = excluded.character_id`,
		speech.ID, speech.ChapterID, speech.OrderIndex, speech.Text, speech.Markup, speech.CharacterID)
	if err != nil {
		return fmt.Errorf("store speech: %w", err)
	}
	return nil
}

// UpsertCharacter inserts or updates a character's voice assignment.
func (s *Store) UpsertCharacter(ctx context.Context, id, name, voiceID string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("library: empty character id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO characters (id, name, voice_id) VALUES (?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET name = excluded.name, voice_id = excluded.voice_id`,
		id, name, voiceID)
	if err != nil {
		return fmt.Errorf("store character: %w", err)
	}
	return nil
}
