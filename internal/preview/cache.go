package preview

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"inkvoice/internal/config"
	"inkvoice/internal/fileutil"
	"inkvoice/internal/library"
	"inkvoice/internal/logging"
	"inkvoice/internal/services"
	"inkvoice/internal/tts"
)

const indexFile = "index.json"

// Sample is a voice preview ready to hand to a client.
type Sample struct {
	VoiceID string
	Format  string
	Data    []byte
	Cached  bool
}

type entry struct {
	VoiceID   string    `json:"voice_id"`
	Format    string    `json:"format"`
	File      string    `json:"file"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// Cache synthesizes and caches voice preview samples on disk.
type Cache struct {
	cfg      *config.Config
	catalog  library.Catalog
	provider tts.Provider
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]entry
	loaded  bool
	now     func() time.Time
}

// NewCache builds the preview cache. The index loads lazily on first use so
// construction never touches disk.
func NewCache(cfg *config.Config, catalog library.Catalog, provider tts.Provider, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		cfg:      cfg,
		catalog:  catalog,
		provider: provider,
		logger:   logging.NewComponentLogger(logger, "preview"),
		entries:  make(map[string]entry),
		now:      time.Now,
	}
}

// ForCharacter previews the voice assigned to a character, falling back to
// the configured default voice when the character has no assignment.
func (c *Cache) ForCharacter(ctx context.Context, characterID, sampleText string) (Sample, error) {
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return Sample{}, services.Wrap(services.ErrInvalidInput, "preview", "character", "character id required", nil)
	}
	voiceID, err := c.catalog.VoiceForCharacter(ctx, characterID)
	if err != nil {
		return Sample{}, services.Wrap(services.ErrUnavailable, "preview", "character", "resolve character voice", err)
	}
	if voiceID == "" {
		voiceID = c.cfg.TTS.DefaultVoice
	}
	return c.ForVoice(ctx, voiceID, sampleText)
}

// ForVoice returns the preview sample for a voice, synthesizing and caching
// it on first use. An empty sampleText selects the default preview sentence.
func (c *Cache) ForVoice(ctx context.Context, voiceID, sampleText string) (Sample, error) {
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		return Sample{}, services.Wrap(services.ErrInvalidVoice, "preview", "voice", "voice id required", nil)
	}
	text := strings.TrimSpace(sampleText)
	if text == "" {
		text = tts.PreviewText(voiceID)
	}

	if !c.cfg.Preview.Enabled {
		result, err := tts.PreviewVoice(ctx, c.provider, voiceID, text)
		if err != nil {
			return Sample{}, err
		}
		return Sample{VoiceID: voiceID, Format: result.Format, Data: result.Data}, nil
	}

	key := cacheKey(voiceID, text)
	if sample, ok := c.lookup(key, voiceID); ok {
		return sample, nil
	}

	result, err := tts.PreviewVoice(ctx, c.provider, voiceID, text)
	if err != nil {
		return Sample{}, err
	}
	if err := c.store(key, voiceID, result); err != nil {
		// The sample is still good even when caching it fails.
		c.logger.Warn("preview cache write failed",
			logging.String(logging.FieldVoice, voiceID),
			logging.Error(err))
	}
	return Sample{VoiceID: voiceID, Format: result.Format, Data: result.Data}, nil
}

// Clear removes every cached sample and the index.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.loaded = true
	if err := os.RemoveAll(c.cfg.Paths.PreviewCacheDir); err != nil {
		return fmt.Errorf("clear preview cache: %w", err)
	}
	return nil
}

// Count reports how many samples are currently indexed.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	return len(c.entries)
}

func (c *Cache) lookup(key, voiceID string) (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()

	ent, ok := c.entries[key]
	if !ok {
		return Sample{}, false
	}
	data, err := os.ReadFile(filepath.Join(c.cfg.Paths.PreviewCacheDir, ent.File))
	if err != nil || len(data) == 0 {
		// The file was removed or truncated behind our back. Treat it as a
		// miss and regenerate.
		delete(c.entries, key)
		c.saveLocked()
		return Sample{}, false
	}

	ent.LastUsed = c.now().UTC()
	c.entries[key] = ent
	c.saveLocked()
	return Sample{VoiceID: voiceID, Format: ent.Format, Data: data, Cached: true}, true
}

func (c *Cache) store(key, voiceID string, result tts.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()

	name := key + "." + result.Format
	path := filepath.Join(c.cfg.Paths.PreviewCacheDir, name)
	if err := fileutil.WriteFileAtomic(path, result.Data, 0o644); err != nil {
		return fmt.Errorf("write preview sample: %w", err)
	}

	now := c.now().UTC()
	c.entries[key] = entry{
		VoiceID:   voiceID,
		Format:    result.Format,
		File:      name,
		CreatedAt: now,
		LastUsed:  now,
	}
	c.evictLocked()
	return c.saveLocked()
}

// evictLocked drops the least recently used samples once the index exceeds
// the configured limit.
func (c *Cache) evictLocked() {
	limit := c.cfg.Preview.MaxEntries
	if limit <= 0 || len(c.entries) <= limit {
		return
	}
	type keyed struct {
		key string
		ent entry
	}
	ordered := make([]keyed, 0, len(c.entries))
	for key, ent := range c.entries {
		ordered = append(ordered, keyed{key, ent})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ent.LastUsed.Before(ordered[j].ent.LastUsed)
	})
	for _, victim := range ordered[:len(ordered)-limit] {
		os.Remove(filepath.Join(c.cfg.Paths.PreviewCacheDir, victim.ent.File))
		delete(c.entries, victim.key)
		c.logger.Debug("evicted preview sample",
			logging.String(logging.FieldVoice, victim.ent.VoiceID))
	}
}

func (c *Cache) loadLocked() {
	if c.loaded {
		return
	}
	c.loaded = true
	data, err := os.ReadFile(filepath.Join(c.cfg.Paths.PreviewCacheDir, indexFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("preview index unreadable, starting empty", logging.Error(err))
		}
		return
	}
	entries := make(map[string]entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("preview index corrupt, starting empty", logging.Error(err))
		return
	}
	c.entries = entries
}

func (c *Cache) saveLocked() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preview index: %w", err)
	}
	path := filepath.Join(c.cfg.Paths.PreviewCacheDir, indexFile)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write preview index: %w", err)
	}
	return nil
}

func cacheKey(voiceID, text string) string {
	sum := sha256.Sum256([]byte(voiceID + "\n" + text))
	return hex.EncodeToString(sum[:8])
}
