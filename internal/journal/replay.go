package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"marketsim/internal/schema"
)

// ReplayConfig controls journal replay.
type ReplayConfig struct {
	Dir             string
	FilePrefix      string
	DisableChecksum bool
	MaxPayloadSize  int
}

func (c ReplayConfig) withDefaults() ReplayConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the config is usable.
func (c ReplayConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("invalid replay config: Dir is empty")
	}
	if c.MaxPayloadSize < 0 {
		return fmt.Errorf("invalid replay config: MaxPayloadSize must be >= 0")
	}
	return nil
}

// Replay walks journal segments in index order and hands every record
// to the handler, enforcing strictly increasing sequence numbers.
func Replay(cfg ReplayConfig, handler func(schema.EventHeader, []byte) error) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("replay handler is nil")
	}
	files, err := collectFiles(cfg)
	if err != nil {
		return err
	}
	var lastSeq uint64
	for _, path := range files {
		if err := replayFile(cfg, path, handler, &lastSeq); err != nil {
			return err
		}
	}
	return nil
}

func collectFiles(cfg ReplayConfig) ([]string, error) {
	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, err
	}
	prefix := cfg.FilePrefix + "-"
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".jnl") {
			continue
		}
		files = append(files, filepath.Join(cfg.Dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func replayFile(cfg ReplayConfig, path string, handler func(schema.EventHeader, []byte) error, lastSeq *uint64) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		DisableChecksum: cfg.DisableChecksum,
		MaxPayloadSize:  cfg.MaxPayloadSize,
	})
	for {
		header, payload, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read %s: %w", path, err)
		}
		if header.Seq <= *lastSeq {
			return fmt.Errorf("read %s: seq %d after %d: %w", path, header.Seq, *lastSeq, ErrSeqNotMonotone)
		}
		*lastSeq = header.Seq
		if err := handler(header, payload); err != nil {
			return err
		}
	}
}
