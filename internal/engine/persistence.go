package engine

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Persistence handles the disk I/O for the MemStore. Every account lives in
// its own JSON file.
type Persistence struct {
	DataDir string
	Logger  zerolog.Logger
	mu      sync.Mutex // Protects concurrent writes to the filesystem
}

type accountFile struct {
	Account     string      `json:"account"`
	Collections accountData `json:"collections"`
}

// NewPersistence initializes a persistence handler rooted at dir.
func NewPersistence(dir string, logger zerolog.Logger) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Persistence{DataDir: dir, Logger: logger}, nil
}

func accountFileName(account string) string {
	name := strings.NewReplacer("://", "_", "/", "_", ":", "_").Replace(account)
	return name + ".json"
}

// SaveAccount writes a single account's records to a JSON file atomically.
func (p *Persistence) SaveAccount(account string, data accountData) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := filepath.Join(p.DataDir, accountFileName(account))
	tempPath := filePath + ".tmp"

	bytes, err := json.MarshalIndent(accountFile{Account: account, Collections: data}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tempPath, bytes, 0644); err != nil {
		return err
	}
	// The rename swaps the file in one step: readers see the old or the new
	// content, never a partial write.
	return os.Rename(tempPath, filePath)
}

// LoadAll returns every account found in the data directory. Unreadable
// files are skipped with a warning.
func (p *Persistence) LoadAll() (map[string]accountData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := make(map[string]accountData)

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			p.Logger.Warn().Err(err).Str("file", file.Name()).Msg("could not read account file")
			continue
		}

		var af accountFile
		if err := json.Unmarshal(content, &af); err != nil {
			p.Logger.Warn().Err(err).Str("file", file.Name()).Msg("could not parse account file")
			continue
		}
		if af.Account == "" {
			p.Logger.Warn().Str("file", file.Name()).Msg("account file has no account")
			continue
		}
		if af.Collections == nil {
			af.Collections = accountData{}
		}
		all[af.Account] = af.Collections
	}
	return all, nil
}
