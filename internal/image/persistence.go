package image

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/celerix-dev/celerix-aci/pkg/schema"
)

// InfoFile is the metadata file at the root of an image directory.
const InfoFile = "info.json"

// ErrNoInfo is returned when a directory does not hold an image.
var ErrNoInfo = errors.New("directory does not contain " + InfoFile)

// Info is the content of info.json.
type Info struct {
	Name      string   `json:"name,omitempty"`
	AccountID string   `json:"account_id"`
	DateTaken string   `json:"date_taken"`
	Username  string   `json:"username"`
	Schema    int      `json:"schema"`
	State     State    `json:"state"`
	Files     []string `json:"files"`
}

// Info builds the metadata describing the image.
func (i *Image) Info() (Info, error) {
	files, err := i.Files()
	if err != nil {
		return Info{}, err
	}
	return Info{
		Name:      i.Name,
		AccountID: i.AccountID,
		DateTaken: i.DateTaken.UTC().Format(time.RFC3339),
		Username:  i.User.Name(),
		Schema:    i.Schema,
		State:     i.State,
		Files:     files,
	}, nil
}

// Save writes the image to dir: info.json plus one file per record at
// <service>/<endpoint>/<guid>.json. Every file is replaced atomically.
func (i *Image) Save(dir string) error {
	info, err := i.Info()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for _, r := range i.Records {
		rel, err := r.Filepath()
		if err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := writeJSON(target, r); err != nil {
			return fmt.Errorf("save %s: %w", rel, err)
		}
	}
	return writeJSON(filepath.Join(dir, InfoFile), info)
}

// writeJSON writes v to a temporary file first and renames it into place,
// so a reader sees either the old file or the new one.
func writeJSON(filePath string, v any) error {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, bytes, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, filePath)
}

// ReadInfo reads and validates the info.json of an image directory.
func ReadInfo(dir string) (Info, error) {
	content, err := os.ReadFile(filepath.Join(dir, InfoFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{}, ErrNoInfo
		}
		return Info{}, err
	}
	return parseInfo(content)
}

func parseInfo(content []byte) (Info, error) {
	var info Info
	if err := json.Unmarshal(content, &info); err != nil {
		return Info{}, fmt.Errorf("parse %s: %w", InfoFile, err)
	}
	if info.State != Untransformed && info.State != Transformed {
		return Info{}, fmt.Errorf("%s: unknown state %q", InfoFile, info.State)
	}
	return info, nil
}

// IsInfoFile reports whether file is a readable info.json. A missing file is
// an error, an unparsable one is not.
func IsInfoFile(file string) (bool, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, ErrNoInfo
		}
		return false, err
	}
	_, err = parseInfo(content)
	return err == nil, nil
}

// IsImageDirectory reports whether dir holds a readable image.
func IsImageDirectory(dir string) bool {
	_, err := ReadInfo(dir)
	return err == nil
}

// Load reads the image saved in dir. The service and endpoint of each record
// come from its path.
func Load(dir string, user *schema.User) (*Image, error) {
	info, err := ReadInfo(dir)
	if err != nil {
		return nil, err
	}

	img := &Image{
		Name:      info.Name,
		AccountID: info.AccountID,
		User:      user,
		Schema:    info.Schema,
		State:     info.State,
	}
	if info.DateTaken != "" {
		if img.DateTaken, err = time.Parse(time.RFC3339, info.DateTaken); err != nil {
			return nil, fmt.Errorf("%s: date_taken: %w", InfoFile, err)
		}
	}

	for _, rel := range info.Files {
		parts := strings.Split(path.Clean(rel), "/")
		if len(parts) != 3 || slices.Contains(parts, "..") {
			return nil, fmt.Errorf("%s: unexpected record path %q", InfoFile, rel)
		}
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		rec := schema.NewRecord(parts[0], parts[1], nil)
		if err := json.Unmarshal(content, rec); err != nil {
			return nil, fmt.Errorf("parse %s: %w", rel, err)
		}
		img.Records = append(img.Records, rec)
	}
	return img, nil
}
