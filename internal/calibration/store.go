package calibration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/mouthtrack/internal/motion"
)

// DefaultFileName is used when no patient is given.
const DefaultFileName = "max_distances.txt"

// Store reads and writes one calibration file. It is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the stored maxima. A missing file yields zero values and no
// error. A malformed file yields the fields that could be read together with
// the parse error.
func (s *Store) Load() (motion.CalibrationResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save replaces the stored maxima.
func (s *Store) Save(res motion.CalibrationResults) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(res)
}

// Update stores value as the maximum for mode, keeping the other axes.
// Unreadable fields of the existing file are overwritten with zero.
func (s *Store) Update(mode motion.Mode, value float64) (motion.CalibrationResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.load()
	var perr *ParseError
	if err != nil && !errors.As(err, &perr) {
		return res, err
	}

	switch mode {
	case motion.ModeOpen:
		res.MaxOpen = value
	case motion.ModeLeft:
		res.MaxLeft = value
	case motion.ModeRight:
		res.MaxRight = value
	default:
		return res, fmt.Errorf("cannot update calibration for mode %q", mode)
	}
	return res, s.save(res)
}

// Reset removes the stored maxima.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing calibration file: %w", err)
	}
	return nil
}

func (s *Store) load() (motion.CalibrationResults, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return motion.CalibrationResults{}, nil
	}
	if err != nil {
		return motion.CalibrationResults{}, fmt.Errorf("reading calibration file: %w", err)
	}
	return Parse(data)
}

// save writes through a temporary file in the same directory so a crash never
// leaves a truncated file behind.
func (s *Store) save(res motion.CalibrationResults) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating calibration directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".calibration-*")
	if err != nil {
		return fmt.Errorf("creating temporary calibration file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(Format(res)); err != nil {
		tmp.Close()
		return fmt.Errorf("writing calibration file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing calibration file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing calibration file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing calibration file: %w", err)
	}
	return nil
}

// PathFor returns the calibration file of a patient inside dir.
func PathFor(dir, patient string) string {
	slug := Slug(patient)
	if slug == "" {
		return filepath.Join(dir, DefaultFileName)
	}
	return filepath.Join(dir, "max_distances_"+slug+".txt")
}

// Slug turns a patient name into a file-name-safe identifier
// (e.g., "Jiří Novák" -> "jiri-novak", "张三" -> "张三"). Letters and digits
// of any script are kept; diacritics are removed.
func Slug(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)
	name = strings.ToLower(name)

	var b strings.Builder
	dash := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
