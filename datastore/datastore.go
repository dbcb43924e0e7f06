// Package datastore records method runs as CSV files organized by user and
// project.
package datastore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// TimestampFormat is used in file names and the metadata header.
const TimestampFormat = "20060102_150405"

// DefaultExperiment names recordings with no experiment name.
const DefaultExperiment = "experiment"

// ErrInvalidName is returned for user, project or experiment names that
// cannot be used as a path segment.
var ErrInvalidName = errors.New("invalid name")

var invalidSegment = regexp.MustCompile(`[^a-zA-Z0-9 ._-]`)

// cleanSegment makes name safe to use as a single path segment.
func cleanSegment(name string) (string, error) {
	name = strings.TrimSpace(invalidSegment.ReplaceAllString(name, "_"))
	if name == "" || strings.Trim(name, ".") == "" || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	return name, nil
}

// Store is a directory of recordings: <dir>/<user>/<project>/<file>.csv.
type Store struct {
	dir string
	now func() time.Time
	log logrus.FieldLogger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(s *Store) { s.log = l } }

// WithClock sets the time source used for recording timestamps.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New returns a Store rooted at dir. The directory is created on first use.
func New(dir string, opts ...Option) *Store {
	if dir == "" {
		dir = "."
	}
	s := &Store{
		dir: dir,
		now: time.Now,
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Users lists the user folders.
func (s *Store) Users() ([]string, error) {
	return listDirs(s.dir)
}

// Projects lists the project folders of user.
func (s *Store) Projects(user string) ([]string, error) {
	user, err := cleanSegment(user)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", user, err)
	}
	return listDirs(filepath.Join(s.dir, user))
}

// CreateUser creates a user folder. It is not an error if it exists.
func (s *Store) CreateUser(user string) error {
	_, err := s.mkdir(user)
	return err
}

// CreateProject creates a project folder, and its user folder if needed.
func (s *Store) CreateProject(user, project string) error {
	_, err := s.mkdir(user, project)
	return err
}

func (s *Store) mkdir(segments ...string) (string, error) {
	dir := s.dir
	for _, seg := range segments {
		clean, err := cleanSegment(seg)
		if err != nil {
			return "", fmt.Errorf("%q: %w", seg, err)
		}
		dir = filepath.Join(dir, clean)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	return dir, nil
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
