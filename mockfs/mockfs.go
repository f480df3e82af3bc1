//nolint:thelper
package mockfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.tonearm.xyz/tonearm/db"
	"go.tonearm.xyz/tonearm/librarypath"
	"go.tonearm.xyz/tonearm/relink"
	"go.tonearm.xyz/tonearm/scanner"
	"go.tonearm.xyz/tonearm/tags/tagcommon"
)

var ErrPathNotFound = errors.New("path not found")

// MockFS is a temp filesystem with a library root at music/ and a staging
// root at downloads/organized/, wired to an in-memory catalog.
type MockFS struct {
	t         testing.TB
	scanner   *scanner.Scanner
	relinker  *relink.Relinker
	dir       string
	tagReader *tagReader
	db        *db.DB
}

func New(tb testing.TB) *MockFS { return newMockFS(tb, relink.ModeAuto, "") }
func NewManual(tb testing.TB) *MockFS {
	return newMockFS(tb, relink.ModeManual, "")
}
func NewWithExcludePattern(tb testing.TB, excludePattern string) *MockFS {
	return newMockFS(tb, relink.ModeAuto, excludePattern)
}

func newMockFS(tb testing.TB, mode relink.Mode, excludePattern string) *MockFS {
	tb.Helper()

	dbc, err := db.NewMock()
	if err != nil {
		tb.Fatalf("create db: %v", err)
	}
	tb.Cleanup(func() {
		if err := dbc.Close(); err != nil {
			tb.Fatalf("close db: %v", err)
		}
	})

	if err := dbc.Migrate(); err != nil {
		tb.Fatalf("migrate db: %v", err)
	}
	dbc.LogMode(false)

	tmpDir := tb.TempDir()
	roots := librarypath.Roots{
		{Path: filepath.Join(tmpDir, "music"), Tier: librarypath.TierLibrary},
		{Path: filepath.Join(tmpDir, "downloads", "organized"), Tier: librarypath.TierStaging},
	}
	for _, root := range roots {
		if err := os.MkdirAll(root.Path, os.ModePerm); err != nil {
			tb.Fatalf("mk root dir: %v", err)
		}
	}

	layout := librarypath.DefaultLayout()
	tagReader := &tagReader{paths: map[string]*TagInfo{}}
	relinker := relink.New(dbc, mode, layout, tagReader)
	scanr := scanner.New(dbc, roots, layout, tagReader, relinker, nil, excludePattern)

	return &MockFS{
		t:         tb,
		scanner:   scanr,
		relinker:  relinker,
		dir:       tmpDir,
		tagReader: tagReader,
		db:        dbc,
	}
}

func (m *MockFS) DB() *db.DB                  { return m.db }
func (m *MockFS) TmpDir() string              { return m.dir }
func (m *MockFS) TagReader() tagcommon.Reader { return m.tagReader }
func (m *MockFS) Relinker() *relink.Relinker  { return m.relinker }
func (m *MockFS) Scanner() *scanner.Scanner   { return m.scanner }

func (m *MockFS) ScanAndReconcile() *scanner.Summary {
	m.t.Helper()

	summary, err := m.scanner.ScanAndReconcile(scanner.ScanOptions{})
	if err != nil {
		m.t.Fatalf("error scanning: %v", err)
	}
	return summary
}

func (m *MockFS) ScanAndReconcileOptions(opts scanner.ScanOptions) *scanner.Summary {
	m.t.Helper()

	summary, err := m.scanner.ScanAndReconcile(opts)
	if err != nil {
		m.t.Fatalf("error scanning: %v", err)
	}
	return summary
}

// ResetDates backdates every row so modified-since short circuits never mask
// a change made mid test.
func (m *MockFS) ResetDates() {
	t := time.Date(2020, 0, 0, 0, 0, 0, 0, time.UTC)
	if err := m.db.Model(db.Track{}).Updates(db.Track{CreatedAt: t, UpdatedAt: t}).Error; err != nil {
		m.t.Fatalf("reset track times: %v", err)
	}
}

// AddItems seeds 3 artists x 3 albums x 3 tracks under the library root.
func (m *MockFS) AddItems() { m.addItems("music", false) }

// AddItemsWithCovers is AddItems plus a cover.png per album.
func (m *MockFS) AddItemsWithCovers() { m.addItems("music", true) }

func (m *MockFS) addItems(prefix string, covers bool) {
	for ar := 0; ar < 3; ar++ {
		for al := 0; al < 3; al++ {
			for tr := 0; tr < 3; tr++ {
				path := filepath.Join(prefix, fmt.Sprintf("artist-%d/album-%d/track-%d.flac", ar, al, tr))
				m.AddTrack(path)
				m.SetTags(path, func(tags *TagInfo) {
					tags.RawArtist = fmt.Sprintf("artist-%d", ar)
					tags.RawAlbum = fmt.Sprintf("album-%d", al)
					tags.RawTitle = fmt.Sprintf("title-%d-%d-%d", ar, al, tr)
				})
			}
			if covers {
				m.AddCover(filepath.Join(prefix, fmt.Sprintf("artist-%d/album-%d/cover.png", ar, al)))
			}
		}
	}
}

func (m *MockFS) NumTracks() int {
	return len(m.tagReader.paths)
}

func (m *MockFS) RemoveAll(path string) {
	abspath := filepath.Join(m.dir, path)
	if err := os.RemoveAll(abspath); err != nil {
		m.t.Fatalf("remove all: %v", err)
	}
}

// Move renames a file or directory on disk and keeps the mock tag mapping
// pointed at the new location.
func (m *MockFS) Move(src, dest string) {
	absSrc := filepath.Join(m.dir, src)
	absDest := filepath.Join(m.dir, dest)
	if err := os.MkdirAll(filepath.Dir(absDest), os.ModePerm); err != nil {
		m.t.Fatalf("mkdir: %v", err)
	}
	if err := os.Rename(absSrc, absDest); err != nil {
		m.t.Fatalf("rename: %v", err)
	}
	for k, v := range m.tagReader.paths {
		if k == absSrc {
			delete(m.tagReader.paths, k)
			m.tagReader.paths[absDest] = v
			continue
		}
		if rel, err := filepath.Rel(absSrc, k); err == nil && filepath.IsLocal(rel) {
			delete(m.tagReader.paths, k)
			m.tagReader.paths[filepath.Join(absDest, rel)] = v
		}
	}
}

func (m *MockFS) AddTrack(path string) {
	m.addFile(path, 1000)
}

// AddTrackSize creates a track file padded to the given size, for quality
// comparisons.
func (m *MockFS) AddTrackSize(path string, size int) {
	m.addFile(path, size)
}

func (m *MockFS) AddCover(path string) {
	m.addFile(path, 10)
}

func (m *MockFS) addFile(path string, size int) {
	abspath := filepath.Join(m.dir, path)
	if err := os.MkdirAll(filepath.Dir(abspath), os.ModePerm); err != nil {
		m.t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(abspath, make([]byte, size), os.ModePerm); err != nil {
		m.t.Fatalf("create file: %v", err)
	}
}

func (m *MockFS) SetTags(path string, cb func(*TagInfo)) {
	absPath := filepath.Join(m.dir, path)
	if err := os.Chtimes(absPath, time.Time{}, time.Now()); err != nil {
		m.t.Fatalf("touch track: %v", err)
	}
	if _, ok := m.tagReader.paths[absPath]; !ok {
		m.tagReader.paths[absPath] = &TagInfo{}
	}
	cb(m.tagReader.paths[absPath])
}

func (m *MockFS) LogTracks() {
	var tracks []*db.Track
	if err := m.db.Find(&tracks).Error; err != nil {
		m.t.Fatalf("error logging tracks: %v", err)
	}

	m.t.Logf("\ntracks")
	for _, track := range tracks {
		m.t.Logf("id %-3d sid %-21s avail %-5v path %s",
			track.ID, track.StableID, track.IsAvailable, track.Path)
	}
	m.t.Logf("total %d", len(tracks))
}

type tagReader struct {
	paths map[string]*TagInfo
}

func (m *tagReader) CanRead(absPath string) bool {
	return tagcommon.IsAudioPath(absPath)
}

func (m *tagReader) Read(absPath string) (tagcommon.Info, error) {
	p, ok := m.paths[absPath]
	if !ok {
		return nil, ErrPathNotFound
	}
	if p.Error != nil {
		return nil, p.Error
	}
	return p, nil
}

type TagInfo struct {
	RawTitle   string
	RawArtist  string
	RawAlbum   string
	RawGenre   string
	RawYear    int
	RawBitrate int
	RawLength  int
	Error      error
}

func (i *TagInfo) Title() string    { return i.RawTitle }
func (i *TagInfo) Artist() string   { return i.RawArtist }
func (i *TagInfo) Album() string    { return i.RawAlbum }
func (i *TagInfo) Genre() string    { return i.RawGenre }
func (i *TagInfo) Genres() []string { return []string{i.RawGenre} }
func (i *TagInfo) Year() int        { return firstInt(2021, i.RawYear) }
func (i *TagInfo) Length() int      { return firstInt(100, i.RawLength) }
func (i *TagInfo) Bitrate() int     { return firstInt(100, i.RawBitrate) }

var _ tagcommon.Reader = (*tagReader)(nil)

func firstInt(or int, ints ...int) int {
	for _, i := range ints {
		if i > 0 {
			return i
		}
	}
	return or
}
