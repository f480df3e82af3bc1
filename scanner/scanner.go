// Package scanner drives one reconciliation pass: walk the configured roots,
// classify and dispatch every audio file, then compare the catalog against
// what was actually observed. rows are never deleted by an ordinary pass -
// absence only ever downgrades availability, and only when every root was
// reachable.
package scanner

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/karrick/godirwalk"

	"go.tonearm.xyz/tonearm/artwork"
	"go.tonearm.xyz/tonearm/db"
	"go.tonearm.xyz/tonearm/librarypath"
	"go.tonearm.xyz/tonearm/musicid"
	"go.tonearm.xyz/tonearm/relink"
	"go.tonearm.xyz/tonearm/tags/tagcommon"
)

var (
	ErrAlreadyScanning = errors.New("already scanning")
	ErrReadingTags     = errors.New("could not read tags")
	ErrNoRoots         = errors.New("no scan roots configured")
)

func durSince(t time.Time) time.Duration {
	return time.Since(t).Truncate(10 * time.Microsecond)
}

type Scanner struct {
	db             *db.DB
	roots          librarypath.Roots
	layout         librarypath.Layout
	tagReader      tagcommon.Reader
	relinker       *relink.Relinker
	enricher       *artwork.Enricher
	excludePattern *regexp.Regexp

	// acts as an atomic bool semaphore. no more than one scan pass may run
	// against the same catalog at a time
	scanning  int32
	watchDone chan struct{}
}

// New wires a scanner. enricher may be nil, in which case no artwork pass
// runs. excludePattern must be a valid regexp or empty.
func New(dbc *db.DB, roots librarypath.Roots, layout librarypath.Layout, reader tagcommon.Reader, relinker *relink.Relinker, enricher *artwork.Enricher, excludePattern string) *Scanner {
	s := &Scanner{
		db:        dbc,
		roots:     roots,
		layout:    layout,
		tagReader: reader,
		relinker:  relinker,
		enricher:  enricher,
		watchDone: make(chan struct{}),
	}
	if excludePattern != "" {
		s.excludePattern = regexp.MustCompile(excludePattern)
	}
	return s
}

func (s *Scanner) IsScanning() bool {
	return atomic.LoadInt32(&s.scanning) == 1
}

type ScanOptions struct {
	// IsFull ignores mod time short circuits and re-reads every file.
	IsFull bool
	// AllowDuplicates inserts candidates that tie on every replacement
	// criterion instead of discarding them.
	AllowDuplicates bool
	// ForceCleanup deletes rows whose files are truly absent, instead of
	// leaving them for orphan handling.
	ForceCleanup bool
	// Progress, when set, receives streaming updates. sends never block.
	Progress chan<- Progress
}

type Progress struct {
	Phase string
	Seen  int
	Path  string
}

// Summary is the ephemeral result of one pass.
type Summary struct {
	Scanned        int
	Added          int
	Updated        int
	Relinked       int
	Suggested      int
	Removed        int
	Unavailable    int
	Errors         int
	CleanupSkipped bool
	Duration       time.Duration
}

type scanState struct {
	opts    ScanOptions
	summary *Summary
	curRoot librarypath.Root
	// every supported audio path observed this pass
	found map[string]struct{}
	// dir -> set of audio filenames in it, for the folder rename heuristic
	foundDirs map[string]map[string]struct{}
	// dir -> cover filename, for the artwork pass
	covers      map[string]string
	unreachable []string
}

func (st *scanState) progress(phase, path string) {
	if st.opts.Progress == nil {
		return
	}
	select {
	case st.opts.Progress <- Progress{Phase: phase, Seen: st.summary.Scanned, Path: path}:
	default:
	}
}

// ScanAndReconcile runs one full pass: Walking, then Reconciling. it returns
// ErrAlreadyScanning if a pass is already in flight.
func (s *Scanner) ScanAndReconcile(opts ScanOptions) (*Summary, error) {
	if !atomic.CompareAndSwapInt32(&s.scanning, 0, 1) {
		return nil, ErrAlreadyScanning
	}
	defer atomic.StoreInt32(&s.scanning, 0)

	if len(s.roots) == 0 {
		return nil, ErrNoRoots
	}

	start := time.Now()
	st := &scanState{
		opts:      opts,
		summary:   &Summary{},
		found:     map[string]struct{}{},
		foundDirs: map[string]map[string]struct{}{},
		covers:    map[string]string{},
	}

	log.Println("starting scan")
	for _, root := range s.roots {
		if _, err := os.Stat(root.Path); err != nil {
			log.Printf("warning: scan root %q is unreachable: %v", root.Path, err)
			st.unreachable = append(st.unreachable, root.Path)
			continue
		}
		st.curRoot = root
		err := godirwalk.Walk(root.Path, &godirwalk.Options{
			Callback: func(absPath string, de *godirwalk.Dirent) error {
				return s.callbackItem(st, absPath, de)
			},
			ErrorCallback: func(absPath string, err error) godirwalk.ErrorAction {
				log.Printf("error processing %q: %v", absPath, err)
				st.summary.Errors++
				return godirwalk.SkipNode
			},
		})
		if err != nil {
			return nil, fmt.Errorf("walking %q: %w", root.Path, err)
		}
	}
	log.Printf("finished walking in %s, +%d/%d files (%d err)",
		durSince(start), st.summary.Added, st.summary.Scanned, st.summary.Errors)

	reconcileStart := time.Now()
	st.progress("reconciling", "")
	if err := s.reconcile(st); err != nil {
		return nil, fmt.Errorf("reconciling: %w", err)
	}
	log.Printf("finished reconciling in %s, %d relinked, %d removed",
		durSince(reconcileStart), st.summary.Relinked, st.summary.Removed)

	if s.enricher != nil {
		if err := s.enricher.Enrich(st.covers); err != nil {
			log.Printf("warning: enriching artwork: %v", err)
		}
	}

	strNow := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.db.SetSetting(db.LastScanTime, strNow); err != nil {
		return nil, fmt.Errorf("setting last scan time: %w", err)
	}

	st.summary.Duration = durSince(start)
	st.progress("done", "")
	return st.summary, nil
}

func (s *Scanner) callbackItem(st *scanState, absPath string, de *godirwalk.Dirent) error {
	filename := filepath.Base(absPath)
	if strings.HasPrefix(filename, ".") && absPath != st.curRoot.Path {
		if de.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	if s.excludePattern != nil && s.excludePattern.MatchString(absPath) {
		if de.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	if de.IsDir() {
		return nil
	}
	if artwork.IsCoverFile(filename) {
		st.covers[filepath.Dir(absPath)] = filename
		return nil
	}
	if !s.tagReader.CanRead(absPath) {
		return nil
	}

	dir := filepath.Dir(absPath)
	st.found[absPath] = struct{}{}
	if st.foundDirs[dir] == nil {
		st.foundDirs[dir] = map[string]struct{}{}
	}
	st.foundDirs[dir][filename] = struct{}{}
	st.summary.Scanned++
	st.progress("walking", absPath)

	// a failure here is a no-op for this file only, never for the pass
	if err := s.scanFile(st, absPath); err != nil {
		log.Printf("error scanning %q: %v", absPath, err)
		st.summary.Errors++
	}
	return nil
}

func (s *Scanner) scanFile(st *scanState, absPath string) error {
	stat, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stating: %w", err)
	}

	var existing db.Track
	err = s.db.First(&existing, "path=?", absPath).Error
	switch {
	case err == nil:
		return s.updateExisting(st, &existing, absPath, stat)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("exact path lookup: %w", err)
	}

	info, err := s.tagReader.Read(absPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReadingTags, err)
	}
	cand := s.newCandidate(st, absPath, stat, info)

	match, basis, err := matchTrack(s.db, absPath, cand.artist, cand.title)
	if err != nil {
		return err
	}
	if match == nil {
		return s.insertTrack(st, cand)
	}

	_, statErr := os.Stat(match.Path)
	existingMissing := statErr != nil
	decision := decideReplacement(match, s.layout.Tier(match.Path), cand, existingMissing, st.opts.AllowDuplicates)

	switch decision.Outcome {
	case OutcomeReplace:
		return s.replaceTrack(st, match, cand, decision, basis)
	case OutcomeAddDuplicate:
		return s.insertTrack(st, cand)
	default:
		return nil
	}
}

func (s *Scanner) replaceTrack(st *scanState, match *db.Track, cand candidate, decision Decision, basis Basis) error {
	if decision.Moved && s.relinker.Mode() == relink.ModeManual {
		var err error
		s.db.WithTx(func(tx *gorm.DB) {
			err = s.relinker.Suggest(tx, match, cand.path, db.ConfidenceHigh)
		})
		if err != nil {
			log.Printf("warning: recording relink suggestion for %q: %v", cand.path, err)
			return nil
		}
		st.summary.Suggested++
		log.Printf("suggested relink %q -> %q (%s match)", match.Path, cand.path, basis)
		return nil
	}

	if decision.Moved {
		oldPath := match.Path
		var err error
		s.db.WithTx(func(tx *gorm.DB) {
			err = s.relinker.Relink(tx, match, cand.path, func(track *db.Track) {
				applyCandidate(track, cand)
			})
		})
		if err != nil {
			log.Printf("warning: relinking %q -> %q: %v", oldPath, cand.path, err)
			return nil
		}
		st.summary.Relinked++
		log.Printf("relinked %q -> %q (%s match)", oldPath, cand.path, basis)
		return nil
	}

	// a quality replacement. rewrite the row in place, originals untouched
	oldPath := match.Path
	applyCandidate(match, cand)
	match.Path = cand.path
	match.IsAvailable = true
	if err := s.db.Save(match).Error; err != nil {
		if db.IsUniqueConstraintErr(err) {
			log.Printf("skipping replacement for %q: destination already cataloged", cand.path)
			return nil
		}
		return fmt.Errorf("saving replacement: %w", err)
	}
	st.summary.Updated++
	log.Printf("replaced %q with %q: %s", oldPath, cand.path, decision.Reason)
	return nil
}

func (s *Scanner) updateExisting(st *scanState, track *db.Track, absPath string, stat os.FileInfo) error {
	if !st.opts.IsFull && stat.ModTime().Before(track.UpdatedAt) {
		// we found the record but it hasn't changed
		if !track.IsAvailable {
			track.IsAvailable = true
			if err := s.db.Save(track).Error; err != nil {
				return fmt.Errorf("restoring availability: %w", err)
			}
		}
		return nil
	}

	info, err := s.tagReader.Read(absPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReadingTags, err)
	}
	cand := s.newCandidate(st, absPath, stat, info)
	applyCandidate(track, cand)
	track.IsAvailable = true
	if err := s.db.Save(track).Error; err != nil {
		return fmt.Errorf("saving updated track: %w", err)
	}
	st.summary.Updated++
	return nil
}

// newCandidate merges the two metadata sources. folder-derived artist/album
// outrank tags for the current columns, tags outrank folders for the
// original_* columns.
func (s *Scanner) newCandidate(st *scanState, absPath string, stat os.FileInfo, info tagcommon.Info) candidate {
	folder := s.layout.Infer(absPath)
	tier := folder.Tier
	if tier == librarypath.TierUnknown {
		tier = st.curRoot.Tier
	}
	title := info.Title()
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
	}
	album := folder.Album
	if album == "" {
		album = tagcommon.MustAlbum(info)
	}
	return candidate{
		path:     absPath,
		size:     stat.Size(),
		tier:     tier,
		title:    title,
		artist:   firstOf(folder.Artist, info.Artist()),
		album:    album,
		genre:    tagcommon.MustGenre(info),
		year:     info.Year(),
		duration: info.Length(),
		bitrate:  info.Bitrate(),

		tagTitle:  info.Title(),
		tagArtist: info.Artist(),
		tagAlbum:  info.Album(),
	}
}

// applyCandidate refreshes a row's current metadata. stable id and the
// original_* columns are deliberately not in here.
func applyCandidate(track *db.Track, cand candidate) {
	track.SetTitle(cand.title)
	track.SetArtist(cand.artist)
	track.Album = cand.album
	track.Year = cand.year
	track.Genre = cand.genre
	track.Duration = cand.duration
	track.Bitrate = cand.bitrate
	track.Size = cand.size
}

func (s *Scanner) insertTrack(st *scanState, cand candidate) error {
	origTitle := firstOf(cand.tagTitle, cand.title)
	origArtist := firstOf(cand.tagArtist, cand.artist)
	origAlbum := firstOf(cand.tagAlbum, cand.album)
	stableID := musicid.New(origArtist, origTitle, origAlbum)

	var siblings int
	err := s.db.
		Model(db.Track{}).
		Where("stable_id=?", stableID).
		Count(&siblings).
		Error
	if err != nil {
		return fmt.Errorf("counting stable id siblings: %w", err)
	}

	track := db.Track{
		StableID:       stableID,
		Path:           cand.path,
		OriginalTitle:  origTitle,
		OriginalArtist: origArtist,
		OriginalAlbum:  origAlbum,
		OriginalPath:   cand.path,
		IsAvailable:    true,
		IsPrimary:      siblings == 0,
	}
	applyCandidate(&track, cand)
	if err := s.db.Create(&track).Error; err != nil {
		if db.IsUniqueConstraintErr(err) {
			// the path is already cataloged via a race or duplicate
			// discovery. never corrupt the row that owns it
			log.Printf("skipping insert for %q: path already cataloged", cand.path)
			return nil
		}
		return fmt.Errorf("inserting track: %w", err)
	}
	st.summary.Added++
	return nil
}

// reconcile compares the whole catalog against the found set. when any root
// was unreachable the destructive half is skipped entirely - an unplugged
// drive must never read as a mass deletion.
func (s *Scanner) reconcile(st *scanState) error {
	if len(st.unreachable) > 0 {
		log.Printf("warning: %d scan root(s) unreachable, skipping orphan handling for this pass", len(st.unreachable))
		st.summary.CleanupSkipped = true
		return nil
	}

	var all []db.Track
	if err := s.db.Find(&all).Error; err != nil {
		return fmt.Errorf("listing catalog: %w", err)
	}
	var missing []db.Track
	for i := range all {
		if _, ok := st.found[all[i].Path]; !ok {
			missing = append(missing, all[i])
		}
	}

	missing = s.bulkRelinkRenamedFolders(st, missing)

	if st.opts.ForceCleanup {
		var deleteErr error
		s.db.WithTx(func(tx *gorm.DB) {
			for i := range missing {
				// missing from the found set is not the same as gone. a file
				// the walk skipped, eg. via the exclude pattern, still exists
				// and keeps its row
				if _, err := os.Stat(missing[i].Path); err == nil {
					continue
				}
				if err := db.DeleteTrack(tx, &missing[i]); err != nil {
					deleteErr = err
					return
				}
				st.summary.Removed++
			}
		})
		if deleteErr != nil {
			return fmt.Errorf("force cleanup: %w", deleteErr)
		}
		return nil
	}

	// everything left is an orphan. its row stays put - only the
	// availability flag moves, via the relinker's check routine
	unavailable, err := s.relinker.CheckAvailability()
	if err != nil {
		return fmt.Errorf("checking availability: %w", err)
	}
	st.summary.Unavailable = unavailable
	return nil
}

// bulkRelinkRenamedFolders detects whole-folder renames: an old folder that
// previously held N files is gone, and a different folder now holds exactly
// the same N filenames. all N rows are relinked in one go without individual
// identity matches. returns the rows still missing afterwards.
func (s *Scanner) bulkRelinkRenamedFolders(st *scanState, missing []db.Track) []db.Track {
	byDir := map[string][]*db.Track{}
	for i := range missing {
		dir := filepath.Dir(missing[i].Path)
		byDir[dir] = append(byDir[dir], &missing[i])
	}

	oldDirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		oldDirs = append(oldDirs, dir)
	}
	sort.Strings(oldDirs)

	relinked := map[int]struct{}{}
	for _, oldDir := range oldDirs {
		if _, stillThere := st.foundDirs[oldDir]; stillThere {
			// the old folder still holds audio, not a rename
			continue
		}
		rows := byDir[oldDir]
		if len(rows) < 2 {
			// a single shared filename is too weak to call a rename
			continue
		}
		oldNames := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			oldNames[filepath.Base(row.Path)] = struct{}{}
		}
		newDir, ok := findRenamedDir(st.foundDirs, oldNames)
		if !ok {
			continue
		}
		log.Printf("detected folder rename %q -> %q, relinking %d tracks", oldDir, newDir, len(rows))
		s.db.WithTx(func(tx *gorm.DB) {
			var stableIDs []string
			for _, row := range rows {
				newPath := filepath.Join(newDir, filepath.Base(row.Path))
				if err := s.relinker.Relink(tx, row, newPath, nil); err != nil {
					log.Printf("warning: bulk relinking %q: %v", newPath, err)
					continue
				}
				relinked[row.ID] = struct{}{}
				stableIDs = append(stableIDs, row.StableID)
				st.summary.Relinked++
			}
			// folder-level evidence beats any pending per-file suggestions
			if err := s.relinker.DropSuggestions(tx, stableIDs); err != nil {
				log.Printf("warning: dropping stale suggestions: %v", err)
			}
		})
	}

	var remaining []db.Track
	for i := range missing {
		if _, ok := relinked[missing[i].ID]; !ok {
			remaining = append(remaining, missing[i])
		}
	}
	return remaining
}

func findRenamedDir(foundDirs map[string]map[string]struct{}, oldNames map[string]struct{}) (string, bool) {
	dirs := make([]string, 0, len(foundDirs))
	for dir := range foundDirs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		names := foundDirs[dir]
		if len(names) != len(oldNames) {
			continue
		}
		equal := true
		for name := range oldNames {
			if _, ok := names[name]; !ok {
				equal = false
				break
			}
		}
		if equal {
			return dir, true
		}
	}
	return "", false
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
