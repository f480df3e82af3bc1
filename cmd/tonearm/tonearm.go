//nolint:lll,forbidigo
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/oklog/run"
	"github.com/peterbourgon/ff"

	"go.tonearm.xyz/tonearm"
	"go.tonearm.xyz/tonearm/artwork"
	"go.tonearm.xyz/tonearm/db"
	"go.tonearm.xyz/tonearm/librarypath"
	"go.tonearm.xyz/tonearm/playlist"
	"go.tonearm.xyz/tonearm/relink"
	"go.tonearm.xyz/tonearm/scanner"
	"go.tonearm.xyz/tonearm/tags/filetags"
)

func main() {
	set := flag.NewFlagSet(tonearm.Name, flag.ExitOnError)

	var confMusicPaths librarypath.Roots
	set.Var(&confMusicPaths, "music-path", "path to a scan root, optionally prefixed with \"library ->\" or \"staging ->\"")

	confDBPath := set.String("db-path", "tonearm.db", "path to database (optional)")
	confCachePath := set.String("cache-path", "", "path to cover art cache (optional)")

	confScanIntervalMins := set.Int("scan-interval", 0, "interval (in minutes) to automatically scan music (optional)")
	confScanAtStart := set.Bool("scan-at-start-enabled", false, "whether to perform an initial scan at startup (optional)")
	confScanWatcher := set.Bool("scan-watcher-enabled", false, "whether to watch the scan roots and rescan on changes (optional)")
	confScanFull := set.Bool("scan-full", false, "whether scheduled scans should ignore modification times (optional)")

	confRelinkMode := set.String("relink-mode", "auto", "how to handle moved files, \"auto\" or \"manual\" (optional)")
	confAllowDuplicates := set.Bool("allow-duplicates", false, "whether to catalog exact-tie duplicate files (optional)")
	confExcludePatterns := set.String("exclude-pattern", "", "regex pattern to exclude files from scan (optional)")

	confShowVersion := set.Bool("version", false, "show tonearm version")
	_ = set.String("config-path", "", "path to config (optional)")

	if err := ff.Parse(set, os.Args[1:],
		ff.WithConfigFileFlag("config-path"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix(tonearm.NameUpper),
	); err != nil {
		log.Fatalf("error parsing args: %v\n", err)
	}

	if *confShowVersion {
		fmt.Printf("v%s\n", tonearm.Version)
		os.Exit(0)
	}

	if len(confMusicPaths) == 0 {
		log.Fatalf("please provide a music directory")
	}
	var err error
	for i, root := range confMusicPaths {
		if confMusicPaths[i].Path, err = validatePath(root.Path); err != nil {
			log.Fatalf("checking music dir %q: %v", root.Path, err)
		}
	}

	if _, err := regexp.Compile(*confExcludePatterns); err != nil {
		log.Fatalf("invalid exclude pattern: %v\n", err)
	}

	var mode relink.Mode
	switch *confRelinkMode {
	case "auto":
		mode = relink.ModeAuto
	case "manual":
		mode = relink.ModeManual
	default:
		log.Fatalf("unknown relink mode %q", *confRelinkMode)
	}

	dbc, err := db.New(*confDBPath, db.DefaultOptions())
	if err != nil {
		log.Fatalf("error opening database: %v\n", err)
	}
	defer dbc.Close()

	if err := dbc.Migrate(); err != nil {
		log.Panicf("error migrating database: %v\n", err)
	}

	log.Printf("starting tonearm v%s\n", tonearm.Version)
	log.Printf("provided config\n")
	set.VisitAll(func(f *flag.Flag) {
		value := strings.ReplaceAll(f.Value.String(), "\n", "")
		log.Printf("    %-25s %s\n", f.Name, value)
	})

	layout := librarypath.DefaultLayout()
	tagReader := &filetags.Reader{}
	relinker := relink.New(dbc, mode, layout, tagReader)

	var enricher *artwork.Enricher
	if *confCachePath != "" {
		if *confCachePath, err = validatePath(*confCachePath); err != nil {
			log.Fatalf("checking cache directory: %v", err)
		}
		cacheDirCovers := path.Join(*confCachePath, "covers")
		if err := os.MkdirAll(cacheDirCovers, os.ModePerm); err != nil {
			log.Fatalf("couldn't create covers cache path: %v\n", err)
		}
		enricher = artwork.NewEnricher(dbc, nil, artwork.NewCache(cacheDirCovers))
	}

	scannr := scanner.New(dbc, confMusicPaths, layout, tagReader, relinker, enricher, *confExcludePatterns)
	playlistStore := playlist.NewStore(dbc)

	scanOptions := scanner.ScanOptions{
		IsFull:          *confScanFull,
		AllowDuplicates: *confAllowDuplicates,
	}
	scanOnce := func() error {
		progress := make(chan scanner.Progress, 64)
		go func() {
			for p := range progress {
				switch {
				case p.Phase != "walking":
					log.Printf("scan %s, %d tracks seen", p.Phase, p.Seen)
				case p.Seen > 0 && p.Seen%500 == 0:
					log.Printf("scan walking, %d tracks seen", p.Seen)
				}
			}
		}()
		opts := scanOptions
		opts.Progress = progress
		_, err := scannr.ScanAndReconcile(opts)
		close(progress)
		if err != nil {
			return fmt.Errorf("scanning: %w", err)
		}
		repairs, err := playlistStore.Reconcile()
		if err != nil {
			return fmt.Errorf("reconciling playlists: %w", err)
		}
		for _, repair := range repairs {
			log.Printf("repaired playlist %d, %d rewritten, %d dropped", repair.PlaylistID, repair.Rewritten, repair.Dropped)
		}
		return nil
	}

	noCleanup := func(_ error) {}

	var g run.Group
	var haveJobs bool
	if *confScanIntervalMins > 0 {
		haveJobs = true
		g.Add(func() error {
			log.Printf("starting job 'scan timer'\n")
			ticker := time.NewTicker(time.Duration(*confScanIntervalMins) * time.Minute)
			for range ticker.C {
				if err := scanOnce(); err != nil {
					log.Printf("error scanning: %v", err)
				}
			}
			return nil
		}, noCleanup)
	}

	if *confScanWatcher {
		haveJobs = true
		g.Add(func() error {
			log.Printf("starting job 'scan watcher'\n")
			return scannr.ExecuteWatch()
		}, func(_ error) {
			scannr.CancelWatch()
		})
	}

	if *confScanAtStart {
		if err := scanOnce(); err != nil {
			log.Panicf("error scanning at start: %v\n", err)
		}
	}

	if !haveJobs {
		// no long-running jobs requested, one pass and done
		if err := scanOnce(); err != nil {
			log.Panicf("error scanning: %v\n", err)
		}
		return
	}

	if err := g.Run(); err != nil {
		log.Panicf("error in job: %v", err)
	}
}

func validatePath(p string) (string, error) {
	if p == "" {
		return "", errors.New("path can't be empty")
	}
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return "", errors.New("path does not exist, please provide one")
	}
	p, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("make absolute: %w", err)
	}
	return p, nil
}
