// Command tonearmctl inspects and repairs a catalog without running the
// scanner daemon: list orphans, list and confirm relink suggestions, and
// reconcile playlist references.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/peterbourgon/ff"

	"go.tonearm.xyz/tonearm"
	"go.tonearm.xyz/tonearm/db"
	"go.tonearm.xyz/tonearm/librarypath"
	"go.tonearm.xyz/tonearm/playlist"
	"go.tonearm.xyz/tonearm/relink"
	"go.tonearm.xyz/tonearm/tags/filetags"
)

const usage = `usage: tonearmctl [flags] <command>
commands:
  orphans              list tracks with no backing file
  suggestions          list pending relink suggestions
  confirm <stable-id>  accept the relink suggestion for a track
  playlists            repair playlist references against the catalog
  played <stable-id>   bump the play count of a track's primary copy
`

func main() {
	set := flag.NewFlagSet(tonearm.Name+"ctl", flag.ExitOnError)
	confDBPath := set.String("db-path", "tonearm.db", "path to database (optional)")
	_ = set.String("config-path", "", "path to config (optional)")

	if err := ff.Parse(set, os.Args[1:],
		ff.WithConfigFileFlag("config-path"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix(tonearm.NameUpper),
	); err != nil {
		log.Fatalf("error parsing args: %v\n", err)
	}
	if set.NArg() == 0 {
		fmt.Print(usage)
		os.Exit(2)
	}

	dbc, err := db.New(*confDBPath, db.DefaultOptions())
	if err != nil {
		log.Fatalf("error opening database: %v\n", err)
	}
	defer dbc.Close()
	if err := dbc.Migrate(); err != nil {
		log.Fatalf("error migrating database: %v\n", err)
	}

	relinker := relink.New(dbc, relink.ModeManual, librarypath.DefaultLayout(), &filetags.Reader{})

	switch command := set.Arg(0); command {
	case "orphans":
		var tracks []*db.Track
		if err := dbc.Where("is_available=?", false).Order("artist, title").Find(&tracks).Error; err != nil {
			log.Fatalf("listing orphans: %v", err)
		}
		for _, track := range tracks {
			fmt.Printf("%s\t%s - %s\t%s\n", track.StableID, track.Artist, track.Title, track.Path)
		}
		fmt.Printf("total %d\n", len(tracks))
	case "suggestions":
		var suggestions []*db.RelinkSuggestion
		if err := dbc.Order("confidence DESC").Find(&suggestions).Error; err != nil {
			log.Fatalf("listing suggestions: %v", err)
		}
		for _, s := range suggestions {
			fmt.Printf("%s\t%s\t%s - %s\t-> %s\n", s.StableID, s.Confidence, s.OriginalArtist, s.OriginalTitle, s.SuggestedPath)
		}
		fmt.Printf("total %d\n", len(suggestions))
	case "confirm":
		if set.NArg() < 2 {
			log.Fatalf("confirm needs a stable id")
		}
		if err := relinker.ConfirmSuggestion(set.Arg(1)); err != nil {
			log.Fatalf("confirming suggestion: %v", err)
		}
		fmt.Println("relinked")
	case "played":
		if set.NArg() < 2 {
			log.Fatalf("played needs a stable id")
		}
		var track db.Track
		err := dbc.
			Where("stable_id=?", set.Arg(1)).
			Order("is_primary DESC, id").
			First(&track).
			Error
		if err != nil {
			log.Fatalf("finding track: %v", err)
		}
		if err := dbc.IncrementPlayCount(track.ID); err != nil {
			log.Fatalf("incrementing play count: %v", err)
		}
		fmt.Printf("play count %d\n", track.PlayCount+1)
	case "playlists":
		repairs, err := playlist.NewStore(dbc).Reconcile()
		if err != nil {
			log.Fatalf("reconciling playlists: %v", err)
		}
		for _, repair := range repairs {
			fmt.Printf("playlist %d\t%d rewritten\t%d dropped\n", repair.PlaylistID, repair.Rewritten, repair.Dropped)
		}
		fmt.Printf("repaired %d playlists\n", len(repairs))
	default:
		log.Fatalf("unknown command %q", command)
	}
}
