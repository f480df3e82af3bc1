// Package artwork resolves images for catalog rows. local convention files
// found during the walk always win; an optional external provider fills the
// gaps afterwards, best effort only - artwork never affects catalog
// correctness.
package artwork

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/disintegration/imaging"

	"go.tonearm.xyz/tonearm/db"
)

var coverExpr = regexp.MustCompile(`(?i)^(cover|folder|album|artwork|front)\.(jpe?g|png|gif|bmp)$`)

const (
	ArtistImageName = "artist.jpg"

	coverMaxSize = 600

	lookupBatchSize = 10
	lookupPause     = 500 * time.Millisecond
)

// IsCoverFile reports whether filename follows the album cover convention.
func IsCoverFile(filename string) bool {
	return coverExpr.MatchString(filename)
}

// Provider is the external image lookup. implementations return a cached
// local path or URL, or "" when they have nothing - they never fail fatally.
type Provider interface {
	AlbumImage(artist, album string) (string, error)
	ArtistImage(artist string) (string, error)
}

// Cache implements "cache this URL locally": it downloads an image, downscales
// it, and stores it under a name derived from the URL.
type Cache struct {
	dir    string
	client *http.Client
}

func NewCache(dir string) *Cache {
	return &Cache{
		dir:    dir,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Cache) CacheURL(url string) (string, error) {
	sum := sha256.Sum256([]byte(url))
	cachePath := filepath.Join(c.dir, hex.EncodeToString(sum[:])[:24]+".png")
	if _, err := os.Stat(cachePath); err == nil {
		return cachePath, nil
	}

	resp, err := c.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetching %q: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %q: status %d", url, resp.StatusCode)
	}

	src, err := imaging.Decode(resp.Body)
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}
	width := coverMaxSize
	if width > src.Bounds().Dx() {
		// don't upscale images
		width = src.Bounds().Dx()
	}
	if err := imaging.Save(imaging.Resize(src, width, 0, imaging.Lanczos), cachePath); err != nil {
		return "", fmt.Errorf("caching %q: %w", cachePath, err)
	}
	return cachePath, nil
}

// Enricher fills album_cover / artist_image on rows that miss them.
type Enricher struct {
	db       *db.DB
	provider Provider
	cache    *Cache
}

// NewEnricher creates an enricher. provider and cache may be nil, in which
// case only local convention files are applied.
func NewEnricher(dbc *db.DB, provider Provider, cache *Cache) *Enricher {
	return &Enricher{db: dbc, provider: provider, cache: cache}
}

// Enrich applies folder covers observed during a walk (dir -> cover filename),
// then consults the external provider for what's still missing, in small
// batches with a pause in between so we don't hammer anyone. every failure is
// swallowed.
func (e *Enricher) Enrich(folderCovers map[string]string) error {
	var tracks []db.Track
	err := e.db.
		Where("album_cover=? OR album_cover IS NULL OR artist_image=? OR artist_image IS NULL", "", "").
		Find(&tracks).
		Error
	if err != nil {
		return fmt.Errorf("listing tracks without artwork: %w", err)
	}

	var missing []*db.Track
	for i := range tracks {
		track := &tracks[i]
		if e.applyLocal(track, folderCovers) {
			continue
		}
		if track.AlbumCover == "" || track.ArtistImage == "" {
			missing = append(missing, track)
		}
	}

	if e.provider == nil {
		return nil
	}
	for i, track := range missing {
		if i > 0 && i%lookupBatchSize == 0 {
			time.Sleep(lookupPause)
		}
		e.lookup(track)
	}
	return nil
}

func (e *Enricher) applyLocal(track *db.Track, folderCovers map[string]string) bool {
	dir := filepath.Dir(track.Path)
	var changed bool
	if track.AlbumCover == "" {
		if cover, ok := folderCovers[dir]; ok {
			track.AlbumCover = filepath.Join(dir, cover)
			changed = true
		}
	}
	if track.ArtistImage == "" {
		artistImage := filepath.Join(filepath.Dir(dir), ArtistImageName)
		if _, err := os.Stat(artistImage); err == nil {
			track.ArtistImage = artistImage
			changed = true
		}
	}
	if changed {
		if err := e.db.Save(track).Error; err != nil {
			log.Printf("saving artwork for %q: %v", track.Path, err)
			return false
		}
	}
	return track.AlbumCover != "" && track.ArtistImage != ""
}

func (e *Enricher) lookup(track *db.Track) {
	var changed bool
	if track.AlbumCover == "" {
		if url, err := e.provider.AlbumImage(track.Artist, track.Album); err != nil {
			log.Printf("album image lookup for %q/%q: %v", track.Artist, track.Album, err)
		} else if url != "" {
			track.AlbumCover = e.localize(url)
			changed = track.AlbumCover != ""
		}
	}
	if track.ArtistImage == "" {
		if url, err := e.provider.ArtistImage(track.Artist); err != nil {
			log.Printf("artist image lookup for %q: %v", track.Artist, err)
		} else if url != "" {
			if image := e.localize(url); image != "" {
				track.ArtistImage = image
				changed = true
			}
		}
	}
	if changed {
		if err := e.db.Save(track).Error; err != nil {
			log.Printf("saving artwork for %q: %v", track.Path, err)
		}
	}
}

func (e *Enricher) localize(url string) string {
	if e.cache == nil {
		return url
	}
	local, err := e.cache.CacheURL(url)
	if err != nil {
		log.Printf("caching artwork url: %v", err)
		return ""
	}
	return local
}
