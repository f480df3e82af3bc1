package artwork_test

import (
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/matryer/is"

	"go.tonearm.xyz/tonearm/artwork"
)

func TestIsCoverFile(t *testing.T) {
	t.Parallel()
	is := is.New(t)

	covers := []string{
		"cover.jpg", "cover.jpeg", "Cover.PNG", "folder.jpg",
		"album.png", "artwork.gif", "front.bmp", "FRONT.JPG",
	}
	for _, name := range covers {
		is.True(artwork.IsCoverFile(name)) // name
	}

	notCovers := []string{
		"track-1.flac", "covers.jpg", "back.jpg", "cover.txt",
		"artist.jpg", "my cover.jpg", "",
	}
	for _, name := range notCovers {
		is.True(!artwork.IsCoverFile(name)) // name
	}
}

func TestCacheURLDownscales(t *testing.T) {
	t.Parallel()
	is := is.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		img := image.NewRGBA(image.Rect(0, 0, 1200, 1200))
		is.NoErr(png.Encode(w, img))
	}))
	defer server.Close()

	dir := t.TempDir()
	cache := artwork.NewCache(dir)

	path, err := cache.CacheURL(server.URL + "/cover.png")
	is.NoErr(err)
	is.Equal(filepath.Dir(path), dir)

	img, err := imaging.Open(path)
	is.NoErr(err)
	is.True(img.Bounds().Dx() <= 600)
	is.True(img.Bounds().Dy() <= 600)

	// same url resolves to the same file without refetching
	again, err := cache.CacheURL(server.URL + "/cover.png")
	is.NoErr(err)
	is.Equal(again, path)
}

func TestCacheURLSmallImagesKeepSize(t *testing.T) {
	t.Parallel()
	is := is.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		img := image.NewRGBA(image.Rect(0, 0, 200, 200))
		is.NoErr(png.Encode(w, img))
	}))
	defer server.Close()

	cache := artwork.NewCache(t.TempDir())
	path, err := cache.CacheURL(server.URL + "/small.png")
	is.NoErr(err)

	img, err := imaging.Open(path)
	is.NoErr(err)
	is.Equal(img.Bounds().Dx(), 200)
	is.Equal(img.Bounds().Dy(), 200)

	_, err = os.Stat(path)
	is.NoErr(err)
}
