// Package musicid derives durable identity tokens for logical songs.
// a token is a pure function of the song's normalized (artist, title, album)
// triple, so the same song rediscovered at a different path, or with a
// differently-cased tag, maps to the same token.
package musicid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	prefix  = "song_"
	hashLen = 16
)

// Normalize maps tag strings onto the form used for identity comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// New computes the stable id for a normalized (artist, title, album) triple.
// callers must never overwrite a previously assigned id with a new one.
func New(artist, title, album string) string {
	key := fmt.Sprintf("%s_%s_%s", Normalize(artist), Normalize(title), Normalize(album))
	sum := sha256.Sum256([]byte(key))
	return prefix + hex.EncodeToString(sum[:])[:hashLen]
}
