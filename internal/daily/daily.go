// Package daily derives one deterministic interval challenge per UTC date.
package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"time"

	"github.com/robalobadob/tonewheel/internal/game"
	"github.com/robalobadob/tonewheel/internal/music"
)

var ErrPoolTooSmall = errors.New("daily: pool needs at least two notes")

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// RulesFor returns the challenge for the date of t, chosen from pool using
// HMAC(salt, YYYY-MM-DD). The same inputs always give the same rules.
func RulesFor(t time.Time, salt string, pool []music.Note) (game.Rules, error) {
	if len(pool) < 2 {
		return game.Rules{}, ErrPoolTooSmall
	}
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(t)))
	sum := h.Sum(nil)

	// First 8 bytes pick the tonic, the next 8 the target among the rest.
	ti := int(binary.BigEndian.Uint64(sum[:8]) % uint64(len(pool)))
	gi := int(binary.BigEndian.Uint64(sum[8:16]) % uint64(len(pool)-1))
	if gi >= ti {
		gi++
	}
	return game.Rules{
		Tonic:   pool[ti],
		Targets: []music.Note{pool[gi]},
		Mode:    game.ModeSequential,
	}, nil
}
