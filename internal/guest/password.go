// Package guest derives the shared, date-rotating guest password.
package guest

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// WordsPerPassword is the number of wordlist entries in a guest password.
const WordsPerPassword = 3

const purpose = "guest_password"

// LoadWordlist reads one word per line from path. Blank lines are skipped.
func LoadWordlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wordlist: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" {
			continue
		}
		words = append(words, word)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wordlist: %w", err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("wordlist %s is empty", path)
	}

	return words, nil
}

// Generator computes the guest password for a calendar day. It holds no
// state besides its inputs, so the value rotates on its own at midnight.
type Generator struct {
	seed     string
	words    []string
	location *time.Location
	now      func() time.Time
}

// NewGenerator creates a generator. A nil location means time.Local and a
// nil clock means time.Now.
func NewGenerator(seed string, words []string, location *time.Location, now func() time.Time) (*Generator, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("guest password wordlist is empty")
	}
	if location == nil {
		location = time.Local
	}
	if now == nil {
		now = time.Now
	}

	return &Generator{
		seed:     seed,
		words:    append([]string(nil), words...),
		location: location,
		now:      now,
	}, nil
}

// Today returns the current calendar day, YYYY-MM-DD, in the generator's
// time zone. It is the day Current derives from.
func (g *Generator) Today() string {
	return g.now().In(g.location).Format(time.DateOnly)
}

// Current returns today's guest password.
func (g *Generator) Current() string {
	return g.ForDate(g.now())
}

// ForDate returns the guest password for the calendar day containing t,
// evaluated in the generator's time zone.
func (g *Generator) ForDate(t time.Time) string {
	return Derive(g.seed, g.words, t.In(g.location).Format(time.DateOnly))
}

// Check reports whether password matches today's guest password.
// Surrounding whitespace is ignored.
func (g *Generator) Check(password string) bool {
	return strings.TrimSpace(password) == g.Current()
}

// Derive draws WordsPerPassword words, with replacement, from a PRNG seeded
// by seed, the purpose label and isoDate (YYYY-MM-DD).
func Derive(seed string, words []string, isoDate string) string {
	key := blake2b.Sum256([]byte(seed + purpose + isoDate))
	rng := rand.New(rand.NewChaCha8(key))

	picked := make([]string, WordsPerPassword)
	for i := range picked {
		picked[i] = words[rng.IntN(len(words))]
	}
	return strings.Join(picked, " ")
}
