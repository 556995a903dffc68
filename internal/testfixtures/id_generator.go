package testfixtures

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator issues meeting ids in the same UUID form the server uses, derived from a seed and
// a counter so every run yields the same sequence.
type IDGenerator struct {
	mu     sync.Mutex
	seed   string
	issued []string
}

// NewIDGenerator returns a generator for seed. An empty seed means "meeting".
func NewIDGenerator(seed string) *IDGenerator {
	if seed == "" {
		seed = "meeting"
	}
	return &IDGenerator{seed: seed}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := meetingID(g.seed, len(g.issued)+1)
	g.issued = append(g.issued, id)
	return id
}

// NextFunc is the form MeetingService expects for its id source.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return uuid.NewString
	}
	return g.Next
}

// Issued returns the ids handed out so far, oldest first.
func (g *IDGenerator) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}

// Nth returns the id the n-th call to Next yields, counting from 1.
func (g *IDGenerator) Nth(n int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return meetingID(g.seed, n)
}

func meetingID(seed string, n int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed+"/"+strconv.Itoa(n))).String()
}
