package services

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/tyler-smith/go-bip39/wordlists"
)

// wordlist is the BIP39 English wordlist (2048 words).
// Two words plus a number gives 2048 × 2048 × 100 = 419 million combinations.
var wordlist = wordlists.English

const maxSessionIDAttempts = 100

// SessionIDService generates human-readable session ids of the form
// "word-word-number" (e.g. "apple-river-42").
type SessionIDService struct {
	inUse func(sessionID string) bool
}

// NewSessionIDService creates a generator. inUse reports whether an id already
// has listeners; nil treats every id as free.
func NewSessionIDService(inUse func(sessionID string) bool) *SessionIDService {
	return &SessionIDService{inUse: inUse}
}

// Generate returns an id nobody is currently listening on.
func (s *SessionIDService) Generate() (string, error) {
	for i := 0; i < maxSessionIDAttempts; i++ {
		id, err := randomSessionID()
		if err != nil {
			return "", err
		}
		if s.inUse == nil || !s.inUse(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique session id after %d attempts", maxSessionIDAttempts)
}

func randomSessionID() (string, error) {
	w1, err := randomInt(len(wordlist))
	if err != nil {
		return "", err
	}
	w2, err := randomInt(len(wordlist))
	if err != nil {
		return "", err
	}
	num, err := randomInt(100)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%d", wordlist[w1], wordlist[w2], num), nil
}

func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return int(v.Int64()), nil
}
