package crypto

import (
	"crypto/rand"
	"errors"
	"math"
	"math/bits"
)

const (
	defaultAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
	defaultSize     = 21 // 21 * 6 = 126 bits
	maxAlphabetSize = 255
	minAlphabetSize = 8
)

var (
	ErrTooManyInputAlphabet = errors.New("must only provide 1 set of alphabet")
	ErrAlphabetTooLong      = errors.New("alphabet must contain no more than 255 characters")
	ErrAlphabetTooShort     = errors.New("alphabet must contain at least 8 characters")
	ErrAlphabetNotASCII     = errors.New("alphabet must contain only ASCII characters")
)

// NanoIDGenerator produces random, URL-safe identifiers.
type NanoIDGenerator struct {
	alphabet string
	mask     byte
}

// mask is the smallest 2^n-1 covering every alphabet index.
func maskFor(alphabetLen int) byte {
	return byte(1<<bits.Len(uint(alphabetLen-1)) - 1)
}

func NewNanoID(a ...string) (*NanoIDGenerator, error) {
	if len(a) > 1 {
		return nil, ErrTooManyInputAlphabet
	}

	alphabet := defaultAlphabet
	if len(a) == 1 && a[0] != "" {
		alphabet = a[0]
	}

	// Generate indexes by byte, so multi-byte runes are rejected
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] > 127 {
			return nil, ErrAlphabetNotASCII
		}
	}
	if len(alphabet) > maxAlphabetSize {
		return nil, ErrAlphabetTooLong
	}
	if len(alphabet) < minAlphabetSize {
		return nil, ErrAlphabetTooShort
	}

	return &NanoIDGenerator{
		alphabet: alphabet,
		mask:     maskFor(len(alphabet)),
	}, nil
}

// Generate returns an id of the given length (default 21).
func (n *NanoIDGenerator) Generate(length ...int) (string, error) {
	size := defaultSize
	if len(length) > 0 && length[0] > 0 {
		size = length[0]
	}

	// Oversample so that rejected bytes rarely force another read.
	step := int(math.Ceil(1.6 * float64(int(n.mask)*size) / float64(len(n.alphabet))))
	id := make([]byte, 0, size)
	buffer := make([]byte, step)

	for len(id) < size {
		if _, err := rand.Read(buffer); err != nil {
			return "", err
		}
		for _, b := range buffer {
			if idx := int(b & n.mask); idx < len(n.alphabet) {
				id = append(id, n.alphabet[idx])
				if len(id) == size {
					break
				}
			}
		}
	}

	return string(id), nil
}
