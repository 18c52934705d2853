package hash

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// Length is the number of hex characters in an MD5 digest.
	Length = 32

	nibbleSymbols = 16
)

// ErrInvalidFormat is returned when the input is not a 32 character hex string.
var ErrInvalidFormat = errors.New("invalid MD5 format")

// Record holds the statistics derived from a single MD5 string.
type Record struct {
	Hash              string    `json:"hash" yaml:"hash"`
	Timestamp         time.Time `json:"timestamp" yaml:"timestamp"`
	DigitCount        int       `json:"digitCount" yaml:"digitCount"`
	LetterCount       int       `json:"letterCount" yaml:"letterCount"`
	HexValue          uint32    `json:"hexValue" yaml:"hexValue"`
	Checksum          int       `json:"checksum" yaml:"checksum"`
	Entropy           float64   `json:"entropy" yaml:"entropy"`
	RepeatingPatterns int       `json:"repeatingPatterns" yaml:"repeatingPatterns"`
	SequentialCount   int       `json:"sequentialCount" yaml:"sequentialCount"`
	Variance          float64   `json:"variance" yaml:"variance"`
	Mean              float64   `json:"mean" yaml:"mean"`
	FirstByte         int       `json:"firstByte" yaml:"firstByte"`
	LastByte          int       `json:"lastByte" yaml:"lastByte"`
	MiddleByte        int       `json:"middleByte" yaml:"middleByte"`
}

// Validate checks that s is exactly 32 hex characters, in either case.
func Validate(s string) error {
	if len(s) != Length {
		return fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidFormat, Length, len(s))
	}
	for i := 0; i < len(s); i++ {
		if _, ok := nibble(s[i]); !ok {
			return fmt.Errorf("%w: non-hex character %q at position %d", ErrInvalidFormat, s[i], i)
		}
	}
	return nil
}

// Extract validates s and derives its Record, stamped with the given time.
func Extract(s string, at time.Time) (*Record, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}

	h := strings.ToLower(s)
	values := nibbles(h)
	digits := countDigits(h)
	mean, variance := meanVariance(values)

	return &Record{
		Hash:              h,
		Timestamp:         at.UTC(),
		DigitCount:        digits,
		LetterCount:       Length - digits,
		HexValue:          uint32(parseHex(h[0:8])),
		Checksum:          checksum(h),
		Entropy:           entropy(h),
		RepeatingPatterns: repeatingPairs(h),
		SequentialCount:   sequentialPairs(values),
		Variance:          variance,
		Mean:              mean,
		FirstByte:         int(parseHex(h[0:2])),
		LastByte:          int(parseHex(h[30:32])),
		MiddleByte:        int(parseHex(h[14:16])),
	}, nil
}

func nibble(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}

func nibbles(h string) []int {
	list := make([]int, len(h))
	for i := 0; i < len(h); i++ {
		list[i], _ = nibble(h[i])
	}
	return list
}

// parseHex expects validated input.
func parseHex(s string) uint64 {
	v, _ := strconv.ParseUint(s, 16, 32)
	return v
}

func countDigits(h string) int {
	count := 0
	for i := 0; i < len(h); i++ {
		if h[i] >= '0' && h[i] <= '9' {
			count++
		}
	}
	return count
}

func checksum(h string) int {
	sum := 0
	for _, r := range h {
		sum += int(r)
	}
	return sum
}

// entropy is the Shannon entropy in bits of the character distribution.
func entropy(h string) float64 {
	var freq [nibbleSymbols]int
	for _, v := range nibbles(h) {
		freq[v]++
	}

	n := float64(len(h))
	e := 0.0
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / n
		e -= p * math.Log2(p)
	}
	return e
}

func repeatingPairs(h string) int {
	count := 0
	for i := 0; i < len(h)-1; i++ {
		if h[i] == h[i+1] {
			count++
		}
	}
	return count
}

// sequentialPairs counts steps of +1, wrapping f -> 0.
func sequentialPairs(values []int) int {
	count := 0
	for i := 0; i < len(values)-1; i++ {
		if values[i+1] == (values[i]+1)%nibbleSymbols {
			count++
		}
	}
	return count
}

func meanVariance(values []int) (float64, float64) {
	n := float64(len(values))
	sum := 0
	for _, v := range values {
		sum += v
	}
	mean := float64(sum) / n

	sq := 0.0
	for _, v := range values {
		d := float64(v) - mean
		sq += d * d
	}
	return mean, sq / n
}
