package gate

import (
	"encoding/base64"
	"slices"
	"strings"
	"time"
)

const (
	dailyKeyPrefix  = "DAILY_"
	dailyKeyLength  = 8
	dailyDateLayout = "Mon Jan 02 2006"
)

// DefaultKeys is the built-in allow-list.
var DefaultKeys = []string{
	"TTHIENKEY_FORCUSMD5_1028320",
	"TTHIENKEY_FORCUSMD5_2928273",
	"TTHIEN_ACCESS_9182838",
}

// Gate decides whether an access key opens the app. It guards nothing:
// every valid key can be read from the binary.
type Gate interface {
	Validate(key string) bool
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(key string) bool

func (f GateFunc) Validate(key string) bool {
	return f(key)
}

// KeyGate accepts the allow-list plus a key derived from the current date.
type KeyGate struct {
	Keys []string
	Now  func() time.Time
}

// NewKeyGate creates a KeyGate. Keys are normalized to upper case; an empty
// list falls back to DefaultKeys.
func NewKeyGate(keys []string, now func() time.Time) *KeyGate {
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	if now == nil {
		now = time.Now
	}

	list := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.ToUpper(strings.TrimSpace(k)); k != "" {
			list = append(list, k)
		}
	}
	return &KeyGate{Keys: list, Now: now}
}

// Validate compares key case-insensitively with the current keys.
func (g *KeyGate) Validate(key string) bool {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	return slices.Contains(g.CurrentKeys(), key)
}

// CurrentKeys returns the allow-list followed by today's key.
func (g *KeyGate) CurrentKeys() []string {
	list := slices.Clone(g.Keys)
	return append(list, DailyKey(g.Now()))
}

// DailyKey derives the key for the local calendar day of t.
func DailyKey(t time.Time) string {
	enc := base64.StdEncoding.EncodeToString([]byte(t.Format(dailyDateLayout)))
	return dailyKeyPrefix + strings.ToUpper(enc[:dailyKeyLength])
}
