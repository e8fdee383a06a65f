package sponsor

import (
	"sync"
)

// Source hands out the sponsor signer.
type Source interface {
	Load() (Signer, error)
}

// Loader parses the configured secret on first use and caches the result,
// including a configuration error, for the life of the process.
type Loader struct {
	secret string
	once   sync.Once
	id     *Identity
	err    error
}

func NewLoader(secret string) *Loader {
	return &Loader{secret: secret}
}

func (l *Loader) Load() (Signer, error) {
	l.once.Do(func() {
		l.id, l.err = ParseSecret(l.secret)
		l.secret = ""
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.id, nil
}

type staticSource struct{ s Signer }

func (s staticSource) Load() (Signer, error) { return s.s, nil }

// Static wraps an already-built signer.
func Static(s Signer) Source { return staticSource{s: s} }
