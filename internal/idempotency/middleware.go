package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/singleflight"

	"sponsorrail/internal/logtrace"
)

const (
	HeaderKey    = "X-Idempotency-Key"
	HeaderReplay = "X-Idempotent-Replay"

	defaultWindow = 24 * time.Hour
)

var ErrKeyReused = errors.New("idempotency key reused with a different request")

// Replayer serves the stored response when a request repeats a key within
// Window. Concurrent requests with the same key share one handler run.
type Replayer struct {
	Store  Store
	Window time.Duration
	// Cacheable decides whether a response is stored. Nil stores everything.
	Cacheable func(status int, header http.Header) bool
	Now       func() time.Time

	group singleflight.Group
}

type replayed struct {
	record Record
	stored bool
}

func (rp *Replayer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderKey)
		if key == "" || rp.Store == nil {
			next.ServeHTTP(w, r)
			return
		}

		body, err := readBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		fp := Fingerprint(r.Method, r.URL.Path, body)
		storeKey := r.URL.Path + ":" + key

		v, _, shared := rp.group.Do(storeKey, func() (any, error) {
			if existing := rp.lookup(r.Context(), storeKey); existing != nil {
				return replayed{record: *existing, stored: true}, nil
			}
			return replayed{record: rp.capture(next, r, storeKey, fp)}, nil
		})
		res := v.(replayed)

		if res.record.Fingerprint != fp {
			logtrace.Warn(r.Context(), "idempotency key reused", logtrace.Fields{
				logtrace.FieldModule: "idempotency",
				logtrace.FieldPath:   r.URL.Path,
			})
			writeError(w, http.StatusUnprocessableEntity, ErrKeyReused)
			return
		}
		if res.stored || shared {
			w.Header().Set(HeaderReplay, "true")
		}
		for k, vs := range res.record.Header {
			w.Header()[k] = append([]string(nil), vs...)
		}
		w.WriteHeader(res.record.StatusCode)
		_, _ = w.Write(res.record.Body)
	})
}

func (rp *Replayer) lookup(ctx context.Context, key string) *Record {
	rec, err := rp.Store.Get(ctx, key)
	if err != nil {
		logtrace.Error(ctx, "idempotency lookup failed", logtrace.Fields{
			logtrace.FieldModule: "idempotency",
			logtrace.FieldError:  err.Error(),
		})
		return nil
	}
	return rec
}

func (rp *Replayer) capture(next http.Handler, r *http.Request, key, fp string) Record {
	cw := &captureWriter{header: make(http.Header), status: http.StatusOK}
	next.ServeHTTP(cw, r)

	now := time.Now()
	if rp.Now != nil {
		now = rp.Now()
	}
	window := rp.Window
	if window <= 0 {
		window = defaultWindow
	}
	rec := Record{
		StatusCode:  cw.status,
		Header:      cw.header.Clone(),
		Body:        cw.body.Bytes(),
		Fingerprint: fp,
		CreatedAt:   now,
		ExpiresAt:   now.Add(window),
	}
	if rp.Cacheable != nil && !rp.Cacheable(cw.status, cw.header) {
		return rec
	}
	if err := rp.Store.Save(r.Context(), key, rec); err != nil {
		logtrace.Error(r.Context(), "idempotency save failed", logtrace.Fields{
			logtrace.FieldModule: "idempotency",
			logtrace.FieldError:  err.Error(),
		})
	}
	return rec
}

// Fingerprint identifies a request by method, path and body.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

type captureWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if c.wroteHeader {
		return
	}
	c.status = status
	c.wroteHeader = true
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.wroteHeader = true
	return c.body.Write(p)
}
