package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when the resolver is not initialized.
var ErrUnavailable = errors.New("geoip resolver unavailable")

const cacheLimit = 4096

// Resolver maps client IPs to ISO country codes using a MaxMind database.
// Answers are cached; the cache is dropped wholesale once it fills up.
type Resolver struct {
	reader *geoip2.Reader
	lookup func(net.IP) (string, error)

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver opens the database at path. An empty path yields a nil
// resolver and no error.
func NewResolver(path string) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return newResolver(reader, func(ip net.IP) (string, error) {
		record, err := reader.Country(ip)
		if err != nil || record == nil {
			return "", err
		}
		return record.Country.IsoCode, nil
	}), nil
}

func newResolver(reader *geoip2.Reader, lookup func(net.IP) (string, error)) *Resolver {
	return &Resolver{reader: reader, lookup: lookup, cache: make(map[string]string)}
}

// CountryCode returns the ISO country code for ip, or "" for private,
// loopback and unknown addresses.
func (r *Resolver) CountryCode(ip string) (string, error) {
	if r == nil || r.lookup == nil {
		return "", ErrUnavailable
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "", fmt.Errorf("geoip: invalid ip %q", ip)
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return "", nil
	}
	key := parsed.String()

	r.mu.Lock()
	code, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return code, nil
	}

	code, err := r.lookup(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	r.mu.Lock()
	if len(r.cache) >= cacheLimit {
		clear(r.cache)
	}
	r.cache[key] = code
	r.mu.Unlock()
	return code, nil
}

func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
