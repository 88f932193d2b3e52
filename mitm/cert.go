// Package mitm implements the TLS interception engine (C8, C9): dynamic
// leaf-certificate issuance and caching from a configured root, TLS
// ClientHello detection, and plaintext HTTP capture.
package mitm

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"strings"
	"sync"
	"time"

	veil "github.com/mohanson/veil"
	"software.sslmate.com/src/go-pkcs12"
)

// leafValidity is the lifetime of a minted leaf certificate (§4.7).
const leafValidity = 30 * 24 * time.Hour

// Pattern is a literal hostname or a "*.suffix" wildcard used both to match
// an incoming CONNECT hostname and to key the leaf cache (§3 "Pattern key").
type Pattern struct {
	raw      string
	wildcard bool
	suffix   string // set when wildcard; the part after "*."
}

// ParsePattern parses a literal or "*.suffix" pattern.
func ParsePattern(s string) Pattern {
	if strings.HasPrefix(s, "*.") {
		return Pattern{raw: s, wildcard: true, suffix: s[1:]} // keep the leading dot in suffix
	}
	return Pattern{raw: s}
}

func (p Pattern) String() string { return p.raw }

// matches reports whether host is covered by p. A wildcard "*.suffix"
// matches any host ending in the dotted suffix, per §4.7's "suffix match
// includes the dot".
func (p Pattern) matches(host string) bool {
	if !p.wildcard {
		return p.raw == host
	}
	return strings.HasSuffix(host, p.suffix)
}

// CertEngine mints and caches leaf certificates signed by a configured root,
// keyed by the matched pattern rather than the peer hostname (§3, §9 open
// question: this means every host under one wildcard pattern shares a
// single leaf, which is the documented, accepted behavior here).
type CertEngine struct {
	rootCert *x509.Certificate
	rootKey  *rsa.PrivateKey

	mu         sync.Mutex
	patterns   []Pattern
	cache      map[string]*tls.Certificate
	skipVerify bool
}

// NewCertEngine parses a PKCS#12 bundle (root certificate + private key) and
// returns a ready CertEngine with no patterns enabled. Call SetPatterns to
// enable interception for specific hostnames.
func NewCertEngine(p12 []byte, passphrase string, skipVerify bool) (*CertEngine, error) {
	key, cert, err := pkcs12.Decode(p12, passphrase)
	if err != nil {
		return nil, veil.NewError(veil.KindResourceError, "mitm: parse root PKCS#12", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, veil.NewError(veil.KindResourceError, "mitm: root key is not RSA", nil)
	}
	return &CertEngine{
		rootCert:   cert,
		rootKey:    rsaKey,
		cache:      map[string]*tls.Certificate{},
		skipVerify: skipVerify,
	}, nil
}

// SetPatterns replaces the enabled pattern set. Entries in the leaf cache
// whose pattern disappeared are dropped; entries for patterns that survive
// are preserved untouched (not re-minted), per §4.7's "Pattern reset" rule.
func (e *CertEngine) SetPatterns(patterns []Pattern) {
	e.mu.Lock()
	defer e.mu.Unlock()
	keep := map[string]bool{}
	for _, p := range patterns {
		keep[p.raw] = true
	}
	for key := range e.cache {
		if !keep[key] {
			delete(e.cache, key)
		}
	}
	e.patterns = patterns
}

// Match selects the cache key for host: exact literal wins over a
// "*.suffix" wildcard, regardless of pattern list order (§4.7). ok is false
// when no pattern covers host; the caller must fall back to a pure tunnel.
func (e *CertEngine) Match(host string) (key string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var wildcardMatch string
	haveWildcard := false
	for _, p := range e.patterns {
		if !p.wildcard && p.raw == host {
			return p.raw, true
		}
		if p.wildcard && p.matches(host) && !haveWildcard {
			wildcardMatch = p.raw
			haveWildcard = true
		}
	}
	if haveWildcard {
		return wildcardMatch, true
	}
	return "", false
}

// LeafFor returns the cached or freshly minted leaf certificate for host,
// or ok=false if no enabled pattern covers it. Issuance is serialized under
// the engine's single mutex, so concurrent requests for the same key never
// mint twice (§4.7 concurrency).
func (e *CertEngine) LeafFor(host string) (cert *tls.Certificate, ok bool) {
	key, matched := e.Match(host)
	if !matched {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, found := e.cache[key]; found {
		return c, true
	}
	c, err := e.mint(key)
	if err != nil {
		// A failed mint disables MitM for this key; the caller falls back
		// to pure tunneling per §7's "never proceed if cert lookup fails".
		return nil, false
	}
	e.cache[key] = c
	return c, true
}

func (e *CertEngine) mint(key string) (*tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: key},
		Issuer:       e.rootCert.Subject,
		NotBefore:    now,
		NotAfter:     now.Add(leafValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{key},
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, e.rootCert, &priv.PublicKey, e.rootKey)
	if err != nil {
		return nil, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}, nil
}

// ServerTLSConfig returns a tls.Config that terminates TLS toward the
// client, minting/serving leaves on demand via SNI.
func (e *CertEngine) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			cert, ok := e.LeafFor(hello.ServerName)
			if !ok {
				return nil, veil.NewError(veil.KindResourceError, "mitm: no pattern matches "+hello.ServerName, nil)
			}
			return cert, nil
		},
	}
}

// ClientTLSConfig returns a tls.Config for initiating TLS toward the
// origin, with SNI set to host.
func (e *CertEngine) ClientTLSConfig(host string) *tls.Config {
	return &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: e.skipVerify,
	}
}
