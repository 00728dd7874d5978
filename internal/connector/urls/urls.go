// Package urls observes HTTP endpoints: response status and, for https,
// the serving certificate.
package urls

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/fleetcrawl/internal/cache"
	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/logger"
)

// Defaults for Config.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultCertTTL     = time.Hour
	DefaultConcurrency = 4
)

// Entity is the entity type of observed URLs.
var Entity = ir.EntityType{
	Name: "url",
	Columns: []ir.Column{
		{Name: "url", Type: ir.ColumnText},
		{Name: "host", Type: ir.ColumnText},
	},
	NameExpression: "url",
}

// Config lists the endpoints to check.
type Config struct {
	URLs        []string      `yaml:"urls"`
	Timeout     time.Duration `yaml:"timeout"`
	CertTTL     time.Duration `yaml:"cert_ttl"`
	Concurrency int           `yaml:"concurrency"`
}

// CertInfo describes a leaf certificate.
type CertInfo struct {
	Subject     string    `json:"subject"`
	Issuer      string    `json:"issuer"`
	DNSNames    []string  `json:"dns_names,omitempty"`
	NotBefore   time.Time `json:"not_before"`
	NotAfter    time.Time `json:"not_after"`
	Serial      string    `json:"serial"`
	Fingerprint string    `json:"fingerprint_sha256"`
}

// Connector checks a fixed list of URLs.
type Connector struct {
	cfg    Config
	client *http.Client
	tlsCfg *tls.Config
	certs  *cache.TTL[string, CertInfo]
	log    logger.Logger
	now    func() time.Time
}

// Option configures a Connector.
type Option func(*Connector)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(u *Connector) { u.client = c }
}

// WithTLSConfig sets the TLS configuration used for certificate fetches.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(u *Connector) { u.tlsCfg = cfg }
}

// WithCertCache injects the certificate cache.
func WithCertCache(c *cache.TTL[string, CertInfo]) Option {
	return func(u *Connector) { u.certs = c }
}

// New creates a URL connector.
func New(cfg Config, log logger.Logger, opts ...Option) *Connector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CertTTL <= 0 {
		cfg.CertTTL = DefaultCertTTL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	u := &Connector{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		tlsCfg: &tls.Config{MinVersion: tls.VersionTLS12},
		certs:  cache.New[string, CertInfo](),
		log:    log.WithComponent("urls"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Entity implements connector.Connector.
func (u *Connector) Entity() ir.EntityType { return Entity }

// Observe checks every configured URL. An unreachable endpoint is still
// observed, with the failure recorded in its definition. Only a malformed
// URL fails the whole observation.
func (u *Connector) Observe(ctx context.Context) ([]ir.Observation, error) {
	targets := make([]*url.URL, len(u.cfg.URLs))
	for i, raw := range u.cfg.URLs {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, fmt.Errorf("urls: invalid url %q", raw)
		}
		targets[i] = parsed
	}

	out := make([]ir.Observation, len(targets))

	g := new(errgroup.Group)
	g.SetLimit(u.cfg.Concurrency)
	for i, target := range targets {
		g.Go(func() error {
			out[i] = u.check(ctx, u.cfg.URLs[i], target)
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

func (u *Connector) check(ctx context.Context, raw string, target *url.URL) ir.Observation {
	start := u.now()
	definition := map[string]any{"url": raw}

	status, err := u.status(ctx, raw)
	if err != nil {
		definition["error"] = err.Error()
		u.log.Warn().Err(err).Str("url", raw).Msg("url check failed")
	} else {
		definition["status_code"] = status
	}

	if target.Scheme == "https" {
		hostport := hostPort(target)
		cert, err := u.certs.GetOrCompute(ctx, hostport, u.cfg.CertTTL, func(ctx context.Context) (CertInfo, error) {
			return u.fetchCert(ctx, hostport)
		})
		if err != nil {
			definition["tls_error"] = err.Error()
		} else {
			definition["tls"] = cert
		}
	}

	return ir.Observation{
		LogicalID:  raw,
		Definition: definition,
		Metadata: map[string]any{
			"checked_at":  start.UTC(),
			"duration_ms": u.now().Sub(start).Milliseconds(),
		},
		Columns: map[string]any{
			"url":  raw,
			"host": target.Hostname(),
		},
	}
}

func (u *Connector) status(ctx context.Context, raw string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "fleetcrawl/"+ir.CrawlerVersion)

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (u *Connector) fetchCert(ctx context.Context, hostport string) (CertInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	d := tls.Dialer{Config: u.tlsCfg.Clone()}
	conn, err := d.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return CertInfo{}, fmt.Errorf("tls dial %s: %w", hostport, err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return CertInfo{}, fmt.Errorf("tls dial %s: no peer certificate", hostport)
	}
	leaf := state.PeerCertificates[0]
	sum := sha256.Sum256(leaf.Raw)
	return CertInfo{
		Subject:     leaf.Subject.String(),
		Issuer:      leaf.Issuer.String(),
		DNSNames:    leaf.DNSNames,
		NotBefore:   leaf.NotBefore.UTC(),
		NotAfter:    leaf.NotAfter.UTC(),
		Serial:      leaf.SerialNumber.String(),
		Fingerprint: hex.EncodeToString(sum[:]),
	}, nil
}

func hostPort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), "443")
}
