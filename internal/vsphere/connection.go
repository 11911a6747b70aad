package vsphere

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/performance"
	"github.com/vmware/govmomi/vim25/types"
)

// sdkPath is the fixed path of the management API on the endpoint.
const sdkPath = "/sdk"

var errNotConnected = errors.New("session is not connected")

// Manager establishes sessions against a single management endpoint.
type Manager struct {
	log      logrus.FieldLogger
	resolver *Resolver
	relaxed  bool
}

// NewManager returns a Manager that verifies server certificates until
// RelaxTrust is called.
func NewManager(log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{log: log, resolver: NewResolver()}
}

// SetResolver replaces the resolver handed to new sessions.
func (m *Manager) SetResolver(r *Resolver) {
	m.resolver = r
}

// RelaxTrust makes subsequent connects accept any server certificate and any
// server hostname. It only affects sessions created by this Manager.
func (m *Manager) RelaxTrust() {
	m.relaxed = true
	m.log.Warn("Relaxed transport trust enabled: server certificates and hostnames are not verified")
}

// TrustRelaxed reports whether RelaxTrust has been called.
func (m *Manager) TrustRelaxed() bool {
	return m.relaxed
}

// Connect builds the endpoint URL for hostname and logs in with the given
// credentials.
func (m *Manager) Connect(ctx context.Context, hostname, username, password string) (*Session, error) {
	u, err := endpointURL(hostname)
	if err != nil {
		return nil, &ConnectionError{Host: hostname, Err: err}
	}
	u.User = url.UserPassword(username, password)

	c, err := govmomi.NewClient(ctx, u, m.relaxed)
	if err != nil {
		return nil, &ConnectionError{Host: hostname, Err: err}
	}

	u.User = url.User(username)
	m.log.WithField("url", u.Redacted()).Debug("Session established")

	return newSession(c, u, username, m.log, m.resolver), nil
}

func endpointURL(hostname string) (*url.URL, error) {
	if strings.TrimSpace(hostname) == "" {
		return nil, errors.New("empty hostname")
	}
	u, err := url.Parse("https://" + hostname + sdkPath)
	if err != nil {
		return nil, fmt.Errorf("malformed endpoint: %w", err)
	}
	if u.Host == "" || u.User != nil || u.Path != sdkPath || u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("malformed endpoint %q", hostname)
	}
	return u, nil
}

// Session is an authenticated connection to the management endpoint. It owns
// the per-session caches; both are discarded by Disconnect.
type Session struct {
	URL      *url.URL
	Username string
	Timeout  time.Duration

	Tickets *CimSessions
	Catalog *Catalog

	client   *govmomi.Client
	perf     *performance.Manager
	resolver *Resolver
	log      logrus.FieldLogger
}

func newSession(c *govmomi.Client, u *url.URL, username string, log logrus.FieldLogger, resolver *Resolver) *Session {
	if resolver == nil {
		resolver = NewResolver()
	}
	s := &Session{
		URL:      u,
		Username: username,
		client:   c,
		perf:     performance.NewManager(c.Client),
		resolver: resolver,
		log:      log,
	}
	s.Tickets = NewCimSessions(hostTicketer{c: c.Client}, s, resolver, log)
	s.Catalog = NewCatalog(s.perf)
	return s
}

// Host returns the host[:port] of the management endpoint.
func (s *Session) Host() string {
	if s == nil || s.URL == nil {
		return ""
	}
	return s.URL.Host
}

// Connected reports whether the session still holds a client.
func (s *Session) Connected() bool {
	return s != nil && s.client != nil
}

// SetTimeout applies d as both connect and read timeout. It returns false if
// any transport handle needed to apply it is missing.
func (s *Session) SetTimeout(d time.Duration) bool {
	if s == nil || s.client == nil || s.client.Client == nil || s.client.Client.Client == nil {
		return false
	}
	sc := s.client.Client.Client
	t := sc.DefaultTransport()
	if t == nil {
		return false
	}

	dialer := &net.Dialer{Timeout: d, KeepAlive: 30 * time.Second}
	t.DialContext = dialer.DialContext
	t.TLSHandshakeTimeout = d
	t.ResponseHeaderTimeout = d
	sc.Timeout = d

	s.Timeout = d
	return true
}

// Disconnect logs out. It is safe on a nil or never-connected session and
// never fails; a logout error is only logged.
func (s *Session) Disconnect(ctx context.Context) {
	if s == nil || s.client == nil {
		return
	}
	if err := s.client.Logout(ctx); err != nil {
		s.log.WithError(err).Warn("Logout failed")
	}
	s.client = nil
	s.perf = nil
	s.Tickets = nil
	s.Catalog = nil
}

// AboutInfo describes the management endpoint.
type AboutInfo struct {
	Name         string `json:"name" yaml:"name"`
	FullName     string `json:"full_name" yaml:"full_name"`
	Vendor       string `json:"vendor" yaml:"vendor"`
	Version      string `json:"version" yaml:"version"`
	Build        string `json:"build" yaml:"build"`
	OSType       string `json:"os_type" yaml:"os_type"`
	APIType      string `json:"api_type" yaml:"api_type"`
	APIVersion   string `json:"api_version" yaml:"api_version"`
	InstanceUUID string `json:"instance_uuid,omitempty" yaml:"instance_uuid,omitempty"`
}

// About returns the endpoint's about info, or the zero value when the
// session is not connected.
func (s *Session) About() AboutInfo {
	if !s.Connected() || s.client.Client == nil {
		return AboutInfo{}
	}
	return aboutInfo(s.client.ServiceContent.About)
}

func aboutInfo(a types.AboutInfo) AboutInfo {
	return AboutInfo{
		Name:         a.Name,
		FullName:     a.FullName,
		Vendor:       a.Vendor,
		Version:      a.Version,
		Build:        a.Build,
		OSType:       a.OsType,
		APIType:      a.ApiType,
		APIVersion:   a.ApiVersion,
		InstanceUUID: a.InstanceUuid,
	}
}

// MajorAPIVersion returns the endpoint's major API version, 0 if unknown.
func (s *Session) MajorAPIVersion() int {
	if !s.Connected() {
		return 0
	}
	v := s.About().APIVersion
	major, err := parseMajorAPIVersion(v)
	if err != nil {
		s.log.WithError(err).Errorf("Cannot parse API version %q", v)
		return 0
	}
	return major
}

// parseMajorAPIVersion reads the major component of a dotted version.
// Versions older than 4 are reported as 3.
func parseMajorAPIVersion(v string) (int, error) {
	parts := strings.Split(v, ".")
	if len(parts) < 2 {
		return 0, fmt.Errorf("version %q has no minor component", v)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("version %q: %w", v, err)
	}
	if major < 4 {
		major = 3
	}
	return major, nil
}
