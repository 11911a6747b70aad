package vsphere

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/methods"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/go-tangra/go-tangra-condiag/internal/cim"
)

// TicketAcquirer obtains a CIM service ticket for a host.
type TicketAcquirer interface {
	AcquireCimServicesTicket(ctx context.Context, host types.ManagedObjectReference) (*types.HostServiceTicket, error)
}

// AddressSource lists the candidate addresses of a host.
type AddressSource interface {
	CandidateAddresses(ctx context.Context, host EntityRef) (AddressSet, error)
}

type hostTicketer struct {
	c *vim25.Client
}

func (t hostTicketer) AcquireCimServicesTicket(ctx context.Context, host types.ManagedObjectReference) (*types.HostServiceTicket, error) {
	res, err := methods.AcquireCimServicesTicket(ctx, t.c, &types.AcquireCimServicesTicket{This: host})
	if err != nil {
		return nil, err
	}
	return &res.Returnval, nil
}

// CimTicket is the cached CIM access for one host. An empty URL means no
// address could be resolved for the host.
type CimTicket struct {
	Host      EntityRef
	SessionID string
	URL       string
}

// Degraded reports whether the ticket has no usable agent URL.
func (t CimTicket) Degraded() bool {
	return t.URL == ""
}

// CimSessions memoizes, per host, the CIM ticket and agent URL for the
// lifetime of a session. It is not safe for concurrent use.
type CimSessions struct {
	// Namespace queried by QueryObjects.
	Namespace string
	// Port of the host CIM agent.
	Port int
	// ClientOptions are appended to the options of every CIM client.
	ClientOptions []cim.Option

	tickets  TicketAcquirer
	addrs    AddressSource
	resolver *Resolver
	log      logrus.FieldLogger

	sessionIDs map[string]string
	urls       map[string]string
}

// NewCimSessions returns an empty cache.
func NewCimSessions(tickets TicketAcquirer, addrs AddressSource, resolver *Resolver, log logrus.FieldLogger) *CimSessions {
	if resolver == nil {
		resolver = NewResolver()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CimSessions{
		Namespace:  cim.DefaultNamespace,
		Port:       cim.DefaultPort,
		tickets:    tickets,
		addrs:      addrs,
		resolver:   resolver,
		log:        log,
		sessionIDs: make(map[string]string),
		urls:       make(map[string]string),
	}
}

// AcquireTicket returns the CIM ticket of host, acquiring it remotely on
// first use only. The agent address is ipOverride when set, otherwise the
// host's primary address. When no address is known the ticket is returned
// degraded; the address is looked up again on the next call.
func (c *CimSessions) AcquireTicket(ctx context.Context, host EntityRef, ipOverride string) (CimTicket, error) {
	sid, ok := c.sessionIDs[host.ID]
	if !ok {
		st, err := c.tickets.AcquireCimServicesTicket(ctx, host.Reference())
		if err != nil {
			return CimTicket{}, retrievalError(fmt.Sprintf("acquire cim ticket %s", host.ID), err)
		}
		sid = st.SessionId
		c.sessionIDs[host.ID] = sid
	}

	ticket := CimTicket{Host: host, SessionID: sid}

	if u, ok := c.urls[host.ID]; ok {
		ticket.URL = u
		return ticket, nil
	}

	ip := ipOverride
	if ip == "" {
		ip = c.primaryAddress(ctx, host)
	}
	if ip == "" {
		c.log.WithField("host", host.ID).Warn("Cannot determine ip address for host system")
		return ticket, nil
	}

	ticket.URL = "https://" + net.JoinHostPort(ip, strconv.Itoa(c.Port))
	c.urls[host.ID] = ticket.URL
	return ticket, nil
}

func (c *CimSessions) primaryAddress(ctx context.Context, host EntityRef) string {
	if c.addrs == nil {
		return ""
	}
	candidates, err := c.addrs.CandidateAddresses(ctx, host)
	if err != nil {
		c.log.WithError(err).WithField("host", host.ID).Warn("Cannot list host addresses")
		return ""
	}
	ip, _ := c.resolver.PrimaryHostAddress(ctx, host.Name, candidates)
	return ip
}

// QueryObjects enumerates every instance of className on the host CIM
// agent. A host without a resolvable address yields an empty result.
func (c *CimSessions) QueryObjects(ctx context.Context, host EntityRef, className, ipOverride string) ([]cim.Instance, error) {
	ticket, err := c.AcquireTicket(ctx, host, ipOverride)
	if err != nil {
		return nil, err
	}
	if ticket.Degraded() {
		c.log.WithFields(logrus.Fields{"host": host.ID, "class": className}).Warn("Skipping CIM query, host has no address")
		return []cim.Instance{}, nil
	}

	opts := []cim.Option{cim.WithInsecureTLS()}
	opts = append(opts, c.ClientOptions...)
	opts = append(opts,
		cim.WithCredentials(ticket.SessionID, ticket.SessionID),
		cim.WithMPost(false),
	)

	client, err := cim.NewClient(ticket.URL, opts...)
	if err != nil {
		return nil, retrievalError(fmt.Sprintf("cim client %s", host.ID), err)
	}

	instances, err := client.EnumerateInstances(ctx, c.Namespace, className)
	if err != nil {
		return nil, retrievalError(fmt.Sprintf("enumerate %s on %s", className, host.ID), err)
	}
	return instances, nil
}

// QueryObjects enumerates className on the host CIM agent through the
// session's ticket cache.
func (s *Session) QueryObjects(ctx context.Context, host EntityRef, className, ipOverride string) ([]cim.Instance, error) {
	if !s.Connected() || s.Tickets == nil {
		return nil, retrievalError(fmt.Sprintf("enumerate %s on %s", className, host.ID), errNotConnected)
	}
	return s.Tickets.QueryObjects(ctx, host, className, ipOverride)
}
