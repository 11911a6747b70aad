package vsphere

import (
	"context"
	"net"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/vim25/types"
)

// AddressSet is a sorted set of unique address strings. Ordering is
// lexicographic on the text form, so "10.0.0.10" sorts before "10.0.0.5".
type AddressSet []string

// NewAddressSet builds a set from addrs, dropping empty strings and
// duplicates.
func NewAddressSet(addrs ...string) AddressSet {
	seen := make(map[string]struct{}, len(addrs))
	set := AddressSet{}
	for _, a := range addrs {
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		set = append(set, a)
	}
	sort.Strings(set)
	return set
}

// Contains reports whether addr is in the set.
func (s AddressSet) Contains(addr string) bool {
	i := sort.SearchStrings(s, addr)
	return i < len(s) && s[i] == addr
}

// First returns the lexicographically smallest address.
func (s AddressSet) First() (string, bool) {
	if len(s) == 0 {
		return "", false
	}
	return s[0], true
}

// HostAddresses returns the addresses of the host's console (management)
// interfaces. Hosts that report no console interface fall back to their
// general virtual NICs.
func HostAddresses(info *types.HostNetworkInfo) AddressSet {
	if info == nil {
		return AddressSet{}
	}
	if len(info.ConsoleVnic) > 0 {
		return NewAddressSet(vnicAddresses(info.ConsoleVnic)...)
	}
	return NewAddressSet(vnicAddresses(info.Vnic)...)
}

func vnicAddresses(nics []types.HostVirtualNic) []string {
	var addrs []string
	for _, nic := range nics {
		if nic.Spec.Ip == nil {
			continue
		}
		addrs = append(addrs, nic.Spec.Ip.IpAddress)
	}
	return addrs
}

// VMAddresses returns the guest-reported primary address together with
// every address of each guest network adapter.
func VMAddresses(guest *types.GuestInfo) AddressSet {
	if guest == nil {
		return AddressSet{}
	}
	addrs := []string{guest.IpAddress}
	for _, nic := range guest.Net {
		addrs = append(addrs, nic.IpAddress...)
	}
	return NewAddressSet(addrs...)
}

// Resolver picks the primary address of a host.
type Resolver struct {
	// LookupHost resolves a name to addresses.
	LookupHost func(ctx context.Context, host string) ([]string, error)

	log logrus.FieldLogger
}

// NewResolver returns a Resolver backed by the system DNS resolver.
func NewResolver() *Resolver {
	return &Resolver{
		LookupHost: net.DefaultResolver.LookupHost,
		log:        logrus.StandardLogger(),
	}
}

// PrimaryHostAddress resolves name and returns the first resolved address
// that is a candidate. If resolution fails or yields no candidate, the
// smallest candidate is returned. ok is false only for an empty candidate
// set.
//
// This approximates the management network address; it can pick the wrong
// interface on hosts whose name resolves elsewhere.
func (r *Resolver) PrimaryHostAddress(ctx context.Context, name string, candidates AddressSet) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	lookup := r.LookupHost
	if lookup == nil {
		lookup = net.DefaultResolver.LookupHost
	}
	resolved, err := lookup(ctx, name)
	if err != nil {
		r.logger().WithError(err).Debugf("Can't resolve the IP address of %s", name)
	}
	for _, addr := range resolved {
		if candidates.Contains(addr) {
			return addr, true
		}
	}
	return candidates.First()
}

func (r *Resolver) logger() logrus.FieldLogger {
	if r.log == nil {
		return logrus.StandardLogger()
	}
	return r.log
}
