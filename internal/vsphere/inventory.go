package vsphere

import (
	"context"
	"fmt"
	"sort"

	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"
)

// EntityKind is the managed object type of an inventory entity.
type EntityKind string

const (
	KindHost           EntityKind = "HostSystem"
	KindVirtualMachine EntityKind = "VirtualMachine"
)

func (k EntityKind) valid() bool {
	return k == KindHost || k == KindVirtualMachine
}

// EntityRef refers to a host or virtual machine in the remote inventory.
type EntityRef struct {
	Kind EntityKind `json:"kind" yaml:"kind"`
	ID   string     `json:"id" yaml:"id"`
	Name string     `json:"name" yaml:"name"`
}

// Reference returns the managed object reference of the entity.
func (r EntityRef) Reference() types.ManagedObjectReference {
	return types.ManagedObjectReference{Type: string(r.Kind), Value: r.ID}
}

func (r EntityRef) String() string {
	if r.Name == "" {
		return fmt.Sprintf("%s:%s", r.Kind, r.ID)
	}
	return fmt.Sprintf("%s:%s (%s)", r.Kind, r.ID, r.Name)
}

// Search returns every entity of the given kind below the inventory root,
// ordered by name and then id.
func (s *Session) Search(ctx context.Context, kind EntityKind) ([]EntityRef, error) {
	op := fmt.Sprintf("search %s", kind)
	if !s.Connected() {
		return nil, retrievalError(op, errNotConnected)
	}
	if !kind.valid() {
		return nil, retrievalError(op, fmt.Errorf("unsupported entity kind %q", kind))
	}

	c := s.client.Client
	v, err := view.NewManager(c).CreateContainerView(ctx, c.ServiceContent.RootFolder, []string{string(kind)}, true)
	if err != nil {
		return nil, retrievalError(op, err)
	}
	defer func() {
		if err := v.Destroy(ctx); err != nil {
			s.log.WithError(err).Debug("Destroy container view")
		}
	}()

	var entities []mo.ManagedEntity
	if err := v.Retrieve(ctx, []string{string(kind)}, []string{"name"}, &entities); err != nil {
		return nil, retrievalError(op, err)
	}

	refs := make([]EntityRef, 0, len(entities))
	for _, e := range entities {
		refs = append(refs, EntityRef{Kind: kind, ID: e.Self.Value, Name: e.Name})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Name != refs[j].Name {
			return refs[i].Name < refs[j].Name
		}
		return refs[i].ID < refs[j].ID
	})
	return refs, nil
}

// EntityByID resolves a managed object id of the given kind.
func (s *Session) EntityByID(ctx context.Context, kind EntityKind, id string) (EntityRef, error) {
	op := fmt.Sprintf("lookup %s %s", kind, id)
	if !s.Connected() {
		return EntityRef{}, retrievalError(op, errNotConnected)
	}
	if !kind.valid() {
		return EntityRef{}, retrievalError(op, fmt.Errorf("unsupported entity kind %q", kind))
	}

	ref := EntityRef{Kind: kind, ID: id}
	var e mo.ManagedEntity
	if err := property.DefaultCollector(s.client.Client).RetrieveOne(ctx, ref.Reference(), []string{"name"}, &e); err != nil {
		return EntityRef{}, retrievalError(op, err)
	}
	ref.Name = e.Name
	return ref, nil
}

// HostNetworkInfo returns the network configuration of a host, or nil when
// the host has no network subsystem.
func (s *Session) HostNetworkInfo(ctx context.Context, host EntityRef) (*types.HostNetworkInfo, error) {
	op := fmt.Sprintf("network info %s", host.ID)
	if !s.Connected() {
		return nil, retrievalError(op, errNotConnected)
	}

	pc := property.DefaultCollector(s.client.Client)

	var h mo.HostSystem
	if err := pc.RetrieveOne(ctx, host.Reference(), []string{"configManager.networkSystem"}, &h); err != nil {
		return nil, retrievalError(op, err)
	}
	if h.ConfigManager.NetworkSystem == nil {
		return nil, nil
	}

	var ns mo.HostNetworkSystem
	if err := pc.RetrieveOne(ctx, *h.ConfigManager.NetworkSystem, []string{"networkInfo"}, &ns); err != nil {
		return nil, retrievalError(op, err)
	}
	return ns.NetworkInfo, nil
}

// GuestInfo returns what the guest agent reports for a virtual machine.
func (s *Session) GuestInfo(ctx context.Context, vm EntityRef) (*types.GuestInfo, error) {
	op := fmt.Sprintf("guest info %s", vm.ID)
	if !s.Connected() {
		return nil, retrievalError(op, errNotConnected)
	}

	var m mo.VirtualMachine
	if err := property.DefaultCollector(s.client.Client).RetrieveOne(ctx, vm.Reference(), []string{"guest"}, &m); err != nil {
		return nil, retrievalError(op, err)
	}
	return m.Guest, nil
}

// CandidateAddresses returns the candidate addresses of a host.
func (s *Session) CandidateAddresses(ctx context.Context, host EntityRef) (AddressSet, error) {
	info, err := s.HostNetworkInfo(ctx, host)
	if err != nil {
		return nil, err
	}
	return HostAddresses(info), nil
}

// PrimaryAddress picks the primary address of host among candidates.
func (s *Session) PrimaryAddress(ctx context.Context, host EntityRef, candidates AddressSet) (string, bool) {
	r := NewResolver()
	if s != nil && s.resolver != nil {
		r = s.resolver
	}
	return r.PrimaryHostAddress(ctx, host.Name, candidates)
}

// VMAddresses returns the candidate addresses of a virtual machine.
func (s *Session) VMAddresses(ctx context.Context, vm EntityRef) (AddressSet, error) {
	guest, err := s.GuestInfo(ctx, vm)
	if err != nil {
		return nil, err
	}
	return VMAddresses(guest), nil
}
