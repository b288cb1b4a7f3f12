package policy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fsPtr(m FilesystemMode) *FilesystemMode { return &m }
func netPtr(m NetworkMode) *NetworkMode      { return &m }
func appPtr(p ApprovalPolicy) *ApprovalPolicy {
	return &p
}
func uintPtr(v uint) *uint { return &v }

func TestClampFieldsDefaultToParent(t *testing.T) {
	parent := Policy{
		Filesystem:      FilesystemWorkspaceWrite,
		Network:         NetworkAllowAll,
		Approval:        ApprovalOnRequest,
		ApprovalTimeout: 60,
	}

	eff := Clamp(parent, Request{})
	assert.Equal(t, parent.Filesystem, eff.Filesystem)
	assert.Equal(t, parent.Network, eff.Network)
	assert.Equal(t, parent.Approval, eff.Approval)
	assert.Equal(t, parent.ApprovalTimeout, eff.ApprovalTimeout)
}

func TestClampNeverWidensFilesystem(t *testing.T) {
	// Parent read-only, child asks for full access, stays read-only.
	parent := Policy{Filesystem: FilesystemReadOnly, Network: NetworkAllowAll}
	eff := Clamp(parent, Request{Filesystem: fsPtr(FilesystemFullAccess)})
	assert.Equal(t, FilesystemReadOnly, eff.Filesystem)
}

func TestClampNarrowsFilesystem(t *testing.T) {
	parent := Policy{Filesystem: FilesystemFullAccess}
	eff := Clamp(parent, Request{Filesystem: fsPtr(FilesystemReadOnly)})
	assert.Equal(t, FilesystemReadOnly, eff.Filesystem)
}

func TestClampAllowlistIntersection(t *testing.T) {
	// Parent on an allowlist; child asks for allow-all plus extra domains.
	// Mode clamps back to allowlist and the list intersects.
	parent := Policy{
		Network:          NetworkAllowlist,
		NetworkAllowlist: []string{"a.com", "b.com"},
	}
	eff := Clamp(parent, Request{
		Network:          netPtr(NetworkAllowAll),
		NetworkAllowlist: []string{"b.com", "c.com"},
	})
	assert.Equal(t, NetworkAllowlist, eff.Network)
	assert.Equal(t, []string{"b.com"}, eff.NetworkAllowlist)
}

func TestClampAllowlistUnderDenyParent(t *testing.T) {
	parent := Policy{Network: NetworkDeny}
	eff := Clamp(parent, Request{
		Network:          netPtr(NetworkAllowlist),
		NetworkAllowlist: []string{"a.com"},
	})
	assert.Equal(t, NetworkDeny, eff.Network)
	assert.Empty(t, eff.NetworkAllowlist)
}

func TestClampAllowlistUnderAllowAllParent(t *testing.T) {
	parent := Policy{Network: NetworkAllowAll}
	eff := Clamp(parent, Request{
		Network:          netPtr(NetworkAllowlist),
		NetworkAllowlist: []string{"b.com", "a.com", "a.com"},
	})
	assert.Equal(t, NetworkAllowlist, eff.Network)
	assert.Equal(t, []string{"a.com", "b.com"}, eff.NetworkAllowlist)
}

func TestClampAllowlistEmptyWhenModeNotAllowlist(t *testing.T) {
	parent := Policy{
		Network:          NetworkAllowlist,
		NetworkAllowlist: []string{"a.com"},
	}
	eff := Clamp(parent, Request{Network: netPtr(NetworkDeny)})
	assert.Equal(t, NetworkDeny, eff.Network)
	assert.Empty(t, eff.NetworkAllowlist)
}

func TestClampAllowlistInheritsParentListWhenAbsent(t *testing.T) {
	parent := Policy{
		Network:          NetworkAllowlist,
		NetworkAllowlist: []string{"b.com", "a.com"},
	}
	eff := Clamp(parent, Request{})
	assert.Equal(t, []string{"a.com", "b.com"}, eff.NetworkAllowlist)
}

func TestClampTimeout(t *testing.T) {
	parent := Policy{ApprovalTimeout: 120}

	eff := Clamp(parent, Request{ApprovalTimeout: uintPtr(30)})
	assert.Equal(t, uint(30), eff.ApprovalTimeout)

	eff = Clamp(parent, Request{ApprovalTimeout: uintPtr(600)})
	assert.Equal(t, uint(120), eff.ApprovalTimeout)
}

func TestClampApprovalPolicy(t *testing.T) {
	// OnFailure(3) is the most permissive; Never(1) requested under an
	// OnFailure parent narrows to Never.
	parent := Policy{Approval: ApprovalOnFailure}
	eff := Clamp(parent, Request{Approval: appPtr(ApprovalNever)})
	assert.Equal(t, ApprovalNever, eff.Approval)

	// The reverse never widens.
	parent = Policy{Approval: ApprovalUnlessTrusted}
	eff = Clamp(parent, Request{Approval: appPtr(ApprovalOnFailure)})
	assert.Equal(t, ApprovalUnlessTrusted, eff.Approval)
}

func TestClampReadOnlyParentScenario(t *testing.T) {
	parent := Policy{Filesystem: FilesystemReadOnly, Network: NetworkAllowAll}
	eff := Clamp(parent, Request{Filesystem: fsPtr(FilesystemFullAccess)})
	assert.Equal(t, FilesystemReadOnly, eff.Filesystem)
	assert.Equal(t, NetworkAllowAll, eff.Network)
}

func randomPolicy(r *rand.Rand) Policy {
	domains := []string{"a.com", "b.com", "c.com", "d.com"}
	list := make([]string, 0)
	for _, d := range domains {
		if r.Intn(2) == 0 {
			list = append(list, d)
		}
	}
	return Policy{
		Filesystem:       FilesystemMode(r.Intn(3)),
		Network:          NetworkMode(r.Intn(3)),
		NetworkAllowlist: list,
		Approval:         ApprovalPolicy(r.Intn(4)),
		ApprovalTimeout:  uint(r.Intn(300)),
	}
}

func randomRequest(r *rand.Rand) Request {
	var req Request
	if r.Intn(2) == 0 {
		req.Filesystem = fsPtr(FilesystemMode(r.Intn(3)))
	}
	if r.Intn(2) == 0 {
		req.Network = netPtr(NetworkMode(r.Intn(3)))
	}
	if r.Intn(2) == 0 {
		req.Approval = appPtr(ApprovalPolicy(r.Intn(4)))
	}
	if r.Intn(2) == 0 {
		req.ApprovalTimeout = uintPtr(uint(r.Intn(300)))
	}
	if r.Intn(2) == 0 {
		domains := []string{"a.com", "b.com", "c.com", "d.com"}
		list := make([]string, 0)
		for _, d := range domains {
			if r.Intn(2) == 0 {
				list = append(list, d)
			}
		}
		req.NetworkAllowlist = list
	}
	return req
}

func asRequest(p Policy) Request {
	// A Policy's allowlist is its full truth. Pass it explicitly so a nil
	// list is not misread as "inherit the parent's".
	list := p.NetworkAllowlist
	if list == nil {
		list = []string{}
	}
	return Request{
		Filesystem:       fsPtr(p.Filesystem),
		Network:          netPtr(p.Network),
		NetworkAllowlist: list,
		Approval:         appPtr(p.Approval),
		ApprovalTimeout:  uintPtr(p.ApprovalTimeout),
	}
}

func subset(t *testing.T, sub, super []string) {
	t.Helper()
	in := make(map[string]struct{}, len(super))
	for _, d := range super {
		in[d] = struct{}{}
	}
	for _, d := range sub {
		_, ok := in[d]
		require.True(t, ok, "domain %q not in parent allowlist %v", d, super)
	}
}

// Randomized check of the core lattice invariant: no field of the effective
// policy ever exceeds the parent's rank, and the allowlist never escapes the
// parent's when the parent itself was allowlisted.
func TestClampNeverMorePermissiveProperty(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		parent := randomPolicy(r)
		req := randomRequest(r)
		eff := Clamp(parent, req)

		require.LessOrEqual(t, eff.Filesystem.Rank(), parent.Filesystem.Rank())
		require.LessOrEqual(t, eff.Network.Rank(), parent.Network.Rank())
		require.LessOrEqual(t, eff.Approval.Rank(), parent.Approval.Rank())
		require.LessOrEqual(t, eff.ApprovalTimeout, parent.ApprovalTimeout)

		if eff.Network != NetworkAllowlist {
			require.Empty(t, eff.NetworkAllowlist)
		} else if parent.Network == NetworkAllowlist {
			subset(t, eff.NetworkAllowlist, NormalizeAllowlist(parent.NetworkAllowlist))
		}
	}
}

func TestClampIdempotenceProperty(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		parent := randomPolicy(r)
		req := randomRequest(r)

		once := Clamp(parent, req)
		twice := Clamp(parent, asRequest(once))
		require.Equal(t, once, twice)
	}
}
