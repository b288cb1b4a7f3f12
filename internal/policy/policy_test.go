package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilesystemMode(t *testing.T) {
	tests := []struct {
		input    string
		expected FilesystemMode
		wantErr  bool
	}{
		{"read-only", FilesystemReadOnly, false},
		{"readonly", FilesystemReadOnly, false},
		{"workspace-write", FilesystemWorkspaceWrite, false},
		{"  Workspace-Write ", FilesystemWorkspaceWrite, false},
		{"full-access", FilesystemFullAccess, false},
		{"everything", FilesystemReadOnly, true},
		{"", FilesystemReadOnly, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFilesystemMode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseNetworkMode(t *testing.T) {
	got, err := ParseNetworkMode("allowlist")
	require.NoError(t, err)
	assert.Equal(t, NetworkAllowlist, got)

	_, err = ParseNetworkMode("wide-open")
	require.Error(t, err)

	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "networkMode", invalid.Field)
	assert.Equal(t, "wide-open", invalid.Value)
}

func TestParseApprovalPolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected ApprovalPolicy
	}{
		{"unless-trusted", ApprovalUnlessTrusted},
		{"never", ApprovalNever},
		{"on-request", ApprovalOnRequest},
		{"on-failure", ApprovalOnFailure},
	}
	for _, tt := range tests {
		got, err := ParseApprovalPolicy(tt.input)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
	}

	_, err := ParseApprovalPolicy("sometimes")
	assert.True(t, errors.Is(err, ErrInvalid))
}

// The approval rank order is intentionally non-alphabetical. Each adjacent
// pair is pinned here so a reordering of the constants cannot slip through.
func TestApprovalPolicyRankOrder(t *testing.T) {
	pairs := []struct {
		lower, higher ApprovalPolicy
	}{
		{ApprovalUnlessTrusted, ApprovalNever},
		{ApprovalNever, ApprovalOnRequest},
		{ApprovalOnRequest, ApprovalOnFailure},
		{ApprovalUnlessTrusted, ApprovalOnRequest},
		{ApprovalUnlessTrusted, ApprovalOnFailure},
		{ApprovalNever, ApprovalOnFailure},
	}
	for _, p := range pairs {
		t.Run(p.lower.String()+"<"+p.higher.String(), func(t *testing.T) {
			assert.Less(t, p.lower.Rank(), p.higher.Rank())
		})
	}
}

func TestFilesystemAndNetworkRankOrder(t *testing.T) {
	assert.Less(t, FilesystemReadOnly.Rank(), FilesystemWorkspaceWrite.Rank())
	assert.Less(t, FilesystemWorkspaceWrite.Rank(), FilesystemFullAccess.Rank())
	assert.Less(t, NetworkDeny.Rank(), NetworkAllowlist.Rank())
	assert.Less(t, NetworkAllowlist.Rank(), NetworkAllowAll.Rank())
}

func TestNormalizeAllowlist(t *testing.T) {
	assert.Nil(t, NormalizeAllowlist(nil))
	assert.Nil(t, NormalizeAllowlist([]string{}))
	assert.Nil(t, NormalizeAllowlist([]string{"", "  "}))
	assert.Equal(t,
		[]string{"a.com", "b.com"},
		NormalizeAllowlist([]string{" b.com", "a.com", "b.com", ""}))
}

func TestDefaultPolicy(t *testing.T) {
	p := Default()
	assert.Equal(t, FilesystemWorkspaceWrite, p.Filesystem)
	assert.Equal(t, NetworkAllowlist, p.Network)
	assert.Equal(t, ApprovalOnFailure, p.Approval)
	assert.NotZero(t, p.ApprovalTimeout)
}
