package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuellner/telepathy-mission-control/pkg/registry"
)

func TestRole_HasAndString(t *testing.T) {
	r := registry.RoleObserver | registry.RoleHandler
	assert.True(t, r.Has(registry.RoleObserver))
	assert.True(t, r.Has(registry.RoleHandler))
	assert.False(t, r.Has(registry.RoleApprover))
	assert.Equal(t, "observer|handler", r.String())

	var none registry.Role
	assert.Equal(t, "none", none.String())
}

func TestValidateWellKnownName(t *testing.T) {
	reg := registry.New("org.example.DispatchClient")

	t.Run("empty is unchanged", func(t *testing.T) {
		suffix, err := reg.ValidateWellKnownName("")
		require.NoError(t, err)
		assert.Equal(t, "", suffix)
	})

	t.Run("valid name strips prefix", func(t *testing.T) {
		suffix, err := reg.ValidateWellKnownName("org.example.DispatchClient.Client.MyHandler")
		require.NoError(t, err)
		assert.Equal(t, "MyHandler", suffix)
	})

	t.Run("missing prefix rejected", func(t *testing.T) {
		_, err := reg.ValidateWellKnownName("com.other.Thing")
		assert.Error(t, err)
	})

	t.Run("empty suffix rejected", func(t *testing.T) {
		_, err := reg.ValidateWellKnownName("org.example.DispatchClient.Client.")
		assert.Error(t, err)
	})
}

func TestRegisterAndLookup(t *testing.T) {
	reg := registry.New("org.example.DispatchClient")
	ep := &registry.Endpoint{Name: "H1", Roles: registry.RoleHandler, Filter: registry.MatchAny()}

	reg.Register(ep)

	found, ok := reg.Lookup("H1")
	require.True(t, ok)
	assert.Equal(t, "H1", found.Name)

	_, ok = reg.Lookup("missing")
	assert.False(t, ok)
}

func TestDeregister_HidesFromLookupAndLists(t *testing.T) {
	reg := registry.New("org.example.DispatchClient")
	reg.Register(&registry.Endpoint{Name: "H1", Roles: registry.RoleHandler | registry.RoleObserver, Filter: registry.MatchAny()})

	reg.Deregister("H1")

	_, ok := reg.Lookup("H1")
	assert.False(t, ok)
	assert.Empty(t, reg.MatchingObservers())
	assert.Empty(t, reg.PossibleHandlers())
}

func TestMatchingObserversAndApprovers_RegistrationOrder(t *testing.T) {
	reg := registry.New("org.example.DispatchClient")
	reg.Register(&registry.Endpoint{Name: "O1", Roles: registry.RoleObserver, Filter: registry.MatchAny()})
	reg.Register(&registry.Endpoint{Name: "O2", Roles: registry.RoleObserver, Filter: registry.MatchAny()})
	reg.Register(&registry.Endpoint{Name: "A1", Roles: registry.RoleApprover, Filter: registry.MatchAny()})

	observers := reg.MatchingObservers()
	require.Len(t, observers, 2)
	assert.Equal(t, "O1", observers[0].Name)
	assert.Equal(t, "O2", observers[1].Name)

	approvers := reg.MatchingApprovers()
	require.Len(t, approvers, 1)
	assert.Equal(t, "A1", approvers[0].Name)
}

func TestBypassesApproval(t *testing.T) {
	reg := registry.New("org.example.DispatchClient")
	reg.Register(&registry.Endpoint{Name: "H1", Roles: registry.RoleHandler, Filter: registry.MatchAny(), BypassApproval: true})
	reg.Register(&registry.Endpoint{Name: "H2", Roles: registry.RoleHandler, Filter: registry.MatchAny(), BypassApproval: false})

	assert.True(t, reg.BypassesApproval("H1"))
	assert.False(t, reg.BypassesApproval("H2"))
	assert.False(t, reg.BypassesApproval("missing"))
}

func TestIsLiveHandler(t *testing.T) {
	reg := registry.New("org.example.DispatchClient")
	reg.Register(&registry.Endpoint{Name: "H1", Roles: registry.RoleHandler, Filter: registry.MatchAny()})
	reg.Register(&registry.Endpoint{Name: "O1", Roles: registry.RoleObserver, Filter: registry.MatchAny()})

	assert.True(t, reg.IsLiveHandler("H1"))
	assert.False(t, reg.IsLiveHandler("O1"))
	assert.False(t, reg.IsLiveHandler("missing"))
}

func TestPossibleHandlers_BypassFirstThenExclusions(t *testing.T) {
	reg := registry.New("org.example.DispatchClient")
	reg.Register(&registry.Endpoint{Name: "Normal1", Roles: registry.RoleHandler, Filter: registry.MatchAny(), BypassApproval: false})
	reg.Register(&registry.Endpoint{Name: "Bypass1", Roles: registry.RoleHandler, Filter: registry.MatchAny(), BypassApproval: true})
	reg.Register(&registry.Endpoint{Name: "Normal2", Roles: registry.RoleHandler, Filter: registry.MatchAny(), BypassApproval: false})

	handlers := reg.PossibleHandlers()
	require.Len(t, handlers, 3)
	assert.Equal(t, "Bypass1", handlers[0])
	assert.ElementsMatch(t, []string{"Normal1", "Normal2"}, handlers[1:])

	excluded := reg.PossibleHandlers("Bypass1")
	assert.NotContains(t, excluded, "Bypass1")
	assert.Len(t, excluded, 2)
}

func TestRegister_ReplacesExistingEndpoint(t *testing.T) {
	reg := registry.New("org.example.DispatchClient")
	reg.Register(&registry.Endpoint{Name: "H1", Roles: registry.RoleObserver, Filter: registry.MatchAny()})
	reg.Register(&registry.Endpoint{Name: "H1", Roles: registry.RoleHandler, Filter: registry.MatchAny()})

	found, ok := reg.Lookup("H1")
	require.True(t, ok)
	assert.True(t, found.Roles.Has(registry.RoleHandler))
	assert.False(t, found.Roles.Has(registry.RoleObserver))
}
