package handler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/msbot/internal/rbac"
)

type prefixHandler struct {
	gate
	name   string
	prefix string
}

func (h prefixHandler) Name() string        { return h.name }
func (h prefixHandler) Description() string { return h.name + " handler" }
func (h prefixHandler) CanHandle(text string, _ Context) bool {
	return strings.HasPrefix(text, h.prefix)
}
func (h prefixHandler) Handle(context.Context, Request) (string, error) { return h.name, nil }

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("echo", NewEcho("echo", "", ""), true))
	err := reg.Register("echo", NewEcho("echo", "", ""), false)
	require.ErrorIs(t, err, ErrDuplicateName)
	require.Error(t, reg.Register("", NewEcho("x", "", ""), false))
	require.Equal(t, 1, reg.Len())
}

func TestSelectFirstMatchInRegistrationOrder(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("narrow", prefixHandler{name: "narrow", prefix: "/ask"}, false))
	require.NoError(t, reg.Register("broad", prefixHandler{name: "broad", prefix: "/"}, false))
	require.NoError(t, reg.Register("echo", NewEcho("echo", "", ""), true))

	sel, ok := reg.Select("/ask something", Context{})
	require.True(t, ok)
	require.Equal(t, "narrow", sel.Name)
	require.False(t, sel.IsDefault)

	sel, ok = reg.Select("/other", Context{})
	require.True(t, ok)
	require.Equal(t, "broad", sel.Name)

	sel, ok = reg.Select("plain", Context{})
	require.True(t, ok)
	require.Equal(t, "echo", sel.Name)
	require.True(t, sel.IsDefault)
}

func TestSelectIsDeterministic(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("a", prefixHandler{name: "a", prefix: "x"}, false))
	require.NoError(t, reg.Register("b", prefixHandler{name: "b", prefix: "x"}, false))
	for i := 0; i < 50; i++ {
		sel, ok := reg.Select("xyz", Context{})
		require.True(t, ok)
		require.Equal(t, "a", sel.Name)
	}
}

func TestDisabledHandlerStaysListed(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("narrow", prefixHandler{name: "narrow", prefix: "/ask"}, false))
	require.NoError(t, reg.Register("echo", NewEcho("echo", "", ""), true))

	require.NoError(t, reg.SetEnabled("narrow", false))
	sel, ok := reg.Select("/ask", Context{})
	require.True(t, ok)
	require.Equal(t, "echo", sel.Name)

	list := reg.List()
	require.Len(t, list, 2)
	require.Equal(t, "narrow", list[0].Name)
	require.False(t, list[0].Enabled)
	require.True(t, list[1].IsDefault)

	require.ErrorIs(t, reg.SetEnabled("missing", true), ErrNotFound)
}

func TestDisabledDefaultSelectsNothing(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("narrow", prefixHandler{name: "narrow", prefix: "/ask"}, false))
	require.NoError(t, reg.Register("fallback", prefixHandler{name: "fallback", prefix: "never"}, true))
	require.NoError(t, reg.SetEnabled("fallback", false))

	_, ok := reg.Select("hello", Context{})
	require.False(t, ok)
}

func TestUnregisterClearsDefault(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("a", prefixHandler{name: "a", prefix: "/a"}, true))
	require.NoError(t, reg.Register("b", prefixHandler{name: "b", prefix: "/b"}, false))

	require.NoError(t, reg.Unregister("a"))
	_, ok := reg.Default()
	require.False(t, ok)
	_, ok = reg.Select("hello", Context{})
	require.False(t, ok)

	require.ErrorIs(t, reg.Unregister("a"), ErrNotFound)
	require.ErrorIs(t, reg.SetDefault("a"), ErrNotFound)
	require.NoError(t, reg.SetDefault("b"))
	sel, ok := reg.Select("hello", Context{})
	require.True(t, ok)
	require.Equal(t, "b", sel.Name)
}

func TestDefaultReplacesPrevious(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("a", NewEcho("a", "", ""), true))
	require.NoError(t, reg.Register("b", NewEcho("b", "", ""), true))
	name, ok := reg.Default()
	require.True(t, ok)
	require.Equal(t, "b", name)

	defaults := 0
	for _, info := range reg.List() {
		if info.IsDefault {
			defaults++
		}
	}
	require.Equal(t, 1, defaults)
}

func TestListReportsRequiredPermission(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register("rag", prefixHandler{gate: gate{perm: rbac.PermUseRag}, name: "rag", prefix: "/ask"}, false))
	require.Equal(t, rbac.PermUseRag, reg.List()[0].RequiredPermission)
}
