package admin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`/admin add u2 "New User" u2@x.com user`, []string{"/admin", "add", "u2", "New User", "u2@x.com", "user"}},
		{"  /admin   status  ", []string{"/admin", "status"}},
		{`/admin add u3 "" a@b.c guest`, []string{"/admin", "add", "u3", "", "a@b.c", "guest"}},
		{`say "he said \"hi\""`, []string{"say", `he said "hi"`}},
		{`a"b c"d`, []string{"ab cd"}},
		{"", nil},
	}
	for _, tc := range cases {
		got, err := Tokenize(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	_, err := Tokenize(`/admin add "broken`)
	require.ErrorIs(t, err, ErrUnterminatedQuote)
}

func TestIsCommand(t *testing.T) {
	require.True(t, IsCommand("/admin"))
	require.True(t, IsCommand("  /admin status"))
	require.True(t, IsCommand("/ADMIN help"))
	require.False(t, IsCommand("/administrator"))
	require.False(t, IsCommand("hello /admin"))
	require.False(t, IsCommand(""))
}

func TestParse(t *testing.T) {
	cmd, err := Parse("/admin ROLE u1 Admin")
	require.NoError(t, err)
	require.Equal(t, "role", cmd.Name)
	require.Equal(t, []string{"u1", "Admin"}, cmd.Args)

	cmd, err = Parse("/admin")
	require.NoError(t, err)
	require.Empty(t, cmd.Name)

	_, err = Parse("hello")
	require.Error(t, err)
}
