package base

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFullID(t *testing.T) {
	cases := []struct {
		in      string
		id      string
		backend string
		err     bool
	}{
		{in: "123@nyaa", id: "123", backend: "nyaa"},
		{in: "123", id: "123"},
		{in: "user@host@redmine", id: "user@host", backend: "redmine"},
		{in: "@nyaa", err: true},
		{in: "12@", err: true},
		{in: "", err: true},
	}

	for _, test := range cases {
		id, backend, err := ParseFullID(test.in)
		if test.err {
			require.Error(t, err, test.in)
			continue
		}
		require.NoError(t, err, test.in)
		require.Equal(t, test.id, id)
		require.Equal(t, test.backend, backend)
	}
}

func TestFullID(t *testing.T) {
	require.Equal(t, "1@a", Object{ID: "1", Backend: "a"}.FullID())
	require.Equal(t, "1", Object{ID: "1"}.FullID())
}
