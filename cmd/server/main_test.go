package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "run", "screen"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	screen, _, err := root.Find([]string{"screen"})
	require.NoError(t, err)
	require.NoError(t, screen.ParseFlags([]string{"-n", "5", "--date", "2024-04-29"}))
	n, err := screen.Flags().GetInt("n")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-04-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDate("29/04/2024")
	assert.Error(t, err)

	d, err = parseDate("")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), d, time.Minute)
}
