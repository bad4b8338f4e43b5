package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyCommand(t *testing.T) {
	root := rootCommand()

	revoke, _, err := root.Find([]string{"apikey", "revoke"})
	require.NoError(t, err)
	assert.Equal(t, "revoke <name>", revoke.Use)
	assert.Error(t, revoke.Args(revoke, nil), "a key name is required")
	assert.NoError(t, revoke.Args(revoke, []string{"ops"}))

	list, _, err := root.Find([]string{"apikey", "list"})
	require.NoError(t, err)
	assert.Error(t, list.Args(list, []string{"extra"}))
}
