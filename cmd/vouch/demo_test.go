package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDemo(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var out bytes.Buffer

	require.NoError(t, runDemo(context.Background(), &out, logrus.NewEntry(logger)))

	got := out.String()
	for _, want := range []string{
		"alice reads: once upon a time there was a cat and he was smelly",
		"... but bob can't: no master key",
		"bob reads: once upon a time there was a cat and he was smelly",
		"eve reads: once upon a time there was a cat and he was smelly",
		"bob reads: my dog is better than your cat",
		"bob reads: cats rule, dogs drool",
		"... but eve can't: no keyring for the epoch",
		"... but fails:",
	} {
		assert.Contains(t, got, want)
	}
	assert.Less(t, strings.Index(got, "bob can't"), strings.Index(got, "bob reads"))

	// Authentication failures never happen in an honest run.
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, e.Level, e.Message)
	}
}
