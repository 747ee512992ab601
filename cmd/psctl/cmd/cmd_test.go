package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	missing := filepath.Join(t.TempDir(), "none.yaml")
	root.SetArgs(append([]string{"--config", missing}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestExpandCommand(t *testing.T) {
	out, err := run(t, "expand", "Sliding", "Window")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []any{"sliding", "window"}, got["original"])
	assert.Contains(t, got["terms"], "sliding window")
	assert.Equal(t, true, got["grew"])
}

func TestExpandNeedsArgs(t *testing.T) {
	_, err := run(t, "expand")
	assert.Error(t, err)
}

func TestReadRequest(t *testing.T) {
	req, err := readRequest([]string{"binary", "search"}, "leetcode", nil)
	require.NoError(t, err)
	assert.Equal(t, "binary search", req.Query)
	assert.Equal(t, "leetcode", req.Platform)

	req, err = readRequest(nil, "", strings.NewReader(`{"query":"two pointers","filters":{"platform":"codeforces"}}`))
	require.NoError(t, err)
	assert.Equal(t, "two pointers", req.Query)
	assert.Equal(t, "codeforces", req.Platform)

	_, err = readRequest(nil, "", strings.NewReader(`not json`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCommandTree(t *testing.T) {
	root := NewRootCmd()
	for _, path := range [][]string{
		{"collection", "create"},
		{"seed"},
		{"enrich"},
		{"expand"},
		{"query"},
		{"model", "show"},
	} {
		found, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}
