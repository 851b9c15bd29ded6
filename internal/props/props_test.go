package props

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssignments(t *testing.T) {
	t.Run("valid pairs", func(t *testing.T) {
		got, err := ParseAssignments([]string{"server.port=9090", "feedbackMode=adaptive", "empty=", "expr=a=b"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"server.port":  "9090",
			"feedbackMode": "adaptive",
			"empty":        "",
			"expr":         "a=b",
		}, got)
	})

	t.Run("error cases", func(t *testing.T) {
		_, err := ParseAssignments([]string{"novalue"})
		assert.ErrorContains(t, err, "expected name=value")

		_, err = ParseAssignments([]string{"=x"})
		assert.ErrorContains(t, err, "name must not be empty")
	})
}

func TestMerge_LaterLayersWin(t *testing.T) {
	settings := map[string]string{"server.port": "8080", "feedbackMode": "none"}
	cli := map[string]string{"server.port": "9090"}

	got := Merge(settings, cli)
	assert.Equal(t, "9090", got["server.port"])
	assert.Equal(t, "none", got["feedbackMode"])
	assert.Equal(t, "8080", settings["server.port"], "inputs must not be mutated")
}

func TestForward(t *testing.T) {
	t.Run("only present allow-listed names are forwarded", func(t *testing.T) {
		invoker := map[string]string{
			"server.port":  "9090",
			"feedbackMode": "adaptive",
			"user.home":    "/home/someone",
		}
		got := Forward(invoker, ApplicationAllowList)
		assert.Equal(t, map[string]string{"server.port": "9090", "feedbackMode": "adaptive"}, got)
	})

	t.Run("nothing present forwards nothing", func(t *testing.T) {
		assert.Empty(t, Forward(map[string]string{}, ApplicationAllowList))
		assert.Empty(t, Forward(nil, ApplicationAllowList))
	})

	t.Run("values pass through untouched", func(t *testing.T) {
		invoker := map[string]string{"adaptSizes": " 1, 2 ,3 ", "printPerSeed": ""}
		got := Forward(invoker, ApplicationAllowList)
		assert.Equal(t, " 1, 2 ,3 ", got["adaptSizes"])
		v, ok := got["printPerSeed"]
		assert.True(t, ok)
		assert.Empty(t, v)
	})

	t.Run("every allow-listed name round trips", func(t *testing.T) {
		invoker := make(map[string]string)
		for _, name := range ApplicationAllowList {
			invoker[name] = "v-" + name
		}
		invoker["notAllowed"] = "x"
		got := Forward(invoker, ApplicationAllowList)
		require.Len(t, got, len(ApplicationAllowList))
		for _, name := range ApplicationAllowList {
			assert.Equal(t, "v-"+name, got[name])
		}
		assert.NotContains(t, got, "notAllowed")
	})
}

func TestApplicationAllowList(t *testing.T) {
	assert.Len(t, ApplicationAllowList, 15)
	seen := make(map[string]bool)
	for _, name := range ApplicationAllowList {
		assert.False(t, seen[name], "duplicate entry %q", name)
		seen[name] = true
	}
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]string{"c": "", "a": "", "b": ""}))
}
