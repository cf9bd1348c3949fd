package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ids = []string{
	"app.main",
	"app.services.UserService",
	"app.services.UserService.create_user",
	"app.services.UserService.delete_user",
	"app.models.User",
	"app.models.User.email",
	"lib.util.parse_config",
	"lib.util.render",
}

func TestSuggestPrefix(t *testing.T) {
	ac := New(ids, DefaultOptions())

	got := ac.Suggest("app.ser", false)
	assert.Equal(t, []string{
		"app.services.UserService",
		"app.services.UserService.create_user",
		"app.services.UserService.delete_user",
	}, got)

	// A dotted-segment prefix matches anywhere, ranked below full-id prefixes.
	got = ac.Suggest("user", false)
	assert.Equal(t, []string{
		"app.models.User",
		"app.models.User.email",
		"app.services.UserService",
		"app.services.UserService.create_user",
		"app.services.UserService.delete_user",
	}, got)

	assert.Equal(t, []string{"app.main"}, ac.Suggest("APP.MA", false), "matching ignores case")
	assert.Empty(t, ac.Suggest("  ", true))
	assert.Empty(t, ac.Suggest("zzz", false))
}

func TestSuggestTiers(t *testing.T) {
	ac := New(ids, DefaultOptions())

	ranked := ac.Rank("render", true)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "lib.util.render", ranked[0].ID)
	assert.Equal(t, TierPrefix, ranked[0].Tier)

	// "rendr" is one edit away from "render".
	ranked = ac.Rank("rendr", true)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "lib.util.render", ranked[0].ID)
	assert.Equal(t, TierFuzzy, ranked[0].Tier)

	// Substring matches outrank edit-distance matches.
	ranked = ac.Rank("_user", true)
	require.GreaterOrEqual(t, len(ranked), 2)
	assert.Equal(t, "app.services.UserService.create_user", ranked[0].ID)
	assert.Equal(t, "app.services.UserService.delete_user", ranked[1].ID)

	for i := 1; i < len(ranked); i++ {
		assert.LessOrEqual(t, ranked[i-1].Tier, ranked[i].Tier, "tiers never interleave")
	}

	// Keyword matches come from identifier tokens.
	ranked = ac.Rank("config parse", true)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "lib.util.parse_config", ranked[0].ID)
	assert.Equal(t, TierKeyword, ranked[0].Tier)
}

func TestSuggestCap(t *testing.T) {
	ac := New(ids, Options{MaxSuggestions: 2})
	assert.Len(t, ac.Suggest("app", true), 2)
}

func TestValidate(t *testing.T) {
	ac := New(ids, DefaultOptions())

	v := ac.Validate("app.models.user")
	assert.True(t, v.Valid)
	assert.Equal(t, "app.models.User", v.Canonical)

	v = ac.Validate("app.models.Usr")
	assert.False(t, v.Valid)
	require.NotEmpty(t, v.Matches)
	assert.Equal(t, "app.models.User", v.Matches[0])
	assert.LessOrEqual(t, len(v.Matches), 5)

	v = ac.Validate("")
	assert.False(t, v.Valid)
	assert.Empty(t, v.Matches)
}
