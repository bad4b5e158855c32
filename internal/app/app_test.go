package app

import (
	"testing"

	"jobradar/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSources() config.SourcesFile {
	return config.SourcesFile{
		Sources: []config.SourceConfig{
			{Name: "linkedin", Kind: config.SourceKindHeadless, Priority: 2},
			{Name: "indeed", Kind: config.SourceKindHTML, Priority: 1},
			{Name: "google", Kind: config.SourceKindAPI, Priority: 4},
			{Name: "glassdoor", Kind: config.SourceKindHTML, Priority: 3, Disabled: true},
		},
		Windows: []config.WindowConfig{
			{Name: "morning", Schedule: "0 6 * * *", Sources: []string{"google", "indeed"}, Focus: []string{"golang"}},
		},
	}
}

func TestResolve_Defaults(t *testing.T) {
	coll := config.CollectionConfig{Strategy: "comprehensive", Locations: []string{"Remote"}}
	got, err := Resolve(CollectOptions{}, testSources(), coll, []string{"indeed", "linkedin", "google"})
	require.NoError(t, err)
	assert.Equal(t, []string{"indeed", "linkedin", "google"}, got.Sources)
	assert.Equal(t, []string{"Remote"}, got.Locations)
	assert.Equal(t, "comprehensive", got.Strategy)
}

func TestResolve_Window(t *testing.T) {
	coll := config.CollectionConfig{Strategy: "comprehensive", Focus: []string{"data"}}
	got, err := Resolve(CollectOptions{Window: "MORNING"}, testSources(), coll, []string{"indeed", "linkedin", "google"})
	require.NoError(t, err)
	assert.Equal(t, "morning", got.Window)
	assert.Equal(t, []string{"indeed", "google"}, got.Sources)
	assert.Equal(t, []string{"golang"}, got.Focus)
}

func TestResolve_Errors(t *testing.T) {
	reg := []string{"indeed"}
	_, err := Resolve(CollectOptions{Window: "night"}, testSources(), config.CollectionConfig{}, reg)
	require.Error(t, err)

	_, err = Resolve(CollectOptions{Sources: []string{"glassdoor"}}, testSources(), config.CollectionConfig{}, reg)
	require.Error(t, err)

	_, err = Resolve(CollectOptions{}, config.SourcesFile{}, config.CollectionConfig{}, nil)
	require.Error(t, err)
}

func TestListenAddr(t *testing.T) {
	addr, err := ListenAddr("8080")
	require.NoError(t, err)
	assert.Equal(t, ":8080", addr)

	addr, err = ListenAddr(":9090")
	require.NoError(t, err)
	assert.Equal(t, ":9090", addr)

	_, err = ListenAddr(" ")
	require.Error(t, err)
}
