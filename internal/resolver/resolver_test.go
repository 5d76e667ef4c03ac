package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

type stubJob struct{ name string }

func (j stubJob) FullName() string                    { return j.name }
func (j stubJob) Kind() types.ItemKind                { return types.KindFreestyle }
func (j stubJob) Buildable() bool                     { return true }
func (j stubJob) LastRun() (types.Run, bool)          { return types.Run{}, false }
func (j stubJob) LastCompletedRun() (types.Run, bool) { return types.Run{}, false }

type mapCatalog map[string]bool

func (m mapCatalog) Lookup(fullName string) (provider.Job, bool) {
	if m[fullName] {
		return stubJob{name: fullName}, true
	}
	return nil, false
}

func TestResolve_BareNameInSameScope(t *testing.T) {
	c := mapCatalog{"team/upstream": true, "upstream": true}

	job, err := Resolve(c, "upstream", "team")
	require.NoError(t, err)
	assert.Equal(t, "team/upstream", job.FullName())
}

func TestResolve_FallsBackToRoot(t *testing.T) {
	c := mapCatalog{"upstream": true}

	job, err := Resolve(c, "upstream", "team/app")
	require.NoError(t, err)
	assert.Equal(t, "upstream", job.FullName())
}

func TestResolve_ExplicitRelativeDoesNotFallBack(t *testing.T) {
	c := mapCatalog{"upstream": true}

	_, err := Resolve(c, "./upstream", "team")
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrNotFound))
}

func TestResolve_ParentSegments(t *testing.T) {
	c := mapCatalog{"team/lib": true}

	job, err := Resolve(c, "../lib", "team/app")
	require.NoError(t, err)
	assert.Equal(t, "team/lib", job.FullName())
}

func TestResolve_Absolute(t *testing.T) {
	c := mapCatalog{"team/lib": true, "other/team/lib": true}

	job, err := Resolve(c, "/team/lib", "other")
	require.NoError(t, err)
	assert.Equal(t, "team/lib", job.FullName())
}

func TestResolve_NotFound(t *testing.T) {
	c := mapCatalog{}

	_, err := Resolve(c, "y67", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrNotFound)
	assert.Contains(t, err.Error(), "y67")

	_, err = Resolve(c, "", "")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestJoin(t *testing.T) {
	tests := []struct {
		base, ref, want string
		ok              bool
	}{
		{"", "a", "a", true},
		{"x/y", "a", "x/y/a", true},
		{"x/y", "../a", "x/a", true},
		{"x/y", "./a/", "x/y/a", true},
		{"x", "../../a", "", false},
		{"x", "/a/b", "a/b", true},
		{"", "..", "", false},
	}
	for _, tt := range tests {
		got, ok := Join(tt.base, tt.ref)
		assert.Equal(t, tt.ok, ok, "%s + %s", tt.base, tt.ref)
		assert.Equal(t, tt.want, got, "%s + %s", tt.base, tt.ref)
	}
}

func TestParent(t *testing.T) {
	assert.Equal(t, "", Parent("job"))
	assert.Equal(t, "team/app", Parent("team/app/build"))
}
