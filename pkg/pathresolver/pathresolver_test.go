package pathresolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolverPathsAreBitExact(t *testing.T) {
	r := New("staging")

	assert.Equal(t, "prod/ctl-tasks/sweep", r.Task("prod", "sweep"))
	assert.Equal(t, "prod/search-unit/node-1/conf", r.SearchUnitConf("prod", "node-1"))
	assert.Equal(t, "prod/search-unit/node-1/goal-state", r.SearchUnitGoalState("prod", "node-1"))
	assert.Equal(t, "prod/search-unit/node-1/actual-state", r.SearchUnitActualState("prod", "node-1"))
	assert.Equal(t, "prod/indices/idx/conf", r.IndexConf("prod", "idx"))
	assert.Equal(t, "prod/indices/idx/mappings", r.IndexMappings("prod", "idx"))
	assert.Equal(t, "prod/indices/idx/settings", r.IndexSettings("prod", "idx"))
	assert.Equal(t, "prod/indices/idx/0/planned-allocation", r.PlannedAllocation("prod", "idx", "0"))
	assert.Equal(t, "prod/indices/idx/0/actual-allocation", r.ActualAllocation("prod", "idx", "0"))
	assert.Equal(t, "prod/coordinators/c1/goal-state", r.CoordinatorGoalState("prod", "c1"))
	assert.Equal(t, "prod/coordinators/c1/actual-state", r.CoordinatorActualState("prod", "c1"))
	assert.Equal(t, "prod/leader-election", r.LeaderElection("prod"))
}

func TestResolverIsInjectiveAcrossEntities(t *testing.T) {
	r := New("staging")
	seen := map[string]bool{}
	keys := []string{
		r.SearchUnitConf("c", "x"),
		r.SearchUnitGoalState("c", "x"),
		r.SearchUnitActualState("c", "x"),
		r.IndexConf("c", "x"),
		r.PlannedAllocation("c", "x", "0"),
		r.ActualAllocation("c", "x", "0"),
		r.CoordinatorGoalState("c", "x"),
		r.CoordinatorActualState("c", "x"),
		r.LeaderElection("c"),
	}
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate key produced: %s", k)
		seen[k] = true
	}
}

func TestResolverIsStableAndDeterministic(t *testing.T) {
	r := New("staging")
	a := r.PlannedAllocation("c1", "idx", "3")
	b := r.PlannedAllocation("c1", "idx", "3")
	assert.Equal(t, a, b)
}

func TestSetEnvironmentIgnoresBlank(t *testing.T) {
	r := New("staging")
	r.SetEnvironment("   ")
	assert.Equal(t, "staging", r.Environment())

	r.SetEnvironment("production")
	assert.Equal(t, "production", r.Environment())
}

func TestMultiClusterRootUsesCurrentEnvironment(t *testing.T) {
	r := New("staging")
	assert.Equal(t, "/multi-cluster/staging/campaigns", r.MultiClusterRoot("campaigns"))
	r.SetEnvironment("production")
	assert.Equal(t, "/multi-cluster/production/campaigns", r.MultiClusterRoot("campaigns"))
}

func TestSearchUnitPrefixHasTrailingSlash(t *testing.T) {
	r := New("staging")
	assert.Equal(t, "c/search-unit/", r.SearchUnitPrefix("c"))
	assert.Equal(t, "c/indices/", r.IndexPrefix("c"))
	assert.Equal(t, "c/indices/idx/", r.IndexShardsPrefix("c", "idx"))
}
