/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario loads through the registry and leaves the
	expected policies behind, replacing whatever was loaded before.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	env := setupTestEnv(t, nil, nil)

	for _, s := range scenarios {
		rec := env.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: s.ID})
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", s.ID, rec.Body.String())

		rec = env.do(t, http.MethodGet, "/api/scenarios/current", "", nil)
		assert.Equal(t, s.ID, decode[ScenarioDTO](t, rec).ID)
	}
}

func TestScenario_ClaimsReview(t *testing.T) {
	env := setupTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "claims-review"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/policies?claimed=true", "", nil)
	claimed := decode[[]PolicyDTO](t, rec)
	rec = env.do(t, http.MethodGet, "/api/policies?claimed=false", "", nil)
	open := decode[[]PolicyDTO](t, rec)

	assert.Len(t, claimed, 3)
	assert.Len(t, open, 3)
	for _, p := range claimed {
		assert.Equal(t, string(DemoInsurer), p.Creator)
	}
}

func TestScenario_TermLadderDateFilter(t *testing.T) {
	env := setupTestEnv(t, nil, nil)
	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "term-ladder"})
	require.Equal(t, http.StatusOK, rec.Code)

	// 2025-01-01 .. 2035-01-01 contains the first two terms
	rec = env.do(t, http.MethodGet, "/api/policies?start=1735689600&end=2051222400", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PolicyDTO](t, rec), 2)
}

func TestScenario_LoadReplacesPreviousData(t *testing.T) {
	env := setupTestEnv(t, nil, nil)
	env.createPolicy(t, "alice", "Alice")

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "starter-portfolio"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/policies", "", nil)
	policies := decode[[]PolicyDTO](t, rec)
	assert.Len(t, policies, 4)
	rec = env.do(t, http.MethodGet, "/api/policies?holder=Alice", "", nil)
	assert.Empty(t, decode[[]PolicyDTO](t, rec))
}

func TestScenario_Unknown(t *testing.T) {
	env := setupTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/scenarios", "", nil)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))
}
