/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the registry with realistic
	policies for testing and demos. Each scenario goes through the registry,
	so every seeded policy passes the same validation as a real one.

AVAILABLE SCENARIOS:

	starter-portfolio: A handful of term and whole-life policies
	claims-review:     Mix of claimed and open policies
	term-ladder:       Staggered coverage periods for date-range filtering

HOW SCENARIOS WORK:
 1. Reset database (clear policies and bookings)
 2. Create policies as the demo insurer
 3. Optionally file claims

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "claims-review"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler context
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/insurance-engine/insurance"
)

// DemoInsurer creates every scenario policy.
const DemoInsurer insurance.Principal = "demo-insurer"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "starter-portfolio",
		Name:        "Starter Portfolio",
		Description: "Four open policies with different prices and coverage",
	},
	{
		ID:          "claims-review",
		Name:        "Claims Review",
		Description: "Six policies, half of them with a filed claim",
	},
	{
		ID:          "term-ladder",
		Name:        "Term Ladder",
		Description: "Consecutive 5-year terms for date range filtering",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID, load); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

type scenarioLoader func(ctx context.Context, h *Handler) error

var scenarioLoaders = map[string]scenarioLoader{
	"starter-portfolio": loadStarterPortfolio,
	"claims-review":     loadClaimsReview,
	"term-ladder":       loadTermLadder,
}

func (h *Handler) loadScenario(ctx context.Context, id string, load scenarioLoader) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Store == nil {
		return fmt.Errorf("store does not support reset")
	}
	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""

	if err := load(ctx, h); err != nil {
		return err
	}
	h.currentScenario = id
	h.Logger.Info("scenario loaded", "scenario", id)
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// unix returns the seconds timestamp of a UTC date.
func unix(year int, month time.Month, day int) uint64 {
	return uint64(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix())
}

func (h *Handler) seed(ctx context.Context, payloads []insurance.PolicyPayload) ([]insurance.Policy, error) {
	created := make([]insurance.Policy, 0, len(payloads))
	for _, pl := range payloads {
		p, err := h.Registry.Create(ctx, DemoInsurer, pl)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", pl.PolicyHolderName, err)
		}
		created = append(created, p)
	}
	return created, nil
}

func loadStarterPortfolio(ctx context.Context, h *Handler) error {
	_, err := h.seed(ctx, []insurance.PolicyPayload{
		{
			PolicyHolderName: "Amara Okafor",
			Description:      "20-year level term life",
			PricePerPolicy:   150_000_000,
			CoverageAmount:   50_000_000_000,
			PremiumAmount:    12_500_000,
			PolicyStartDate:  unix(2025, time.January, 1),
			PolicyEndDate:    unix(2045, time.January, 1),
		},
		{
			PolicyHolderName: "Lucas Brandt",
			Description:      "Whole life with cash value",
			PricePerPolicy:   420_000_000,
			CoverageAmount:   25_000_000_000,
			PremiumAmount:    35_000_000,
			PolicyStartDate:  unix(2024, time.June, 1),
			PolicyEndDate:    unix(2084, time.June, 1),
		},
		{
			PolicyHolderName: "Mei Tanaka",
			Description:      "10-year term life",
			PricePerPolicy:   80_000_000,
			CoverageAmount:   20_000_000_000,
			PremiumAmount:    6_000_000,
			PolicyStartDate:  unix(2025, time.March, 15),
			PolicyEndDate:    unix(2035, time.March, 15),
		},
		{
			PolicyHolderName: "Diego Alvarez",
			Description:      "Universal life",
			PricePerPolicy:   260_000_000,
			CoverageAmount:   40_000_000_000,
			PremiumAmount:    21_000_000,
			PolicyStartDate:  unix(2023, time.September, 1),
			PolicyEndDate:    unix(2063, time.September, 1),
		},
	})
	return err
}

func loadClaimsReview(ctx context.Context, h *Handler) error {
	holders := []string{"Nadia Haddad", "Owen Price", "Priya Raman", "Sven Lund", "Tariq Aziz", "Yuki Sato"}
	payloads := make([]insurance.PolicyPayload, len(holders))
	for i, name := range holders {
		payloads[i] = insurance.PolicyPayload{
			PolicyHolderName: name,
			Description:      "Term life",
			PricePerPolicy:   uint64(100_000_000 + i*10_000_000),
			CoverageAmount:   30_000_000_000,
			PremiumAmount:    9_000_000,
			PolicyStartDate:  unix(2020, time.January, 1),
			PolicyEndDate:    unix(2040, time.January, 1),
		}
	}

	created, err := h.seed(ctx, payloads)
	if err != nil {
		return err
	}
	for i, p := range created {
		if i%2 == 1 {
			continue
		}
		if _, err := h.Registry.FileClaim(ctx, p.ID); err != nil {
			return fmt.Errorf("claim %s: %w", p.ID, err)
		}
	}
	return nil
}

func loadTermLadder(ctx context.Context, h *Handler) error {
	payloads := make([]insurance.PolicyPayload, 0, 4)
	for i := 0; i < 4; i++ {
		start := 2025 + i*5
		payloads = append(payloads, insurance.PolicyPayload{
			PolicyHolderName: "Ladder Trust",
			Description:      fmt.Sprintf("Term %d: %d-%d", i+1, start, start+5),
			PricePerPolicy:   90_000_000,
			CoverageAmount:   10_000_000_000,
			PremiumAmount:    7_000_000,
			PolicyStartDate:  unix(start, time.January, 1),
			PolicyEndDate:    unix(start+5, time.January, 1),
		})
	}
	_, err := h.seed(ctx, payloads)
	return err
}
