package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the feature files against REFROUTE_E2E_URL. The server must
// share JWT_SIGNING_KEY and load testdata/identities.json as its directory.
func TestFeatures(t *testing.T) {
	baseURL := os.Getenv("REFROUTE_E2E_URL")
	if baseURL == "" {
		t.Skip("REFROUTE_E2E_URL not set")
	}
	key := os.Getenv("JWT_SIGNING_KEY")
	if key == "" {
		key = "dev-secret-key-change-in-production"
	}
	tc, err := NewTestContext(baseURL, key, "refroute", "testdata/identities.json")
	if err != nil {
		t.Fatal(err)
	}

	suite := godog.TestSuite{
		Name: "refroute",
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				tc.Reset()
				return ctx, nil
			})
			RegisterSteps(sc, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature scenarios failed")
	}
}
