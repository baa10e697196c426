package e2e

import (
	"github.com/cucumber/godog"

	"refroute/e2e/steps/reference"
)

// RegisterSteps registers all step definitions from modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	reference.RegisterSteps(ctx, tc)
}
