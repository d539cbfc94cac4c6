//go:build e2e

package e2e

import (
	"github.com/cucumber/godog"

	"gatekeeper/e2e/steps/common"
	"gatekeeper/e2e/steps/compliance"
	"gatekeeper/e2e/steps/operator"
)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	compliance.RegisterSteps(ctx, tc)
	operator.RegisterSteps(ctx, tc)
}
