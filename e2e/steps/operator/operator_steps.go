//go:build e2e

package operator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path string, body any, headers map[string]string) error
	Operator() map[string]string
	GetAsset() string
	GetResponseField(field string) (any, error)
	GetLastResponseBody() []byte
}

// RegisterSteps registers operator endpoint step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &operatorSteps{tc: tc}

	ctx.Step(`^I request the operator stats$`, steps.requestStats)
	ctx.Step(`^I request the operator stats with token "([^"]*)"$`, steps.requestStatsWithToken)
	ctx.Step(`^I request recent "([^"]*)" audit events for the asset$`, steps.requestAuditForAsset)
	ctx.Step(`^the stats should list the asset as bound$`, steps.statsListAsset)
	ctx.Step(`^the audit trail should hold at least (\d+) events?$`, steps.auditHoldsAtLeast)
}

type operatorSteps struct {
	tc TestContext
}

func (s *operatorSteps) requestStats(ctx context.Context) error {
	return s.tc.Do(http.MethodGet, "/admin/stats", nil, s.tc.Operator())
}

func (s *operatorSteps) requestStatsWithToken(ctx context.Context, token string) error {
	return s.tc.Do(http.MethodGet, "/admin/stats", nil, map[string]string{"X-Admin-Token": token})
}

func (s *operatorSteps) requestAuditForAsset(ctx context.Context, action string) error {
	q := url.Values{}
	q.Set("action", action)
	q.Set("asset", s.tc.GetAsset())
	return s.tc.Do(http.MethodGet, "/admin/audit/recent?"+q.Encode(), nil, s.tc.Operator())
}

func (s *operatorSteps) statsListAsset(ctx context.Context) error {
	raw, err := s.tc.GetResponseField("bound_assets")
	if err != nil {
		return err
	}
	assets, _ := raw.([]any)
	for _, a := range assets {
		if a == s.tc.GetAsset() {
			return nil
		}
	}
	return fmt.Errorf("asset %s not in bound_assets: %s", s.tc.GetAsset(), string(s.tc.GetLastResponseBody()))
}

func (s *operatorSteps) auditHoldsAtLeast(ctx context.Context, n int) error {
	raw, err := s.tc.GetResponseField("events")
	if err != nil {
		return err
	}
	events, _ := raw.([]any)
	if len(events) < n {
		return fmt.Errorf("expected at least %d audit events, got %d", n, len(events))
	}
	return nil
}
