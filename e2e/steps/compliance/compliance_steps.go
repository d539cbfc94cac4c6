//go:build e2e

package compliance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path string, body any, headers map[string]string) error
	As(name string) (map[string]string, error)
	Operator() map[string]string
	Address(name string) string
	GetAsset() string
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers compliance and ledger step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &complianceSteps{tc: tc}

	// Setup steps
	ctx.Step(`^"([^"]*)" administers every component$`, steps.administersEveryComponent)
	ctx.Step(`^a fresh asset is bound$`, steps.bindFreshAsset)
	ctx.Step(`^issuer "([^"]*)" is trusted for topics "([^"]*)"$`, steps.trustIssuer)
	ctx.Step(`^topic (\d+) is required$`, steps.requireTopic)
	ctx.Step(`^holder "([^"]*)" holds a claim for topic (\d+) from "([^"]*)"$`, steps.issueClaim)
	ctx.Step(`^module "([^"]*)" is enabled$`, steps.enableModule)
	ctx.Step(`^the asset holder cap is (\d+)$`, steps.setMaxHolders)
	ctx.Step(`^the asset is paused$`, steps.pauseAsset)

	// Ledger steps
	ctx.Step(`^the admin mints (\d+) to "([^"]*)"$`, steps.mint)
	ctx.Step(`^the admin has minted (\d+) to "([^"]*)"$`, steps.mustMint)
	ctx.Step(`^"([^"]*)" transfers (\d+) to "([^"]*)"$`, steps.transfer)
	ctx.Step(`^"([^"]*)" transfers (\d+) from "([^"]*)" to "([^"]*)"$`, steps.transferFrom)
	ctx.Step(`^the balance of "([^"]*)" should be (\d+)$`, steps.balanceShouldBe)
	ctx.Step(`^I check a transfer of (\d+) from "([^"]*)" to "([^"]*)"$`, steps.checkTransfer)
	ctx.Step(`^the transfer should be (allowed|denied)$`, steps.verdictShouldBe)
}

type complianceSteps struct {
	tc    TestContext
	admin string
}

func (s *complianceSteps) asAdmin() (map[string]string, error) {
	if s.admin == "" {
		return nil, fmt.Errorf("no admin configured for this scenario")
	}
	return s.tc.As(s.admin)
}

// expect fails the step unless the last response had one of statuses.
func (s *complianceSteps) expect(statuses ...int) error {
	got := s.tc.GetLastResponseStatus()
	for _, st := range statuses {
		if got == st {
			return nil
		}
	}
	return fmt.Errorf("unexpected status %d: %s", got, string(s.tc.GetLastResponseBody()))
}

func (s *complianceSteps) administersEveryComponent(ctx context.Context, name string) error {
	s.admin = name
	if err := s.tc.Do(http.MethodGet, "/admins", nil, nil); err != nil {
		return err
	}
	if err := s.expect(http.StatusOK); err != nil {
		return err
	}
	raw, err := s.tc.GetResponseField("components")
	if err != nil {
		return err
	}
	components, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("components is not a list")
	}

	admin := s.tc.Address(name)
	for _, c := range components {
		entry, _ := c.(map[string]any)
		component, _ := entry["component"].(string)
		current, _ := entry["admin"].(string)
		if current == admin {
			continue
		}
		if current != "" {
			return fmt.Errorf("component %s is administered by %s", component, current)
		}
		path := "/admin/components/" + component + "/initialize"
		if err := s.tc.Do(http.MethodPost, path, map[string]string{"admin": admin}, s.tc.Operator()); err != nil {
			return err
		}
		if err := s.expect(http.StatusOK, http.StatusCreated, http.StatusConflict); err != nil {
			return err
		}
	}
	return nil
}

func (s *complianceSteps) adminCall(method, path string, body any, statuses ...int) error {
	headers, err := s.asAdmin()
	if err != nil {
		return err
	}
	if err := s.tc.Do(method, path, body, headers); err != nil {
		return err
	}
	return s.expect(statuses...)
}

func (s *complianceSteps) bindFreshAsset(ctx context.Context) error {
	return s.adminCall(http.MethodPost, "/compliance/assets",
		map[string]string{"asset": s.tc.GetAsset()}, http.StatusOK, http.StatusCreated)
}

func (s *complianceSteps) trustIssuer(ctx context.Context, issuer, topics string) error {
	var ids []int
	for _, part := range strings.Split(topics, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("invalid topic %q", part)
		}
		ids = append(ids, id)
	}
	return s.adminCall(http.MethodPost, "/identity/issuers",
		map[string]any{"issuer": s.tc.Address(issuer), "topics": ids}, http.StatusOK, http.StatusCreated)
}

func (s *complianceSteps) requireTopic(ctx context.Context, topic int) error {
	return s.adminCall(http.MethodPost, "/identity/topics",
		map[string]any{"id": topic}, http.StatusOK, http.StatusCreated)
}

func (s *complianceSteps) issueClaim(ctx context.Context, holder string, topic int, issuer string) error {
	body := map[string]any{
		"subject":     s.tc.Address(holder),
		"topic":       topic,
		"issuer":      s.tc.Address(issuer),
		"payload":     map[string]string{"source": "e2e"},
		"valid_until": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
	}
	return s.adminCall(http.MethodPost, "/identity/claims", body, http.StatusOK, http.StatusCreated)
}

func (s *complianceSteps) enableModule(ctx context.Context, module string) error {
	return s.adminCall(http.MethodPost, "/compliance/modules",
		map[string]string{"module": module}, http.StatusOK, http.StatusCreated)
}

func (s *complianceSteps) setMaxHolders(ctx context.Context, limit int) error {
	return s.adminCall(http.MethodPut, "/compliance/modules/max_holders/"+s.tc.GetAsset(),
		map[string]int{"max_holders": limit}, http.StatusOK)
}

func (s *complianceSteps) pauseAsset(ctx context.Context) error {
	return s.adminCall(http.MethodPost, "/compliance/modules/pause_freeze/"+s.tc.GetAsset()+"/pause",
		nil, http.StatusOK, http.StatusNoContent)
}

func (s *complianceSteps) mint(ctx context.Context, amount int, to string) error {
	headers, err := s.asAdmin()
	if err != nil {
		return err
	}
	return s.tc.Do(http.MethodPost, "/ledger/"+s.tc.GetAsset()+"/mint",
		map[string]any{"to": s.tc.Address(to), "amount": amount}, headers)
}

func (s *complianceSteps) mustMint(ctx context.Context, amount int, to string) error {
	if err := s.mint(ctx, amount, to); err != nil {
		return err
	}
	return s.expect(http.StatusOK)
}

func (s *complianceSteps) transfer(ctx context.Context, from string, amount int, to string) error {
	headers, err := s.tc.As(from)
	if err != nil {
		return err
	}
	return s.tc.Do(http.MethodPost, "/ledger/"+s.tc.GetAsset()+"/transfer",
		map[string]any{"to": s.tc.Address(to), "amount": amount}, headers)
}

func (s *complianceSteps) transferFrom(ctx context.Context, caller string, amount int, from, to string) error {
	headers, err := s.tc.As(caller)
	if err != nil {
		return err
	}
	body := map[string]any{"from": s.tc.Address(from), "to": s.tc.Address(to), "amount": amount}
	return s.tc.Do(http.MethodPost, "/ledger/"+s.tc.GetAsset()+"/transfer", body, headers)
}

func (s *complianceSteps) balanceShouldBe(ctx context.Context, holder string, expected int) error {
	path := "/ledger/" + s.tc.GetAsset() + "/balances/" + s.tc.Address(holder)
	if err := s.tc.Do(http.MethodGet, path, nil, nil); err != nil {
		return err
	}
	if err := s.expect(http.StatusOK); err != nil {
		return err
	}
	balance, err := s.tc.GetResponseField("balance")
	if err != nil {
		return err
	}
	if fmt.Sprint(balance) != strconv.Itoa(expected) {
		return fmt.Errorf("balance of %s: expected %d but got %v", holder, expected, balance)
	}
	return nil
}

func (s *complianceSteps) checkTransfer(ctx context.Context, amount int, from, to string) error {
	body := map[string]any{
		"asset":  s.tc.GetAsset(),
		"from":   s.tc.Address(from),
		"to":     s.tc.Address(to),
		"amount": amount,
		"kind":   "transfer",
	}
	return s.tc.Do(http.MethodPost, "/compliance/check", body, nil)
}

func (s *complianceSteps) verdictShouldBe(ctx context.Context, verdict string) error {
	if err := s.expect(http.StatusOK); err != nil {
		return err
	}
	allowed, err := s.tc.GetResponseField("allowed")
	if err != nil {
		return err
	}
	if allowed != (verdict == "allowed") {
		return fmt.Errorf("expected transfer to be %s: %s", verdict, string(s.tc.GetLastResponseBody()))
	}
	return nil
}
