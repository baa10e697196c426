package reference

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the part of the suite context the reference steps need.
type TestContext interface {
	Do(user, method, path string, body any) error
	Status() int
	ErrorCode() string
	Data() any
	UserID(name string) (string, error)
	RememberRef(name, refID string)
	Ref(name string) (string, error)
}

// RegisterSteps registers reference routing step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &referenceSteps{tc: tc}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		steps.scopes = map[string]string{}
		steps.creators = map[string]string{}
		return ctx, nil
	})

	ctx.Step(`^"([^"]*)" creates a "([^"]*)" reference "([^"]*)" held by "([^"]*)"$`, steps.create)
	ctx.Step(`^"([^"]*)" forwards "([^"]*)" to "([^"]*)" as "([^"]*)" with remarks "([^"]*)"$`, steps.forward)
	ctx.Step(`^"([^"]*)" closes "([^"]*)"$`, steps.closeRef)
	ctx.Step(`^"([^"]*)" bulk reassigns "([^"]*)" to "([^"]*)"$`, steps.bulkReassign)
	ctx.Step(`^"([^"]*)" asks to reopen "([^"]*)" because "([^"]*)"$`, steps.requestReopen)
	ctx.Step(`^"([^"]*)" approves the reopening of "([^"]*)"$`, steps.approveReopen)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response should fail with "([^"]*)"$`, steps.shouldFailWith)
	ctx.Step(`^reference "([^"]*)" should have status "([^"]*)" and be held by "([^"]*)"$`, steps.shouldHaveStatusAndHolder)
	ctx.Step(`^reference "([^"]*)" should have (\d+) movements$`, steps.shouldHaveMovements)
	ctx.Step(`^the bulk result should list "([^"]*)" as succeeded$`, steps.bulkSucceeded)
	ctx.Step(`^the bulk result should list "([^"]*)" as failed with "([^"]*)"$`, steps.bulkFailed)
}

type referenceSteps struct {
	tc TestContext
	// scopes remembers where each named reference lives.
	scopes map[string]string
	// creators remember who can always read each named reference.
	creators map[string]string
}

func (s *referenceSteps) creator(name string) (string, error) {
	by, ok := s.creators[name]
	if !ok {
		return "", fmt.Errorf("reference %q was not created in this scenario", name)
	}
	return by, nil
}

func (s *referenceSteps) path(name string, suffix string) (string, error) {
	refID, err := s.tc.Ref(name)
	if err != nil {
		return "", err
	}
	return "/api/v1/" + s.scopes[name] + "/references/" + refID + suffix, nil
}

func (s *referenceSteps) create(ctx context.Context, by, scope, name, holder string) error {
	holderID, err := s.tc.UserID(holder)
	if err != nil {
		return err
	}
	err = s.tc.Do(by, http.MethodPost, "/api/v1/"+scope+"/references/", map[string]any{
		"subject":   "Scenario reference " + name,
		"marked_to": []string{holderID},
	})
	if err != nil {
		return err
	}
	if s.tc.Status() != http.StatusCreated {
		return fmt.Errorf("create %s: status %d (%s)", name, s.tc.Status(), s.tc.ErrorCode())
	}
	data, ok := s.tc.Data().(map[string]any)
	if !ok {
		return fmt.Errorf("create %s: response has no reference", name)
	}
	refID, _ := data["id"].(string)
	s.tc.RememberRef(name, refID)
	s.scopes[name] = scope
	s.creators[name] = by
	return nil
}

func (s *referenceSteps) move(by, name string, holders []string, status, remarks string) error {
	path, err := s.path(name, "/movements")
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(holders))
	for _, h := range holders {
		uid, err := s.tc.UserID(h)
		if err != nil {
			return err
		}
		ids = append(ids, uid)
	}
	return s.tc.Do(by, http.MethodPost, path, map[string]any{
		"next_holders": ids,
		"next_status":  status,
		"remarks":      remarks,
	})
}

func (s *referenceSteps) forward(ctx context.Context, by, name, to, status, remarks string) error {
	return s.move(by, name, []string{to}, status, remarks)
}

func (s *referenceSteps) closeRef(ctx context.Context, by, name string) error {
	if err := s.move(by, name, nil, "Closed", "done"); err != nil {
		return err
	}
	return s.statusShouldBe(ctx, http.StatusOK)
}

func (s *referenceSteps) bulkReassign(ctx context.Context, by, names, to string) error {
	toID, err := s.tc.UserID(to)
	if err != nil {
		return err
	}
	var ids []string
	scope := ""
	for _, name := range strings.Split(names, ",") {
		refID, err := s.tc.Ref(name)
		if err != nil {
			return err
		}
		ids = append(ids, refID)
		scope = s.scopes[name]
	}
	return s.tc.Do(by, http.MethodPost, "/api/v1/"+scope+"/references/bulk", map[string]any{
		"ids":     ids,
		"action":  "reassign",
		"holders": []string{toID},
	})
}

func (s *referenceSteps) requestReopen(ctx context.Context, by, name, reason string) error {
	path, err := s.path(name, "/reopen-request")
	if err != nil {
		return err
	}
	return s.tc.Do(by, http.MethodPost, path, map[string]any{"reason": reason})
}

func (s *referenceSteps) approveReopen(ctx context.Context, by, name string) error {
	path, err := s.path(name, "/reopen-resolution")
	if err != nil {
		return err
	}
	return s.tc.Do(by, http.MethodPost, path, map[string]any{"approve": true})
}

func (s *referenceSteps) statusShouldBe(ctx context.Context, want int) error {
	if got := s.tc.Status(); got != want {
		return fmt.Errorf("expected status %d, got %d (%s)", want, got, s.tc.ErrorCode())
	}
	return nil
}

func (s *referenceSteps) shouldFailWith(ctx context.Context, code string) error {
	if got := s.tc.ErrorCode(); got != code {
		return fmt.Errorf("expected error %q, got %q (status %d)", code, got, s.tc.Status())
	}
	return nil
}

func (s *referenceSteps) shouldHaveStatusAndHolder(ctx context.Context, name, status, holder string) error {
	path, err := s.path(name, "")
	if err != nil {
		return err
	}
	if err := s.tc.Do(holder, http.MethodGet, path, nil); err != nil {
		return err
	}
	if err := s.statusShouldBe(ctx, http.StatusOK); err != nil {
		return err
	}
	data, _ := s.tc.Data().(map[string]any)
	if got, _ := data["status"].(string); got != status {
		return fmt.Errorf("expected status %q, got %q", status, got)
	}
	holderID, err := s.tc.UserID(holder)
	if err != nil {
		return err
	}
	markedTo, _ := data["marked_to"].([]any)
	if len(markedTo) != 1 || markedTo[0] != holderID {
		return fmt.Errorf("expected %s to be the only holder, got %v", holder, markedTo)
	}
	return nil
}

func (s *referenceSteps) shouldHaveMovements(ctx context.Context, name string, want int) error {
	path, err := s.path(name, "/movements")
	if err != nil {
		return err
	}
	// The creator stays a participant, so the ledger is always visible to them.
	reader, err := s.creator(name)
	if err != nil {
		return err
	}
	if err := s.tc.Do(reader, http.MethodGet, path, nil); err != nil {
		return err
	}
	if err := s.statusShouldBe(ctx, http.StatusOK); err != nil {
		return err
	}
	movements, _ := s.tc.Data().([]any)
	if len(movements) != want {
		return fmt.Errorf("expected %d movements, got %d", want, len(movements))
	}
	return nil
}

func (s *referenceSteps) bulkSucceeded(ctx context.Context, name string) error {
	refID, err := s.tc.Ref(name)
	if err != nil {
		return err
	}
	data, _ := s.tc.Data().(map[string]any)
	succeeded, _ := data["succeeded"].([]any)
	for _, v := range succeeded {
		if v == refID {
			return nil
		}
	}
	return fmt.Errorf("%s not in succeeded %v", name, succeeded)
}

func (s *referenceSteps) bulkFailed(ctx context.Context, name, reason string) error {
	refID, err := s.tc.Ref(name)
	if err != nil {
		return err
	}
	data, _ := s.tc.Data().(map[string]any)
	failed, _ := data["failed"].([]any)
	for _, v := range failed {
		f, _ := v.(map[string]any)
		if f["id"] == refID {
			if f["reason"] != reason {
				return fmt.Errorf("%s failed with %v, expected %s", name, f["reason"], reason)
			}
			return nil
		}
	}
	return fmt.Errorf("%s not in failed %v", name, failed)
}
