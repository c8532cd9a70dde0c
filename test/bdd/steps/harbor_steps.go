package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cucumber/godog"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/shipyard-dev/harbor/internal/adapters/persistence"
	"github.com/shipyard-dev/harbor/internal/application/session"
	"github.com/shipyard-dev/harbor/internal/application/ship"
	"github.com/shipyard-dev/harbor/internal/domain/harbor"
	"github.com/shipyard-dev/harbor/internal/infrastructure/config"
	"github.com/shipyard-dev/harbor/internal/infrastructure/database"
	"github.com/shipyard-dev/harbor/test/helpers"
)

// harborContext holds state for fleet lifecycle BDD tests. Each scenario
// gets a fresh in-memory database, a fake driver, and a fake ship agent.
type harborContext struct {
	cfg      *config.Config
	db       *gorm.DB
	ships    *persistence.ShipRepositoryGORM
	bindings *persistence.BindingRepositoryGORM
	records  *persistence.ExecutionRecordRepositoryGORM

	driver    *helpers.FakeDriver
	fakeShip  *helpers.FakeShip
	scheduler *ship.CleanupScheduler
	service   *ship.Service
	sessions  *session.Service

	// Test state
	shipBySession map[string]string
	lastShip      *harbor.Ship
	lastSession   string
	lastExec      *ship.ExecResponse
	lastErr       error
}

func (ctx *harborContext) reset() error {
	ctx.teardown()

	db, err := database.NewTestConnection()
	if err != nil {
		return fmt.Errorf("test database: %w", err)
	}
	ctx.db = db
	ctx.ships = persistence.NewShipRepository(db)
	ctx.bindings = persistence.NewBindingRepository(db)
	ctx.records = persistence.NewExecutionRecordRepository(db)

	ctx.fakeShip = helpers.StartFakeShip()
	ctx.driver = helpers.NewFakeDriver()
	ctx.driver.Address = ctx.fakeShip.Address()

	ctx.cfg = config.DefaultConfig()
	ctx.cfg.Ship.HealthCheckTimeout = 2 * time.Second
	ctx.cfg.Ship.HealthCheckInterval = 20 * time.Millisecond
	ctx.cfg.Ship.OverflowPolicy = "reject"

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	ctx.scheduler = ship.NewCleanupScheduler(ctx.ships, ctx.bindings, ctx.driver, nil, log)
	client := ship.NewClient(&ctx.cfg.Ship, log)
	ctx.service = ship.NewService(ctx.ships, ctx.bindings, ctx.records, ctx.driver, client, ctx.scheduler, &ctx.cfg.Ship, nil, log)
	ctx.sessions = session.NewService(ctx.bindings, ctx.records, ctx.scheduler, log)

	ctx.shipBySession = make(map[string]string)
	ctx.lastShip = nil
	ctx.lastSession = ""
	ctx.lastExec = nil
	ctx.lastErr = nil
	return nil
}

func (ctx *harborContext) teardown() {
	if ctx.scheduler != nil {
		ctx.scheduler.CancelAll()
		ctx.scheduler = nil
	}
	if ctx.fakeShip != nil {
		ctx.fakeShip.Close()
		ctx.fakeShip = nil
	}
	if ctx.db != nil {
		database.Close(ctx.db)
		ctx.db = nil
	}
}

// InitializeHarborScenario registers the fleet lifecycle step definitions.
func InitializeHarborScenario(sc *godog.ScenarioContext) {
	sCtx := &harborContext{}

	// Given steps
	sc.Step(`^an empty harbor$`, sCtx.anEmptyHarbor)
	sc.Step(`^the harbor capacity is (\d+) ships?$`, sCtx.theHarborCapacityIs)
	sc.Step(`^session "([^"]*)" has a running ship$`, sCtx.sessionHasARunningShip)
	sc.Step(`^the warm pool holds a ready ship$`, sCtx.theWarmPoolHoldsAReadyShip)

	// When steps
	sc.Step(`^session "([^"]*)" requests a ship$`, sCtx.sessionRequestsAShip)
	sc.Step(`^session "([^"]*)" executes the shell command "([^"]*)"$`, sCtx.sessionExecutesTheShellCommand)
	sc.Step(`^session "([^"]*)" runs a command on session "([^"]*)"'s ship$`, sCtx.sessionRunsACommandOnAnotherShip)
	sc.Step(`^session "([^"]*)"'s ship is stopped$`, sCtx.sessionsShipIsStopped)
	sc.Step(`^session "([^"]*)"'s ship data is lost$`, sCtx.sessionsShipDataIsLost)
	sc.Step(`^session "([^"]*)" is terminated$`, sCtx.sessionIsTerminated)

	// Then steps
	sc.Step(`^the session is bound to a running ship$`, sCtx.theSessionIsBoundToARunningShip)
	sc.Step(`^the same ship is returned$`, sCtx.theSameShipIsReturned)
	sc.Step(`^a different ship is returned$`, sCtx.aDifferentShipIsReturned)
	sc.Step(`^exactly (\d+) containers? (?:has|have) been created$`, sCtx.exactlyNContainersHaveBeenCreated)
	sc.Step(`^the ship is running$`, sCtx.theShipIsRunning)
	sc.Step(`^the ship is eventually stopped$`, sCtx.theShipIsEventuallyStopped)
	sc.Step(`^the execution succeeds with output "([^"]*)"$`, sCtx.theExecutionSucceedsWithOutput)
	sc.Step(`^the execution is recorded in the session history$`, sCtx.theExecutionIsRecordedInTheSessionHistory)
	sc.Step(`^the operation is denied$`, sCtx.theOperationIsDenied)
	sc.Step(`^the request fails because the harbor is full$`, sCtx.theRequestFailsBecauseTheHarborIsFull)
	sc.Step(`^the sessions are bound to different ships$`, sCtx.theSessionsAreBoundToDifferentShips)

	// Hooks
	sc.Before(func(gCtx context.Context, sc *godog.Scenario) (context.Context, error) {
		return gCtx, sCtx.reset()
	})
	sc.After(func(gCtx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		sCtx.teardown()
		return gCtx, nil
	})
}

// ============================================================================
// Given Steps
// ============================================================================

func (ctx *harborContext) anEmptyHarbor() error {
	return nil
}

func (ctx *harborContext) theHarborCapacityIs(maxShips int) error {
	ctx.cfg.Ship.MaxShips = maxShips
	return nil
}

func (ctx *harborContext) sessionHasARunningShip(sessionID string) error {
	if err := ctx.sessionRequestsAShip(sessionID); err != nil {
		return err
	}
	return ctx.lastErr
}

func (ctx *harborContext) theWarmPoolHoldsAReadyShip(gCtx context.Context) error {
	ctx.cfg.WarmPool.Enabled = true
	ctx.cfg.WarmPool.MinSize = 1
	ctx.cfg.WarmPool.MaxSize = 1
	ctx.cfg.WarmPool.ReplenishInterval = 50 * time.Millisecond

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	replenisher := ship.NewReplenisher(ctx.service, ctx.ships, &ctx.cfg.WarmPool, &ctx.cfg.Ship, nil, log)
	replenisher.Start(gCtx)
	defer replenisher.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		count, err := ctx.ships.CountWarmPoolShips(gCtx)
		if err != nil {
			return err
		}
		if count >= 1 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("warm pool did not fill within 2s")
}

// ============================================================================
// When Steps
// ============================================================================

func (ctx *harborContext) sessionRequestsAShip(sessionID string) error {
	resolved, err := ctx.service.ResolveShip(context.Background(), sessionID, &ship.CreateShipRequest{})
	ctx.lastShip = resolved
	ctx.lastSession = sessionID
	ctx.lastErr = err
	if err == nil {
		if _, seen := ctx.shipBySession[sessionID]; !seen {
			ctx.shipBySession[sessionID] = resolved.ID
		}
	}
	return nil
}

func (ctx *harborContext) sessionExecutesTheShellCommand(sessionID, command string) error {
	shipID, ok := ctx.shipBySession[sessionID]
	if !ok {
		return fmt.Errorf("session %q has no ship", sessionID)
	}
	return ctx.execOn(sessionID, shipID, command)
}

func (ctx *harborContext) sessionRunsACommandOnAnotherShip(sessionID, ownerSession string) error {
	shipID, ok := ctx.shipBySession[ownerSession]
	if !ok {
		return fmt.Errorf("session %q has no ship", ownerSession)
	}
	return ctx.execOn(sessionID, shipID, "echo hi")
}

func (ctx *harborContext) execOn(sessionID, shipID, command string) error {
	resp, err := ctx.service.Execute(context.Background(), sessionID, shipID, &ship.ExecRequest{
		Type:    "shell/exec",
		Payload: map[string]interface{}{"command": command},
	})
	ctx.lastExec = resp
	ctx.lastSession = sessionID
	ctx.lastErr = err
	return nil
}

func (ctx *harborContext) sessionsShipIsStopped(sessionID string) error {
	shipID, ok := ctx.shipBySession[sessionID]
	if !ok {
		return fmt.Errorf("session %q has no ship", sessionID)
	}
	return ctx.service.DeleteShip(context.Background(), shipID, false)
}

func (ctx *harborContext) sessionsShipDataIsLost(sessionID string) error {
	shipID, ok := ctx.shipBySession[sessionID]
	if !ok {
		return fmt.Errorf("session %q has no ship", sessionID)
	}
	ctx.driver.DropShipData(shipID)
	return nil
}

func (ctx *harborContext) sessionIsTerminated(sessionID string) error {
	return ctx.sessions.Terminate(context.Background(), sessionID)
}

// ============================================================================
// Then Steps
// ============================================================================

func (ctx *harborContext) theSessionIsBoundToARunningShip() error {
	if ctx.lastErr != nil {
		return fmt.Errorf("resolution failed: %w", ctx.lastErr)
	}
	if ctx.lastShip == nil || ctx.lastShip.Status != harbor.StatusRunning {
		return fmt.Errorf("expected a running ship, got %+v", ctx.lastShip)
	}
	binding, err := ctx.bindings.Get(context.Background(), ctx.lastSession, ctx.lastShip.ID)
	if err != nil {
		return err
	}
	if !binding.Active(time.Now()) {
		return fmt.Errorf("binding for %q is not active", ctx.lastSession)
	}
	return nil
}

func (ctx *harborContext) theSameShipIsReturned() error {
	if ctx.lastErr != nil {
		return fmt.Errorf("resolution failed: %w", ctx.lastErr)
	}
	firstID := ctx.shipBySession[ctx.lastSession]
	if ctx.lastShip.ID != firstID {
		return fmt.Errorf("expected ship %s, got %s", firstID, ctx.lastShip.ID)
	}
	return nil
}

func (ctx *harborContext) aDifferentShipIsReturned() error {
	if ctx.lastErr != nil {
		return fmt.Errorf("resolution failed: %w", ctx.lastErr)
	}
	firstID := ctx.shipBySession[ctx.lastSession]
	if ctx.lastShip.ID == firstID {
		return fmt.Errorf("expected a fresh ship, got the original %s", firstID)
	}
	return nil
}

func (ctx *harborContext) exactlyNContainersHaveBeenCreated(n int) error {
	if created := ctx.driver.CreatedCount(); created != n {
		return fmt.Errorf("expected %d containers created, got %d", n, created)
	}
	return nil
}

func (ctx *harborContext) theShipIsRunning() error {
	loaded, err := ctx.ships.Get(context.Background(), ctx.lastShip.ID)
	if err != nil {
		return err
	}
	if loaded.Status != harbor.StatusRunning {
		return fmt.Errorf("expected running, got %s", loaded.Status)
	}
	return nil
}

func (ctx *harborContext) theShipIsEventuallyStopped() error {
	shipID := ctx.shipBySession[ctx.lastSession]
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		loaded, err := ctx.ships.Get(context.Background(), shipID)
		if err != nil {
			return err
		}
		if loaded.Status == harbor.StatusStopped {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("ship %s did not stop within 2s", shipID)
}

func (ctx *harborContext) theExecutionSucceedsWithOutput(expected string) error {
	if ctx.lastErr != nil {
		return fmt.Errorf("execution failed: %w", ctx.lastErr)
	}
	if !ctx.lastExec.Success {
		return fmt.Errorf("execution reported failure: %s", ctx.lastExec.Error)
	}
	stdout, _ := ctx.lastExec.Data["stdout"].(string)
	if stdout != expected {
		return fmt.Errorf("expected output %q, got %q", expected, stdout)
	}
	return nil
}

func (ctx *harborContext) theExecutionIsRecordedInTheSessionHistory() error {
	if ctx.lastExec == nil || ctx.lastExec.ExecutionID == "" {
		return fmt.Errorf("no execution id was recorded")
	}
	record, err := ctx.records.Get(context.Background(), ctx.lastExec.ExecutionID)
	if err != nil {
		return err
	}
	if record.SessionID != ctx.lastSession {
		return fmt.Errorf("record belongs to %q, expected %q", record.SessionID, ctx.lastSession)
	}
	return nil
}

func (ctx *harborContext) theOperationIsDenied() error {
	if !errors.Is(ctx.lastErr, harbor.ErrAccessDenied) {
		return fmt.Errorf("expected access denied, got %v", ctx.lastErr)
	}
	return nil
}

func (ctx *harborContext) theRequestFailsBecauseTheHarborIsFull() error {
	if !errors.Is(ctx.lastErr, harbor.ErrCapacityExceeded) {
		return fmt.Errorf("expected capacity exceeded, got %v", ctx.lastErr)
	}
	return nil
}

func (ctx *harborContext) theSessionsAreBoundToDifferentShips() error {
	seen := make(map[string]string)
	for sessionID, shipID := range ctx.shipBySession {
		if other, dup := seen[shipID]; dup {
			return fmt.Errorf("sessions %q and %q share ship %s", sessionID, other, shipID)
		}
		seen[shipID] = sessionID
	}
	return nil
}
