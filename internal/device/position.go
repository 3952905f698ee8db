package device

import (
	"context"
	"math"
	"sync"
	"time"
)

// Physical step counts of the SUTA frame actuators. The head motor has a
// longer travel than the feet motor, so the ranges differ.
const (
	HeadMaxSteps = 39
	FeetMaxSteps = 31
)

// Lounge preset targets in percent, matching the hardware's built-in
// lounge memory position.
const (
	loungeHeadPercent = 60
	loungeFeetPercent = 30
)

// mover is the subset of Actuator the convergence loop drives.
type mover interface {
	RaiseHead(ctx context.Context) error
	LowerHead(ctx context.Context) error
	RaiseFeet(ctx context.Context) error
	LowerFeet(ctx context.Context) error
}

// axis tracks one motor in actuator steps. There is no position feedback
// from the hardware: current is the open-loop integration of every move
// this process has issued, and nothing else.
type axis struct {
	current int
	target  int
	max     int
}

// direction returns -1, 0 or +1 toward the target.
func (a *axis) direction() int {
	switch {
	case a.target > a.current:
		return 1
	case a.target < a.current:
		return -1
	default:
		return 0
	}
}

// positionController converges the head and feet axes toward their
// targets through discrete rate-limited moves.
//
// Targets arrive in percent from command handlers and are mapped to steps
// with target_step = round(max * percent / 100), clamped to [0, max].
// Reported positions use the inverse integer mapping
// percent = current * 100 / max, so a round trip through the mapping may
// not return the exact input percent.
//
// Thread Safety:
//   - Target and position accessors are safe for concurrent use.
//   - Run must only be invoked once.
type positionController struct {
	mu   sync.Mutex
	head axis
	feet axis

	// changed carries the "target changed" signal. One slot: repeated
	// target updates before the loop wakes coalesce into a single pass.
	changed chan struct{}

	settle time.Duration
	moves  mover
	logger Logger

	// onSettled is called with the reported percentages each time both
	// axes reach their targets. Nil disables the callback.
	onSettled func(headPct, feetPct int)
}

func newPositionController(moves mover, settle time.Duration) *positionController {
	return &positionController{
		head:    axis{max: HeadMaxSteps},
		feet:    axis{max: FeetMaxSteps},
		changed: make(chan struct{}, 1),
		settle:  settle,
		moves:   moves,
		logger:  noopLogger{},
	}
}

// percentToSteps maps a requested percentage onto the axis step range.
// Out-of-range input is usable: the result is clamped to [0, max].
func percentToSteps(percent, max int) int {
	steps := int(math.Round(float64(max) * float64(percent) / 100))
	return clampSteps(steps, max)
}

// stepsToPercent is the inverse mapping used for reporting. Integer
// division, matching what the hub is shown.
func stepsToPercent(steps, max int) int {
	return steps * 100 / max
}

func clampSteps(steps, max int) int {
	if steps < 0 {
		return 0
	}
	if steps > max {
		return max
	}
	return steps
}

// setHeadTarget sets the head target from a percentage and wakes the loop.
func (c *positionController) setHeadTarget(percent int) {
	c.mu.Lock()
	c.head.target = percentToSteps(percent, c.head.max)
	c.mu.Unlock()
	c.signal()
}

// setFeetTarget sets the feet target from a percentage and wakes the loop.
func (c *positionController) setFeetTarget(percent int) {
	c.mu.Lock()
	c.feet.target = percentToSteps(percent, c.feet.max)
	c.mu.Unlock()
	c.signal()
}

// nudgeHead shifts the head target by delta steps.
func (c *positionController) nudgeHead(delta int) {
	c.mu.Lock()
	c.head.target = clampSteps(c.head.target+delta, c.head.max)
	c.mu.Unlock()
	c.signal()
}

// nudgeFeet shifts the feet target by delta steps.
func (c *positionController) nudgeFeet(delta int) {
	c.mu.Lock()
	c.feet.target = clampSteps(c.feet.target+delta, c.feet.max)
	c.mu.Unlock()
	c.signal()
}

// markFlat records that the hardware executed its flat preset. Both axes
// are all the way down, so current and target reset to zero together.
func (c *positionController) markFlat() {
	c.mu.Lock()
	c.head.current, c.head.target = 0, 0
	c.feet.current, c.feet.target = 0, 0
	c.mu.Unlock()
}

// markLounge records that the hardware executed its lounge preset.
func (c *positionController) markLounge() {
	c.mu.Lock()
	c.head.current = percentToSteps(loungeHeadPercent, c.head.max)
	c.head.target = c.head.current
	c.feet.current = percentToSteps(loungeFeetPercent, c.feet.max)
	c.feet.target = c.feet.current
	c.mu.Unlock()
}

// positions returns the reported head and feet percentages.
func (c *positionController) positions() (headPct, feetPct int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return stepsToPercent(c.head.current, c.head.max),
		stepsToPercent(c.feet.current, c.feet.max)
}

// signal wakes the convergence loop without blocking.
func (c *positionController) signal() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// Run blocks on the target-changed signal and converges both axes each
// time it fires. Returns the context error on cancellation.
func (c *positionController) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.changed:
		}

		if err := c.converge(ctx); err != nil {
			return err
		}

		if c.onSettled != nil {
			headPct, feetPct := c.positions()
			c.onSettled(headPct, feetPct)
		}
	}
}

// converge issues at most one discrete move per axis per iteration, then
// waits a settle interval before re-evaluating. When both axes are out of
// sync the feet direction is not re-evaluated after the head move, so a
// target reset landing between the two moves still costs the feet one
// pulse. Preserved as-is from the original control loop.
func (c *positionController) converge(ctx context.Context) error {
	for {
		c.mu.Lock()
		headDir := c.head.direction()
		feetDir := c.feet.direction()
		c.mu.Unlock()

		if headDir == 0 && feetDir == 0 {
			return nil
		}

		switch {
		case headDir != 0 && feetDir != 0:
			c.stepHead(ctx, headDir)
			c.stepFeet(ctx, feetDir)
		case headDir != 0:
			c.stepHead(ctx, headDir)
		default:
			c.stepFeet(ctx, feetDir)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.settle):
		}
	}
}

// stepHead issues one head move and integrates it into current. A failed
// command is logged but still counted: the hardware gives no feedback, so
// whether the pulse landed cannot be observed and drift is accepted.
func (c *positionController) stepHead(ctx context.Context, dir int) {
	var err error
	if dir > 0 {
		err = c.moves.RaiseHead(ctx)
	} else {
		err = c.moves.LowerHead(ctx)
	}
	if err != nil {
		c.logger.Warn("head move failed", "error", err)
	}

	c.mu.Lock()
	c.head.current = clampSteps(c.head.current+dir, c.head.max)
	c.mu.Unlock()
}

// stepFeet issues one feet move and integrates it into current.
func (c *positionController) stepFeet(ctx context.Context, dir int) {
	var err error
	if dir > 0 {
		err = c.moves.RaiseFeet(ctx)
	} else {
		err = c.moves.LowerFeet(ctx)
	}
	if err != nil {
		c.logger.Warn("feet move failed", "error", err)
	}

	c.mu.Lock()
	c.feet.current = clampSteps(c.feet.current+dir, c.feet.max)
	c.mu.Unlock()
}
