package device

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Control names, forming command topics <topic_root>/<control>/set.
const (
	controlPairing      = "pairing_button"
	controlHeadPosition = "head_position"
	controlFeetPosition = "feet_position"
	controlRaiseHead    = "raise_head"
	controlLowerHead    = "lower_head"
	controlRaiseFeet    = "raise_feet"
	controlLowerFeet    = "lower_feet"
	controlFlat         = "flat"
	controlLounge       = "lounge"
)

// Availability values in state payloads.
const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

// BedFrame bridges one SUTA bed frame: it owns the hardware handle,
// derives the bed's topic identity, produces its discovery and state
// payloads and routes its inbound commands.
type BedFrame struct {
	actuator Actuator
	ctrl     *positionController
	logger   Logger
}

var _ Device = (*BedFrame)(nil)

// NewBedFrame wraps an actuator handle. settle is the wait between
// discrete moves during position convergence.
func NewBedFrame(actuator Actuator, settle time.Duration) *BedFrame {
	b := &BedFrame{
		actuator: actuator,
		ctrl:     newPositionController(actuator, settle),
		logger:   noopLogger{},
	}
	return b
}

// SetLogger sets the logger. Pass nil to disable logging.
func (b *BedFrame) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
	b.ctrl.logger = logger
}

// SetPositionRecorder registers a callback invoked with the reported
// percentages each time the convergence loop settles. Used for telemetry.
func (b *BedFrame) SetPositionRecorder(record func(address, name string, headPct, feetPct int)) {
	if record == nil {
		b.ctrl.onSettled = nil
		return
	}
	b.ctrl.onSettled = func(headPct, feetPct int) {
		record(b.Address(), b.Name(), headPct, feetPct)
	}
}

// Address returns the stable hardware address.
func (b *BedFrame) Address() string {
	return b.actuator.Address()
}

// Name returns the advertised hardware name.
func (b *BedFrame) Name() string {
	return b.actuator.Name()
}

// TopicRoot returns the command/state topic prefix for this bed.
func (b *BedFrame) TopicRoot() string {
	return TopicRoot(b.Address())
}

func (b *BedFrame) stateTopic() string {
	return StateTopic(b.Address())
}

func (b *BedFrame) commandTopic(control string) string {
	return b.TopicRoot() + "/" + control + "/set"
}

func (b *BedFrame) configTopic(discoveryPrefix, kind, entity string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", discoveryPrefix, kind, SanitizeID(b.Address()), entity)
}

func (b *BedFrame) deviceInfo() deviceInfo {
	return deviceInfo{
		Name:          b.Name(),
		Connections:   [][2]string{{"mac", b.Address()}},
		Model:         b.Name(),
		Manufacturer:  Manufacturer,
		SuggestedArea: "Bedroom",
	}
}

// UnpairedEntities exposes only the pairing trigger. Non-retained so a
// bed that wanders out of range does not leave a stale pairing offer.
func (b *BedFrame) UnpairedEntities(discoveryPrefix string) []Message {
	return []Message{
		{
			Topic: b.configTopic(discoveryPrefix, kindButton, "pairing_button"),
			Payload: marshalConfig(buttonConfig{
				Name:         "Pair With Device",
				UniqueID:     b.Address() + "_pairing_button",
				Icon:         "mdi:link-variant",
				CommandTopic: b.commandTopic(controlPairing),
				Device:       b.deviceInfo(),
			}),
			Retain: false,
		},
	}
}

// DiscoveryEntities returns the full ready-state entity set: step buttons
// for each axis, the flat and lounge presets, and numeric position
// controls. Retained so the hub resurfaces the bed after its own restart.
func (b *BedFrame) DiscoveryEntities(discoveryPrefix string) []Message {
	info := b.deviceInfo()

	button := func(entity, name, icon, control string) Message {
		return Message{
			Topic: b.configTopic(discoveryPrefix, kindButton, entity),
			Payload: marshalConfig(buttonConfig{
				Name:                 name,
				UniqueID:             b.Address() + "_" + entity,
				Icon:                 icon,
				CommandTopic:         b.commandTopic(control),
				AvailabilityTopic:    b.stateTopic(),
				AvailabilityTemplate: availabilityTemplate,
				Device:               info,
			}),
			Retain: true,
		}
	}

	number := func(entity, name, control string) Message {
		return Message{
			Topic: b.configTopic(discoveryPrefix, kindNumber, entity),
			Payload: marshalConfig(numberConfig{
				Name:                 name,
				UniqueID:             b.Address() + "_" + entity,
				CommandTopic:         b.commandTopic(control),
				StateTopic:           b.stateTopic(),
				ValueTemplate:        "{{ value_json." + control + " }}",
				AvailabilityTopic:    b.stateTopic(),
				AvailabilityTemplate: availabilityTemplate,
				Min:                  0,
				Max:                  100,
				Step:                 1,
				Device:               info,
			}),
			Retain: true,
		}
	}

	return []Message{
		button("raise_head_button", "Raise head", "mdi:arrow-up-bold", controlRaiseHead),
		button("lower_head_button", "Lower head", "mdi:arrow-down-bold", controlLowerHead),
		button("raise_feet_button", "Raise feet", "mdi:arrow-up-bold", controlRaiseFeet),
		button("lower_feet_button", "Lower feet", "mdi:arrow-down-bold", controlLowerFeet),
		button("flat_button", "Flat", "mdi:bed-empty", controlFlat),
		button("lounge_button", "Lounge", "mdi:seat-recline-extra", controlLounge),
		number("head_position", "Head position", controlHeadPosition),
		number("feet_position", "Feet position", controlFeetPosition),
	}
}

// HandleCommand routes one inbound command by its topic. Numeric controls
// carry a decimal percentage; button controls treat any payload as a
// trigger.
func (b *BedFrame) HandleCommand(ctx context.Context, reg Registrar, topic, payload string) error {
	switch topic {
	case b.commandTopic(controlPairing):
		if err := reg.StageUnpairedRemove(ctx, b); err != nil {
			return fmt.Errorf("unstage unpaired: %w", err)
		}
		if err := reg.StageTrackedAdd(ctx, b); err != nil {
			return fmt.Errorf("stage tracked: %w", err)
		}
		return nil

	case b.commandTopic(controlHeadPosition):
		percent, err := parsePercent(payload)
		if err != nil {
			return err
		}
		b.ctrl.setHeadTarget(percent)
		return nil

	case b.commandTopic(controlFeetPosition):
		percent, err := parsePercent(payload)
		if err != nil {
			return err
		}
		b.ctrl.setFeetTarget(percent)
		return nil

	case b.commandTopic(controlRaiseHead):
		b.ctrl.nudgeHead(1)
		return nil

	case b.commandTopic(controlLowerHead):
		b.ctrl.nudgeHead(-1)
		return nil

	case b.commandTopic(controlRaiseFeet):
		b.ctrl.nudgeFeet(1)
		return nil

	case b.commandTopic(controlLowerFeet):
		b.ctrl.nudgeFeet(-1)
		return nil

	case b.commandTopic(controlFlat):
		if err := b.actuator.Flat(ctx); err != nil {
			return fmt.Errorf("%w: flat: %w", ErrCommandFailed, err)
		}
		b.ctrl.markFlat()
		return nil

	case b.commandTopic(controlLounge):
		if err := b.actuator.Lounge(ctx); err != nil {
			return fmt.Errorf("%w: lounge: %w", ErrCommandFailed, err)
		}
		b.ctrl.markLounge()
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, topic)
	}
}

// statePayload is the retained device state shown to the hub.
type statePayload struct {
	Availability string `json:"availability"`
	HeadPosition int    `json:"head_position"`
	FeetPosition int    `json:"feet_position"`
}

// StateUpdate reports availability and the most recently settled
// positions. Positions reflect issued moves, never the pending target.
func (b *BedFrame) StateUpdate(online bool) (Message, error) {
	availability := availabilityOffline
	if online {
		availability = availabilityOnline
	}

	headPct, feetPct := b.ctrl.positions()

	data, err := json.Marshal(statePayload{
		Availability: availability,
		HeadPosition: headPct,
		FeetPosition: feetPct,
	})
	if err != nil {
		return Message{}, fmt.Errorf("marshal state: %w", err)
	}

	return Message{
		Topic:   b.stateTopic(),
		Payload: data,
		Retain:  true,
	}, nil
}

// Run drives the position convergence loop until cancellation.
func (b *BedFrame) Run(ctx context.Context) error {
	return b.ctrl.Run(ctx)
}

// parsePercent parses a numeric control payload. Number entities on the
// hub side emit decimal strings such as "50.0", so fractions are accepted
// and rounded to the nearest whole percent.
func parsePercent(payload string) (int, error) {
	percent, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPayload, payload)
	}
	return int(math.Round(percent)), nil
}

// marshalConfig serialises a discovery config. The config structs hold
// only strings, ints and slices of the same, which cannot fail to
// marshal.
func marshalConfig(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
