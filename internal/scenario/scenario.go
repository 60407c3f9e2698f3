// Package scenario contains the catalog of traffic scenarios that the
// harness knows how to run.
//
// A scenario binds a traffic behavior of the transport under test (which
// external program plays the sender and which plays the receiver) to the
// impairment parameters the operator must provide for it. The catalog is
// a closed set: scenarios are enumerable at compile time and immutable.
package scenario

import (
	"errors"

	"github.com/Weiennn/cs3103-assignment4/internal/model"
)

// ErrUnknownScenario indicates that the given scenario ID does not
// name any scenario in the catalog.
var ErrUnknownScenario = errors.New("scenario: unknown scenario")

// Role identifies the logical function that an external program
// plays in a scenario run.
type Role int

const (
	// RoleMixedSender is the sender that picks the reliable or the
	// unreliable channel at random for each message.
	RoleMixedSender = Role(iota)

	// RoleUnreliableSender is the sender that always uses the
	// unreliable channel.
	RoleUnreliableSender

	// RoleReceiver is the default receiver.
	RoleReceiver

	// RoleAltReceiver is the alternative receiver implementation.
	RoleAltReceiver
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleMixedSender:
		return "mixed-sender"
	case RoleUnreliableSender:
		return "unreliable-sender"
	case RoleReceiver:
		return "receiver"
	case RoleAltReceiver:
		return "alt-receiver"
	default:
		return "unknown"
	}
}

// DefaultCommand returns the default command line for the role. The
// defaults point at the transport programs shipped alongside the
// harness; the config file may override them per role.
func (r Role) DefaultCommand() string {
	switch r {
	case RoleMixedSender:
		return "python3 sender.py"
	case RoleUnreliableSender:
		return "python3 unreliable_sender.py"
	case RoleReceiver:
		return "python3 receiver.py"
	case RoleAltReceiver:
		return "python3 receiver2.py"
	default:
		return ""
	}
}

// Scenario describes one entry of the catalog. Scenarios are defined
// once below and are read-only thereafter.
type Scenario struct {
	// ID is the stable identifier used on the command line.
	ID string

	// Description is the human readable description shown in the menu.
	Description string

	// RequiredParams lists the impairment profile fields the operator
	// must provide, in prompt order.
	RequiredParams []model.Param

	// SenderRole is the role playing the sender.
	SenderRole Role

	// ReceiverRole is the role playing the receiver.
	ReceiverRole Role
}

// Requires returns true when the scenario requires the given parameter.
func (sc *Scenario) Requires(p model.Param) bool {
	for _, required := range sc.RequiredParams {
		if required == p {
			return true
		}
	}
	return false
}

// catalog is the fixed, ordered scenario catalog. The order here is
// the menu order.
var catalog = []*Scenario{{
	ID:             "reliable-only",
	Description:    "mixed traffic on a clean link",
	RequiredParams: nil,
	SenderRole:     RoleMixedSender,
	ReceiverRole:   RoleReceiver,
}, {
	ID:             "unreliable-only",
	Description:    "unreliable traffic on a clean link",
	RequiredParams: nil,
	SenderRole:     RoleUnreliableSender,
	ReceiverRole:   RoleReceiver,
}, {
	ID:             "reliable-delay",
	Description:    "mixed traffic with delay and jitter",
	RequiredParams: []model.Param{model.ParamDelay, model.ParamJitter},
	SenderRole:     RoleMixedSender,
	ReceiverRole:   RoleReceiver,
}, {
	ID:             "unreliable-loss",
	Description:    "unreliable traffic with correlated loss",
	RequiredParams: []model.Param{model.ParamLoss, model.ParamCorrelation},
	SenderRole:     RoleUnreliableSender,
	ReceiverRole:   RoleReceiver,
}, {
	ID:          "mixed-reorder",
	Description: "mixed traffic with delay and correlated reordering",
	RequiredParams: []model.Param{
		model.ParamDelay, model.ParamReorder, model.ParamCorrelation,
	},
	SenderRole:   RoleMixedSender,
	ReceiverRole: RoleAltReceiver,
}, {
	ID:          "mixed-stress",
	Description: "mixed traffic with every impairment at once",
	RequiredParams: []model.Param{
		model.ParamDelay, model.ParamJitter, model.ParamLoss,
		model.ParamReorder, model.ParamCorrelation,
	},
	SenderRole:   RoleMixedSender,
	ReceiverRole: RoleAltReceiver,
}}

// All returns the catalog in its fixed menu order. The caller must
// not mutate the returned scenarios.
func All() []*Scenario {
	out := make([]*Scenario, len(catalog))
	copy(out, catalog)
	return out
}

// Resolve maps a scenario ID to the corresponding catalog entry and
// returns [ErrUnknownScenario] when no entry matches.
func Resolve(id string) (*Scenario, error) {
	for _, sc := range catalog {
		if sc.ID == id {
			return sc, nil
		}
	}
	return nil, ErrUnknownScenario
}
