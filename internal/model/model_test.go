package model

import (
	"errors"
	"testing"
)

func TestImpairmentProfileValidate(t *testing.T) {
	type testcase struct {
		name    string
		profile ImpairmentProfile
		failure bool
	}
	cases := []testcase{{
		name:    "zero profile is valid",
		profile: ImpairmentProfile{},
	}, {
		name: "typical delay profile",
		profile: ImpairmentProfile{
			DelayMs:  50,
			JitterMs: 10,
		},
	}, {
		name: "all fields at their upper bound",
		profile: ImpairmentProfile{
			DelayMs:        10000,
			JitterMs:       10000,
			LossPct:        100,
			ReorderPct:     100,
			CorrelationPct: 100,
		},
	}, {
		name:    "negative delay",
		profile: ImpairmentProfile{DelayMs: -1},
		failure: true,
	}, {
		name:    "negative jitter",
		profile: ImpairmentProfile{JitterMs: -10},
		failure: true,
	}, {
		name:    "loss above 100",
		profile: ImpairmentProfile{LossPct: 101},
		failure: true,
	}, {
		name:    "negative reorder",
		profile: ImpairmentProfile{ReorderPct: -3},
		failure: true,
	}, {
		name:    "correlation above 100",
		profile: ImpairmentProfile{CorrelationPct: 250},
		failure: true,
	}}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.profile.Validate()
			if tc.failure && !errors.Is(err, ErrInvalidProfile) {
				t.Fatalf("expected ErrInvalidProfile, got %v", err)
			}
			if !tc.failure && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
		})
	}
}

func TestImpairmentProfileIsZero(t *testing.T) {
	p := &ImpairmentProfile{}
	if !p.IsZero() {
		t.Fatal("the zero profile should be zero")
	}
	p.CorrelationPct = 25
	if p.IsZero() {
		t.Fatal("a profile with correlation set should not be zero")
	}
}

func TestImpairmentProfileString(t *testing.T) {
	p := &ImpairmentProfile{}
	if p.String() != "baseline (no impairment)" {
		t.Fatalf("unexpected zero string: %s", p.String())
	}
	p = &ImpairmentProfile{DelayMs: 50, JitterMs: 10, LossPct: 5}
	if p.String() != "delay 50ms ±10ms, loss 5%" {
		t.Fatalf("unexpected string: %s", p.String())
	}
}

func TestParamString(t *testing.T) {
	all := map[Param]string{
		ParamDelay:       "delay",
		ParamJitter:      "jitter",
		ParamLoss:        "loss",
		ParamReorder:     "reorder",
		ParamCorrelation: "correlation",
		Param(44):        "unknown",
	}
	for param, expect := range all {
		if param.String() != expect {
			t.Fatalf("expected %s, got %s", expect, param.String())
		}
	}
}

func TestRunStateString(t *testing.T) {
	states := []RunState{
		RunStateIdle, RunStateReceiverStarting, RunStateWarmingUp,
		RunStateSenderStarting, RunStateSenderRunning, RunStateDraining,
		RunStateReceiverStopping, RunStateAborting,
	}
	seen := make(map[string]bool)
	for _, state := range states {
		s := state.String()
		if s == "unknown" {
			t.Fatalf("state %d is unknown", state)
		}
		if seen[s] {
			t.Fatalf("duplicate state string: %s", s)
		}
		seen[s] = true
	}
	if RunState(1024).String() != "unknown" {
		t.Fatal("expected unknown for out of range state")
	}
}
