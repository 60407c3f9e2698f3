package run

import (
	"errors"
	"strings"
	"testing"

	"github.com/Weiennn/cs3103-assignment4/internal/model"
	"github.com/Weiennn/cs3103-assignment4/internal/scenario"
	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/google/go-cmp/cmp"
)

func TestProfileFlagsValue(t *testing.T) {
	flags := &profileFlags{
		delay:       150,
		jitter:      20,
		loss:        10,
		reorder:     25,
		correlation: 50,
	}
	expected := map[model.Param]int64{
		model.ParamDelay:       150,
		model.ParamJitter:      20,
		model.ParamLoss:        10,
		model.ParamReorder:     25,
		model.ParamCorrelation: 50,
	}
	for param, want := range expected {
		if got := flags.value(param); got != want {
			t.Fatalf("value(%s): expected %d, got %d", param, want, got)
		}
	}
}

func TestCollectProfileFromFlags(t *testing.T) {
	sc, err := scenario.Resolve("mixed-stress")
	if err != nil {
		t.Fatal(err)
	}
	sess := &session{
		batch: true,
		flags: &profileFlags{
			delay:       100,
			jitter:      10,
			loss:        5,
			reorder:     15,
			correlation: 25,
		},
	}
	profile, err := sess.collectProfile(sc)
	if err != nil {
		t.Fatal(err)
	}
	expect := &model.ImpairmentProfile{
		DelayMs:        100,
		JitterMs:       10,
		LossPct:        5,
		ReorderPct:     15,
		CorrelationPct: 25,
	}
	if diff := cmp.Diff(expect, profile); diff != "" {
		t.Fatal(diff)
	}
}

func TestCollectProfileIgnoresUnrequiredFlags(t *testing.T) {
	sc, err := scenario.Resolve("reliable-delay")
	if err != nil {
		t.Fatal(err)
	}
	sess := &session{
		batch: true,
		flags: &profileFlags{
			delay:       200,
			jitter:      40,
			loss:        50, // not required by this scenario
			reorder:     -1,
			correlation: -1,
		},
	}
	profile, err := sess.collectProfile(sc)
	if err != nil {
		t.Fatal(err)
	}
	expect := &model.ImpairmentProfile{
		DelayMs:  200,
		JitterMs: 40,
	}
	if diff := cmp.Diff(expect, profile); diff != "" {
		t.Fatal(diff)
	}
}

func TestCollectProfileWarnsAboutIgnoredFlags(t *testing.T) {
	handler := memory.New()
	saved := log.Log.(*log.Logger).Handler
	log.SetHandler(handler)
	defer log.SetHandler(saved)

	sc, err := scenario.Resolve("reliable-only")
	if err != nil {
		t.Fatal(err)
	}
	sess := &session{
		batch: true,
		flags: &profileFlags{
			delay:       -1,
			jitter:      -1,
			loss:        50, // reliable-only does not use it
			reorder:     -1,
			correlation: -1,
		},
	}
	profile, err := sess.collectProfile(sc)
	if err != nil {
		t.Fatal(err)
	}
	if !profile.IsZero() {
		t.Fatal("expected the baseline profile")
	}
	var warned bool
	for _, entry := range handler.Entries {
		if entry.Level == log.WarnLevel && strings.Contains(entry.Message, "--loss") {
			warned = true
		}
	}
	if !warned {
		t.Fatal("expected a warning about the ignored flag")
	}
}

func TestCollectProfileBatchMissingFlag(t *testing.T) {
	sc, err := scenario.Resolve("unreliable-loss")
	if err != nil {
		t.Fatal(err)
	}
	sess := &session{
		batch: true,
		flags: &profileFlags{
			delay:       -1,
			jitter:      -1,
			loss:        5,
			reorder:     -1,
			correlation: -1, // required but not given
		},
	}
	if _, err := sess.collectProfile(sc); err == nil {
		t.Fatal("expected an error here")
	}
}

func TestCollectProfileRejectsInvalidFlag(t *testing.T) {
	sc, err := scenario.Resolve("unreliable-loss")
	if err != nil {
		t.Fatal(err)
	}
	sess := &session{
		batch: true,
		flags: &profileFlags{
			delay:       -1,
			jitter:      -1,
			loss:        250, // out of range
			reorder:     -1,
			correlation: 10,
		},
	}
	_, err = sess.collectProfile(sc)
	if !errors.Is(err, model.ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %+v", err)
	}
}

func TestChooseScenarioHonorsArgumentOnce(t *testing.T) {
	sess := &session{scenarioID: "reliable-only", batch: true}
	sc, err := sess.chooseScenario()
	if err != nil {
		t.Fatal(err)
	}
	if sc.ID != "reliable-only" {
		t.Fatalf("expected reliable-only, got %s", sc.ID)
	}
	if sess.scenarioID != "" {
		t.Fatal("expected the argument to be consumed")
	}
	if _, err := sess.chooseScenario(); err == nil {
		t.Fatal("expected an error on the second batch iteration")
	}
}

func TestChooseScenarioUnknownID(t *testing.T) {
	sess := &session{scenarioID: "antani", batch: true}
	_, err := sess.chooseScenario()
	if !errors.Is(err, scenario.ErrUnknownScenario) {
		t.Fatalf("expected ErrUnknownScenario, got %+v", err)
	}
}

func TestValidateParam(t *testing.T) {
	var cases = []struct {
		param   model.Param
		value   int64
		failure bool
	}{
		{model.ParamDelay, 0, false},
		{model.ParamDelay, 5000, false},
		{model.ParamDelay, -1, true},
		{model.ParamJitter, 10, false},
		{model.ParamLoss, 100, false},
		{model.ParamLoss, 101, true},
		{model.ParamReorder, -2, true},
		{model.ParamCorrelation, 25, false},
	}
	for _, tc := range cases {
		err := validateParam(tc.param, tc.value)
		if tc.failure && err == nil {
			t.Fatalf("%s=%d: expected an error here", tc.param, tc.value)
		}
		if !tc.failure && err != nil {
			t.Fatalf("%s=%d: %+v", tc.param, tc.value, err)
		}
	}
}
