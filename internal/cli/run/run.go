// Package run implements the run command, which drives the session
// loop: choose a scenario, collect its impairment parameters, realize
// the profile on the interface, supervise the sender/receiver pair,
// clear the profile, and possibly repeat.
package run

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/Weiennn/cs3103-assignment4/internal/cli/root"
	"github.com/Weiennn/cs3103-assignment4/internal/harness"
	"github.com/Weiennn/cs3103-assignment4/internal/model"
	"github.com/Weiennn/cs3103-assignment4/internal/runtimex"
	"github.com/Weiennn/cs3103-assignment4/internal/scenario"
	"github.com/Weiennn/cs3103-assignment4/internal/supervisor"
	"github.com/alecthomas/kingpin/v2"
	"github.com/apex/log"
)

func init() {
	cmd := root.Command("run", "Run impairment scenarios against the transport under test")

	scenarioID := cmd.Arg("scenario", "Scenario to run (interactive menu when omitted)").String()
	batch := cmd.Flag("batch", "Never prompt; requires a scenario and its profile flags").Bool()
	flags := &profileFlags{}
	cmd.Flag("delay", "Delay in milliseconds").Default("-1").Int64Var(&flags.delay)
	cmd.Flag("jitter", "Delay variation in milliseconds").Default("-1").Int64Var(&flags.jitter)
	cmd.Flag("loss", "Loss percentage").Default("-1").Int64Var(&flags.loss)
	cmd.Flag("reorder", "Reordering percentage").Default("-1").Int64Var(&flags.reorder)
	cmd.Flag("correlation", "Correlation percentage").Default("-1").Int64Var(&flags.correlation)

	cmd.Action(func(_ *kingpin.ParseContext) error {
		h, err := root.Init()
		if err != nil {
			return err
		}
		sess := &session{
			harness:    h,
			scenarioID: *scenarioID,
			batch:      *batch,
			flags:      flags,
		}
		return sess.Main()
	})
}

// profileFlags holds the command line values for the profile fields,
// where a negative value means "not provided".
type profileFlags struct {
	delay       int64
	jitter      int64
	loss        int64
	reorder     int64
	correlation int64
}

// value returns the flag value for the given parameter.
func (pf *profileFlags) value(param model.Param) int64 {
	switch param {
	case model.ParamDelay:
		return pf.delay
	case model.ParamJitter:
		return pf.jitter
	case model.ParamLoss:
		return pf.loss
	case model.ParamReorder:
		return pf.reorder
	case model.ParamCorrelation:
		return pf.correlation
	default:
		return -1
	}
}

// session is the state of one interactive (or batch) session.
type session struct {
	// harness is the CLI context.
	harness *harness.Harness

	// scenarioID is the scenario chosen on the command line, consumed
	// by the first iteration of the loop.
	scenarioID string

	// batch tells us to never prompt.
	batch bool

	// flags are the profile fields provided on the command line.
	flags *profileFlags
}

// Main runs the session loop until the operator is done.
func (s *session) Main() error {
	s.harness.ListenForSignals()
	for !s.harness.IsTerminated() {
		sc, err := s.chooseScenario()
		if err != nil {
			if errors.Is(err, scenario.ErrUnknownScenario) && !s.batch {
				// report and re-render the menu without touching any
				// network or process state
				log.Errorf("%s", err)
				continue
			}
			return err
		}
		profile, err := s.collectProfile(sc)
		if err != nil {
			return err
		}
		if err := s.runOnce(sc, profile); err != nil {
			if s.batch {
				return err
			}
			// fatal to this run only: the session continues
			log.WithError(err).Error("the run failed")
		}
		if s.batch || !s.askAgain() {
			break
		}
	}
	return nil
}

// chooseScenario picks the scenario for the next run. The command
// line argument is honored exactly once; afterwards we fall back to
// the interactive menu.
func (s *session) chooseScenario() (*scenario.Scenario, error) {
	if s.scenarioID != "" {
		id := s.scenarioID
		s.scenarioID = ""
		return scenario.Resolve(id)
	}
	if s.batch {
		return nil, errors.New("batch mode requires a scenario argument")
	}
	all := scenario.All()
	var options []string
	for _, sc := range all {
		options = append(options, fmt.Sprintf("%s: %s", sc.ID, sc.Description))
	}
	var idx int
	prompt := &survey.Select{
		Message: "Choose a scenario:",
		Options: options,
	}
	if err := survey.AskOne(prompt, &idx); err != nil {
		return nil, err
	}
	runtimex.Assert(idx >= 0 && idx < len(all), "scenario index out of range")
	return all[idx], nil
}

// collectProfile builds the impairment profile for the scenario from
// flags and, when allowed, interactive prompts. Parameters the
// scenario does not require stay at zero and are omitted from the
// applied configuration.
func (s *session) collectProfile(sc *scenario.Scenario) (*model.ImpairmentProfile, error) {
	allParams := []model.Param{
		model.ParamDelay, model.ParamJitter, model.ParamLoss,
		model.ParamReorder, model.ParamCorrelation,
	}
	for _, param := range allParams {
		if s.flags.value(param) >= 0 && !sc.Requires(param) {
			log.Warnf("ignoring --%s: %s does not use it", param, sc.ID)
		}
	}
	profile := &model.ImpairmentProfile{}
	for _, param := range sc.RequiredParams {
		value, err := s.paramValue(param)
		if err != nil {
			return nil, err
		}
		switch param {
		case model.ParamDelay:
			profile.DelayMs = value
		case model.ParamJitter:
			profile.JitterMs = value
		case model.ParamLoss:
			profile.LossPct = value
		case model.ParamReorder:
			profile.ReorderPct = value
		case model.ParamCorrelation:
			profile.CorrelationPct = value
		}
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

// paramValue obtains the value for a single required parameter.
func (s *session) paramValue(param model.Param) (int64, error) {
	if preset := s.flags.value(param); preset >= 0 {
		return preset, nil
	}
	if s.batch {
		return 0, fmt.Errorf("batch mode requires the --%s flag", param)
	}
	var answer string
	prompt := &survey.Input{Message: promptMessage(param)}
	if err := survey.AskOne(prompt, &answer, survey.WithValidator(paramValidator(param))); err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(answer), 10, 64)
}

// promptMessage returns the prompt for the given parameter.
func promptMessage(param model.Param) string {
	switch param {
	case model.ParamDelay:
		return "delay (ms):"
	case model.ParamJitter:
		return "jitter (ms):"
	case model.ParamLoss:
		return "loss (%):"
	case model.ParamReorder:
		return "reorder (%):"
	default:
		return "correlation (%):"
	}
}

// paramValidator returns the survey validator for the parameter.
func paramValidator(param model.Param) survey.Validator {
	return func(ans interface{}) error {
		answer, ok := ans.(string)
		if !ok {
			return errors.New("enter an integer")
		}
		value, err := strconv.ParseInt(strings.TrimSpace(answer), 10, 64)
		if err != nil {
			return errors.New("enter an integer")
		}
		return validateParam(param, value)
	}
}

// validateParam checks a single parameter value range.
func validateParam(param model.Param, value int64) error {
	switch param {
	case model.ParamDelay, model.ParamJitter:
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", param)
		}
	default:
		if value < 0 || value > 100 {
			return fmt.Errorf("%s must be in [0, 100]", param)
		}
	}
	return nil
}

// runOnce performs a single scenario run: apply, observe, supervise,
// clear. The interface is cleared even when the run fails.
func (s *session) runOnce(sc *scenario.Scenario, profile *model.ImpairmentProfile) error {
	cfg := s.harness.Config()
	ctrl := s.harness.Controller()
	iface := s.harness.InterfaceName()

	log.WithFields(log.Fields{
		"type":  "section_title",
		"title": sc.ID,
	}).Info("starting scenario")

	if err := ctrl.Apply(iface, profile); err != nil {
		// start the next run from an attempted-clean state
		_ = ctrl.Clear(iface)
		return err
	}
	s.displayConfiguration(profile, iface)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.harness.SetCancelRun(cancel)
	defer s.harness.SetCancelRun(nil)

	s.observe(ctx, cfg.Observe())

	sup := supervisor.New(&supervisor.Config{
		Logger: log.Log,
		ResolveCommand: func(role scenario.Role) string {
			return cfg.RoleCommand(role.String(), role.DefaultCommand())
		},
		OnUpdate:  s.harness.UpdateRun,
		Warmup:    cfg.Warmup(),
		Drain:     cfg.Drain(),
		StopGrace: cfg.StopGrace(),
	})
	result, runErr := sup.RunScenario(ctx, sc)
	if runErr == nil {
		log.WithFields(log.Fields{
			"type":          "table",
			"sender exit":   result.SenderExitCode,
			"receiver exit": result.ReceiverExitCode,
		}).Info("run completed")
	}

	if err := ctrl.Clear(iface); err != nil {
		log.WithError(err).Warnf("failed to clear %s", iface)
	}
	return runErr
}

// displayConfiguration reports the applied configuration so the
// operator can confirm it before the run starts.
func (s *session) displayConfiguration(profile *model.ImpairmentProfile, iface string) {
	fields := log.Fields{
		"type":      "table",
		"interface": iface,
		"profile":   profile.String(),
	}
	if snapshot, err := s.harness.Controller().Describe(iface); err == nil && snapshot != "" {
		fields["qdisc"] = snapshot
	}
	log.WithFields(fields).Info("applied configuration")
}

// observe gives the operator a moment to eyeball the configuration
// before the processes start.
func (s *session) observe(ctx context.Context, d time.Duration) {
	log.Infof("observing the configured link for %s", d)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// askAgain asks the operator whether to run another scenario.
func (s *session) askAgain() bool {
	answer := false
	prompt := &survey.Confirm{Message: "Run another scenario?"}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return false
	}
	return answer
}
