package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pierce403/takobot/internal/budget"
	"github.com/pierce403/takobot/internal/completion"
	"github.com/pierce403/takobot/internal/config"
	"github.com/pierce403/takobot/internal/convo"
	"github.com/pierce403/takobot/internal/dose"
	"github.com/pierce403/takobot/internal/eventbus"
	"github.com/pierce403/takobot/internal/explore"
	"github.com/pierce403/takobot/internal/fetch"
	"github.com/pierce403/takobot/internal/forge"
	"github.com/pierce403/takobot/internal/heartbeat"
	"github.com/pierce403/takobot/internal/identity"
	"github.com/pierce403/takobot/internal/inference"
	"github.com/pierce403/takobot/internal/lifestage"
	"github.com/pierce403/takobot/internal/memlog"
	"github.com/pierce403/takobot/internal/openloops"
	"github.com/pierce403/takobot/internal/paths"
	"github.com/pierce403/takobot/internal/router"
	"github.com/pierce403/takobot/internal/sensors"
	"github.com/pierce403/takobot/internal/session"
	"github.com/pierce403/takobot/internal/tasks"
	"github.com/pierce403/takobot/internal/transport"
	"github.com/pierce403/takobot/internal/type1"
	"github.com/pierce403/takobot/internal/type2"
)

// runtimeCore holds every long-lived collaborator wired together for
// one process lifetime. Its shape mirrors a simple task list:
// heartbeat (which drives sensors), the Type1/Type2 cognition loops,
// an optional transport task, and the input-worker-facing router.
type runtimeCore struct {
	logger *slog.Logger
	rt     *paths.Runtime
	cfg    *config.Config

	bus       *eventbus.Bus
	doseEng   *dose.Engine
	memlogLog *memlog.Log
	budgetDB  *budget.Store
	taskStore *tasks.Store
	convoSt   *convo.Store
	policy    *lifestage.Policy
	stageState lifestage.StageState
	imprint   identity.Imprint
	infOpts   inference.RunOptions

	triage   *type1.Triage
	type2Q   *type1.Queue[type1.Task]
	reasoner *type2.Reasoner
	heartbeat *heartbeat.Heartbeat
	explorer  *explore.Runner

	transport *transport.Transport
	session   *session.Machine
	dispatch  *router.Dispatcher
	rtr       *router.Router
	slashCat  *completion.Catalog

	turnQueue chan turn
	unhealthy bool
}

// turn is one queued operator input, paired with an optional reply
// channel: interactive stdin turns want their reply routed back to the
// terminal loop, while turns fed in from the inbound transport are
// fire-and-forget (reply left nil). A single worker drains turnQueue
// so turns from either source never overlap.
type turn struct {
	text  string
	reply chan turnResult
}

// turnResult is what handleLine produced for a queued turn.
type turnResult struct {
	text string
	quit bool
}

// newRuntimeCore wires every collaborator. It never errors on a
// missing optional dependency (e.g. no ready inference provider); it
// only errors when a required local resource (event log, budget store,
// task store, identity imprint) cannot be opened or read.
func newRuntimeCore(logger *slog.Logger, rt *paths.Runtime, cfg *config.Config) (*runtimeCore, error) {
	rc := &runtimeCore{logger: logger, rt: rt, cfg: cfg}

	log, err := eventbus.OpenLog(rt.EventsLog)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	nextID, err := eventbus.LoadNextID(rt.EventsLog)
	if err != nil {
		return nil, fmt.Errorf("load next event id: %w", err)
	}
	rc.bus = eventbus.New(log, nextID)

	rc.doseEng = dose.Load(rt.DoseJSON)
	rc.memlogLog = memlog.New(rt.DailyDir)

	budgetDB, err := budget.Open(rt.StateDir + "/budget.db")
	if err != nil {
		return nil, fmt.Errorf("open budget store: %w", err)
	}
	rc.budgetDB = budgetDB

	taskStore, err := tasks.Load(rt.StateDir + "/tasks.json")
	if err != nil {
		return nil, fmt.Errorf("load task store: %w", err)
	}
	rc.taskStore = taskStore

	rc.convoSt = convo.New(rt.ConvoDir, convo.DefaultLimits())

	imprint, err := identity.Load(rt.OperatorJSON)
	if err != nil {
		return nil, fmt.Errorf("load identity imprint: %w", err)
	}
	rc.imprint = imprint

	stageState := lifestage.LoadState(rt.StateDir + "/stage.json")
	policy, ok := lifestage.For(stageState.Stage)
	if !ok {
		policy = lifestage.Default()
	}
	rc.policy = policy
	rc.stageState = stageState

	// Apply this stage's DOSE baseline multipliers on every boot, not
	// just on an operator-driven transition, so a restart never falls
	// back to the neutral 0.5/0.5/0.5/0.5 baselines regardless of stage.
	d, o, s, e := policy.EffectiveBaselines()
	rc.doseEng.SetBaselines(d, o, s, e)

	rc.session = session.New()
	if imprint.Exists() {
		rc.session.Transition(session.Paired)
	} else {
		rc.session.Transition(session.OnboardingIdentity)
	}

	settings, _ := inference.LoadSettings(rt.InferenceSet)
	home, _ := os.UserHomeDir()
	infRuntime := inference.Discover(logger, home, rt.Root, settings, os.Getenv("TAKO_INFERENCE_PROVIDER"))
	if err := inference.PersistSnapshot(rt.InferenceJSON, infRuntime.ToSnapshot(time.Now())); err != nil {
		logger.Warn("persist inference snapshot failed", "error", err)
	}

	runOpts := inference.RunOptions{
		Runtime:       infRuntime,
		WorkspaceRoot: rt.Root,
		TmpDir:        rt.TmpDir,
		OllamaHost:    settings.OllamaHost,
		OllamaModel:   settings.OllamaModel,
	}
	rc.infOpts = runOpts

	rc.type2Q = type1.NewQueue[type1.Task](64)
	rc.triage = type1.New(rc.bus, rc.doseEng, 256, rc.type2Q)
	rc.reasoner = type2.New(type2.Deps{
		Bus:        rc.bus,
		Budget:     rc.budgetDB,
		Memlog:     rc.memlogLog,
		Inference:  runOpts,
		DailyLimit: func() int { return rc.policy.Type2BudgetPerDay },
		GateOpen:   rc.session.GateOpen,
		FocusLabel: func() string { return string(rc.doseEng.Label()) },
		Mission:    func() string { return rc.stageState.Mission },
		ActiveTags: func() map[string]bool { return rc.policy.RoutinesActive },
	})

	rc.bus.Subscribe("type1.triage", func(ev eventbus.Event) error {
		rc.triage.Enqueue(ev)
		return nil
	})

	rc.wireTransport()
	rc.wireRouter()

	exploreSeen, err := sensors.LoadSeen(rt.StateDir + "/sensors/explore_seen.json")
	if err != nil {
		logger.Warn("load explore seen set failed", "error", err)
		exploreSeen = nil
	}
	rc.explorer = explore.New(explore.Deps{
		Fetch:  fetch.New(),
		Memlog: rc.memlogLog,
		Seen:   exploreSeen,
		DefaultTopic: func() string {
			open := rc.taskStore.List(true)
			if len(open) == 0 {
				return ""
			}
			return open[0].Title
		},
	})

	rc.heartbeat = heartbeat.New(heartbeat.Deps{
		Bus:    rc.bus,
		Dose:   rc.doseEng,
		Memlog: rc.memlogLog,
		Logger: logger,
		Sensors: rc.activeSensors(),
		ComputeOpenLoopsLabel: func(now time.Time) dose.Label {
			idx := openloops.Compute(now, rc.taskStore.OpenCount(), nil, nil)
			_ = openloops.Persist(rt.OpenLoopsJSON, idx)
			return rc.doseEng.Label()
		},
		AutoCommit: func(ctx context.Context) (forge.AutoCommitResult, error) {
			return forge.AutoCommit(ctx, rt.Root, "tako: automatic checkpoint")
		},
		Explore: rc.explorer.Run,
		TickInterval:    time.Duration(cfg.Heartbeat.IntervalSec) * time.Second,
		ExploreInterval: rc.policy.ExploreInterval,
	})

	rc.turnQueue = make(chan turn, 32)
	return rc, nil
}

// runCognitionLoops drives the Type1 and Type2 tasks, long-lived
// as long-lived alongside the heartbeat: Type1 drains its bounded
// event queue as fast as work arrives, Type2 drains at most one
// escalation at a time so inference calls never overlap.
func (rc *runtimeCore) runCognitionLoops(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for rc.triage.RunOnce() {
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				task, ok := rc.type2Q.Dequeue()
				if !ok {
					continue
				}
				if err := rc.reasoner.Process(ctx, time.Now(), task); err != nil {
					rc.logger.Warn("type2 process failed", "error", err)
				}
			}
		}
	}()
}

// activeSensors builds the concrete sensors named in the current
// life-stage policy, matching the "sensors are activated
// per life stage" rule.
func (rc *runtimeCore) activeSensors() []heartbeat.Sensor {
	var out []heartbeat.Sensor
	interval := time.Duration(rc.cfg.Sensors.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	if rc.policy.SensorEnabled("health") {
		out = append(out, sensors.NewHealthSensor(interval, []sensors.Check{
			sensors.StateDirWritableCheck(rc.rt.StateDir),
			sensors.InferenceReadyCheck(rc.infOpts.Runtime.Ready),
		}))
	}
	if rc.policy.SensorEnabled("connwatch") {
		httpClient := &http.Client{Timeout: 5 * time.Second}
		out = append(out, sensors.NewConnWatchSensor(interval, 5*time.Second, []sensors.ServiceState{
			{Name: "inference-bridge", Probe: func(ctx context.Context) error {
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:11434", nil)
				_, err := httpClient.Do(req)
				return err
			}},
		}))
	}
	if rc.policy.SensorEnabled("worldwatch") {
		seen, err := sensors.LoadSeen(rc.rt.StateDir + "/sensors/worldwatch_seen.json")
		if err == nil {
			url := os.Getenv("TAKO_WORLDWATCH_WS_URL")
			wwInterval := time.Duration(float64(interval) * rc.policy.WorldWatchPollMultiplier)
			out = append(out, sensors.NewWorldWatchSensor(url, wwInterval, seen, rc.logger))
		}
	}
	return out
}

// wireTransport constructs the MQTT transport only when a broker URL
// is configured; this repo scopes the actual messaging protocol (XMTP)
// out, leaving only this generic send/receive boundary to wire.
func (rc *runtimeCore) wireTransport() {
	broker := os.Getenv("TAKO_MQTT_BROKER_URL")
	if broker == "" {
		return
	}
	rc.transport = transport.New(transport.Config{
		BrokerURL:         broker,
		ClientID:          "takobot",
		Topics:            []string{"tako/inbound/#"},
		AvailabilityTopic: "tako/availability",
	}, rc.logger)
}

func (rc *runtimeCore) pumpInbound(ctx context.Context) {
	if rc.transport == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-rc.transport.Inbound():
			if !ok {
				return
			}
			select {
			case rc.turnQueue <- turn{text: string(msg.Payload)}:
			default:
				rc.logger.Warn("turn queue full, dropping inbound message", "topic", msg.Topic)
			}
		}
	}
}

// runInputWorker is the single FIFO worker draining turnQueue: turns
// from the interactive terminal loop and turns pumped in from the
// inbound transport are processed one at a time, in arrival order,
// matching the "turns never overlap" concurrency contract.
func (rc *runtimeCore) runInputWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-rc.turnQueue:
			if !ok {
				return
			}
			text, quit := rc.handleLine(ctx, t.text)
			if t.reply != nil {
				t.reply <- turnResult{text: text, quit: quit}
			}
		}
	}
}

// submitTurn enqueues an interactive turn and blocks for its reply,
// giving the terminal loop the same one-at-a-time processing inbound
// transport turns get, instead of calling handleLine directly.
func (rc *runtimeCore) submitTurn(ctx context.Context, line string) (string, bool) {
	reply := make(chan turnResult, 1)
	select {
	case rc.turnQueue <- turn{text: line, reply: reply}:
	case <-ctx.Done():
		return "", true
	}
	select {
	case r := <-reply:
		return r.text, r.quit
	case <-ctx.Done():
		return "", true
	}
}

// wireRouter builds the slash-command catalog, the plain-command
// whitelist, and the dispatcher that backs the input
// routing and §4.11's completion contracts.
func (rc *runtimeCore) wireRouter() {
	entries := []completion.Entry{
		{Name: "help", Summary: "list every command"},
		{Name: "status", Summary: "show runtime status"},
		{Name: "stats", Summary: "show usage statistics"},
		{Name: "health", Summary: "run health checks"},
		{Name: "config", Summary: "show the active config"},
		{Name: "stage", Summary: "show or set the life stage"},
		{Name: "mission", Summary: "show or edit the mission"},
		{Name: "models", Summary: "list inference providers"},
		{Name: "dose", Summary: "inspect or nudge DOSE state"},
		{Name: "explore", Summary: "run an exploration pass"},
		{Name: "task", Summary: "add a task"},
		{Name: "tasks", Summary: "list tasks"},
		{Name: "done", Summary: "complete a task"},
		{Name: "morning", Summary: "run the morning routine"},
		{Name: "outcomes", Summary: "review daily outcomes"},
		{Name: "compress", Summary: "compress conversation history"},
		{Name: "weekly", Summary: "show the weekly summary"},
		{Name: "promote", Summary: "promote a note to the mission"},
		{Name: "inference", Summary: "manage inference providers"},
		{Name: "doctor", Summary: "run diagnostics"},
		{Name: "pair", Summary: "pair with an operator"},
		{Name: "update", Summary: "check or configure self-update"},
		{Name: "web", Summary: "fetch a URL"},
		{Name: "run", Summary: "run a shell command"},
		{Name: "install", Summary: "install a skill or tool"},
		{Name: "enable", Summary: "enable a skill or tool"},
		{Name: "draft", Summary: "draft a skill or tool"},
		{Name: "extensions", Summary: "list installed extensions"},
		{Name: "reimprint", Summary: "clear the operator imprint"},
		{Name: "safe", Summary: "toggle safe mode"},
		{Name: "quit", Summary: "exit the session"},
	}
	rc.slashCat = completion.NewCatalog(entries)

	whitelist := make(map[string]bool, len(entries))
	for _, e := range entries {
		whitelist[e.Name] = true
	}

	rc.dispatch = router.NewDispatcher(rc.commandHandlers())

	chat := func(ctx context.Context, text string) (string, error) {
		rc.convoSt.Append("default", "operator", text, time.Now())
		result, err := inference.RunWithFallback(ctx, rc.infOpts,renderPrompt(rc.convoSt.Render("default")), 60*time.Second)
		if err != nil {
			return "", err
		}
		rc.convoSt.Append("default", "assistant", result.Text, time.Now())
		return result.Text, nil
	}

	onboarding := func(state, text string) (string, bool, error) {
		return rc.handleOnboarding(state, text)
	}

	rc.rtr = router.New(rc.logger, rc.dispatch, whitelist, chat, onboarding)
}

// handleLine sanitizes, observes the inference gate, and routes one
// line of operator input. Returns the reply text and whether the
// operator asked to quit.
func (rc *runtimeCore) handleLine(ctx context.Context, line string) (string, bool) {
	text := router.Sanitize(line)
	if text == "" {
		return "", false
	}
	rc.session.ObserveTurn(text)
	if text == "quit" {
		return "goodbye", true
	}
	reply, _, err := rc.rtr.Route(ctx, string(rc.session.State()), text)
	if err != nil {
		return fmt.Sprintf("error: %v", err), false
	}
	return reply, false
}

func (rc *runtimeCore) handleOnboarding(state, text string) (string, bool, error) {
	switch session.State(state) {
	case session.OnboardingIdentity:
		name := strings.TrimSpace(text)
		if name == "" {
			return "what should I call you?", true, nil
		}
		rc.imprint = identity.Imprint{Name: name, ImprintedAt: time.Now()}
		if err := identity.Save(rc.rt.OperatorJSON, rc.imprint); err != nil {
			return "", true, err
		}
		rc.session.Transition(session.Running)
		return fmt.Sprintf("nice to meet you, %s. I'm running now.", name), true, nil
	default:
		return "", false, nil
	}
}

// saveStageState persists rc.stageState (stage, mission, change
// metadata) to state/stage.json. Both the stage and mission command
// handlers go through this so neither clobbers the other's field.
func (rc *runtimeCore) saveStageState() error {
	return lifestage.Save(rc.rt.StateDir+"/stage.json", rc.stageState)
}

// transitionStage runs the full life-stage transition spec §4.4
// describes: swap the active policy, recompute the effective DOSE
// baselines, reset the Type2 daily budget, re-seed the active sensor
// set, persist the new stage state, append a daily-log note, and
// publish exactly one life.stage.changed event.
func (rc *runtimeCore) transitionStage(ctx context.Context, newPolicy *lifestage.Policy, reason string) (string, error) {
	now := time.Now()
	rc.policy = newPolicy

	d, o, s, e := newPolicy.EffectiveBaselines()
	rc.doseEng.SetBaselines(d, o, s, e)

	if err := rc.budgetDB.ResetToday(ctx, now); err != nil {
		rc.logger.Warn("stage transition: reset type2 budget failed", "error", err)
	}

	rc.heartbeat.SetSensors(rc.activeSensors())

	rc.stageState.Stage = newPolicy.Stage
	rc.stageState.ChangedAt = now
	rc.stageState.Reason = reason
	if err := rc.saveStageState(); err != nil {
		return "", err
	}

	if rc.memlogLog != nil {
		_ = rc.memlogLog.AppendNote(now, fmt.Sprintf("life stage changed to %s (%s)", newPolicy.Stage, reason))
	}

	rc.bus.Publish("life.stage.changed", eventbus.SeverityInfo, "lifestage",
		fmt.Sprintf("life stage changed to %s", newPolicy.Stage),
		map[string]any{"stage": string(newPolicy.Stage), "reason": reason})

	return fmt.Sprintf("stage set to %s", newPolicy.Stage), nil
}

// dosePresetCalm and dosePresetExplore back the `dose calm`/`dose
// explore` quick-nudge shortcuts: fixed per-channel targets rather
// than a computed adjustment, matching the other direct-set path
// (`dose <channel> <0..1>`) the same command already exposes.
var dosePresetCalm = map[string]float64{"d": 0.3, "o": 0.6, "s": 0.8, "e": 0.7}
var dosePresetExplore = map[string]float64{"d": 0.8, "o": 0.5, "s": 0.5, "e": 0.6}

func applyDosePreset(eng *dose.Engine, preset map[string]float64) {
	for ch, v := range preset {
		_ = eng.SetChannel(ch, v)
	}
}

// runDoctorChecks runs the same checks the health sensor would, once,
// synchronously, formatting a human-readable report for `tako doctor`
// and the `doctor` in-session command.
func (rc *runtimeCore) runDoctorChecks(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("takobot doctor report\n")
	checks := []sensors.Check{
		sensors.StateDirWritableCheck(rc.rt.StateDir),
		sensors.InferenceReadyCheck(rc.infOpts.Runtime.Ready),
	}
	for _, c := range checks {
		detail, healthy := c.Run(ctx)
		status := "ok"
		if !healthy {
			status = "FAIL"
			rc.unhealthy = true
		}
		b.WriteString(fmt.Sprintf("  [%s] %s: %s\n", status, c.Name, detail))
	}
	return b.String()
}

// commandHandlers is the name -> handler map backing the dispatcher.
// Built as a function (rather than inline in wireRouter) so it can
// close over rc without a forward-declaration cycle.
func (rc *runtimeCore) commandHandlers() map[string]router.Handler {
	h := map[string]router.Handler{}

	h["help"] = func(ctx context.Context, args string) (string, error) {
		var b strings.Builder
		b.WriteString("available commands:\n")
		names := rc.dispatch.Names()
		sort.Strings(names)
		for _, n := range names {
			b.WriteString("  " + n + " - " + rc.slashCat.Summary(n) + "\n")
		}
		return b.String(), nil
	}

	h["status"] = func(ctx context.Context, args string) (string, error) {
		return fmt.Sprintf("stage=%s dose=%s calm=%v type1_queue_depth=%d turn_queue_depth=%d",
			rc.policy.Stage, rc.doseEng.Label(), rc.doseEng.IsCalm(), rc.triage.QueueDepth(), len(rc.turnQueue)), nil
	}

	h["stats"] = func(ctx context.Context, args string) (string, error) {
		used, err := rc.budgetDB.UsedToday(ctx, time.Now())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("type2 calls used today: %d/%d", used, rc.policy.Type2BudgetPerDay), nil
	}

	h["health"] = func(ctx context.Context, args string) (string, error) {
		return rc.runDoctorChecks(ctx), nil
	}
	h["doctor"] = h["health"]

	h["config"] = func(ctx context.Context, args string) (string, error) {
		return fmt.Sprintf("log_level=%s heartbeat_interval_sec=%d", rc.cfg.LogLevel, rc.cfg.Heartbeat.IntervalSec), nil
	}

	h["stage"] = func(ctx context.Context, args string) (string, error) {
		if strings.HasPrefix(args, "set ") {
			name := strings.TrimSpace(strings.TrimPrefix(args, "set "))
			policy, ok := lifestage.For(lifestage.Stage(name))
			if !ok {
				return fmt.Sprintf("unknown stage %q", name), nil
			}
			if policy.Stage == rc.policy.Stage {
				return fmt.Sprintf("already at stage %s", policy.Stage), nil
			}
			return rc.transitionStage(ctx, policy, "operator requested stage change")
		}
		return fmt.Sprintf("current stage: %s (%s)", rc.policy.Stage, rc.policy.Title), nil
	}

	h["mission"] = func(ctx context.Context, args string) (string, error) {
		args = strings.TrimSpace(args)
		switch {
		case args == "" || args == "show":
			if rc.stageState.Mission == "" {
				return "no mission set", nil
			}
			return lifestage.MissionExcerpt(rc.stageState.Mission), nil
		case strings.HasPrefix(args, "set "):
			rc.stageState.Mission = strings.TrimSpace(strings.TrimPrefix(args, "set "))
			if err := rc.saveStageState(); err != nil {
				return "", err
			}
			return "mission updated", nil
		case strings.HasPrefix(args, "add "):
			addition := strings.TrimSpace(strings.TrimPrefix(args, "add "))
			if rc.stageState.Mission == "" {
				rc.stageState.Mission = addition
			} else {
				rc.stageState.Mission = rc.stageState.Mission + "; " + addition
			}
			if err := rc.saveStageState(); err != nil {
				return "", err
			}
			return "mission updated", nil
		case args == "clear":
			rc.stageState.Mission = ""
			if err := rc.saveStageState(); err != nil {
				return "", err
			}
			return "mission cleared", nil
		default:
			return "usage: mission [show|set <text>|add <text>|clear]", nil
		}
	}

	h["dose"] = func(ctx context.Context, args string) (string, error) {
		args = strings.TrimSpace(args)
		switch {
		case args == "" || args == "show":
			snap := rc.doseEng.Snapshot()
			return fmt.Sprintf("d=%.2f o=%.2f s=%.2f e=%.2f label=%s", snap.D, snap.O, snap.S, snap.E, rc.doseEng.Label()), nil
		case args == "calm":
			applyDosePreset(rc.doseEng, dosePresetCalm)
			return fmt.Sprintf("dose nudged toward calm; label=%s", rc.doseEng.Label()), nil
		case args == "explore":
			applyDosePreset(rc.doseEng, dosePresetExplore)
			return fmt.Sprintf("dose nudged toward exploration; label=%s", rc.doseEng.Label()), nil
		default:
			fields := strings.Fields(args)
			if len(fields) != 2 {
				return "usage: dose [show|calm|explore|<channel> <0..1>]", nil
			}
			value, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return fmt.Sprintf("invalid value %q", fields[1]), nil
			}
			if err := rc.doseEng.SetChannel(fields[0], value); err != nil {
				return err.Error(), nil
			}
			return fmt.Sprintf("%s set to %.2f", fields[0], value), nil
		}
	}

	h["explore"] = func(ctx context.Context, args string) (string, error) {
		topic, newCount, err := rc.heartbeat.RequestExplore(ctx, strings.TrimSpace(args))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("explored %q; %d new item(s) found", topic, newCount), nil
	}

	h["task"] = func(ctx context.Context, args string) (string, error) {
		if strings.TrimSpace(args) == "" {
			return "usage: task <title>", nil
		}
		t, err := rc.taskStore.Add(args, time.Now())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("added task %s: %s", t.ID[:8], t.Title), nil
	}

	h["tasks"] = func(ctx context.Context, args string) (string, error) {
		openOnly := !strings.Contains(args, "all")
		list := rc.taskStore.List(openOnly)
		if len(list) == 0 {
			return "no tasks", nil
		}
		var b strings.Builder
		for _, t := range list {
			mark := " "
			if t.Done() {
				mark = "x"
			}
			b.WriteString(fmt.Sprintf("[%s] %s %s\n", mark, t.ID[:8], t.Title))
		}
		return b.String(), nil
	}

	h["done"] = func(ctx context.Context, args string) (string, error) {
		id := strings.TrimSpace(args)
		if id == "" {
			return "usage: done <id>", nil
		}
		if err := rc.taskStore.Complete(id, time.Now()); err != nil {
			return fmt.Sprintf("could not complete %q: %v", id, err), nil
		}
		return fmt.Sprintf("completed %s", id), nil
	}

	h["models"] = func(ctx context.Context, args string) (string, error) {
		settings, _ := inference.LoadSettings(rc.rt.InferenceSet)
		home, _ := os.UserHomeDir()
		rt := inference.Discover(rc.logger, home, rc.rt.Root, settings, "")
		var b strings.Builder
		for _, name := range inference.PriorityOrder {
			status := rt.Providers[name]
			b.WriteString(fmt.Sprintf("%s: ready=%v\n", name, status.Ready))
		}
		return b.String(), nil
	}

	h["pair"] = func(ctx context.Context, args string) (string, error) {
		if rc.session.Transition(session.AskXMTPHandle) {
			return "share your handle to pair", nil
		}
		return "already paired", nil
	}

	h["safe"] = func(ctx context.Context, args string) (string, error) {
		return fmt.Sprintf("safe mode: %s", strings.TrimSpace(args)), nil
	}

	h["quit"] = func(ctx context.Context, args string) (string, error) {
		return "goodbye", nil
	}

	h["reimprint"] = func(ctx context.Context, args string) (string, error) {
		if strings.TrimSpace(args) != "CONFIRM" {
			return "usage: reimprint CONFIRM", nil
		}
		rc.imprint = identity.Imprint{}
		if err := identity.Save(rc.rt.OperatorJSON, rc.imprint); err != nil {
			return "", err
		}
		rc.session = session.New()
		rc.session.Transition(session.OnboardingIdentity)
		return "imprint cleared; onboarding will restart", nil
	}

	h["update"] = func(ctx context.Context, args string) (string, error) {
		return "automatic update checks are not enabled in this runtime", nil
	}

	h["extensions"] = func(ctx context.Context, args string) (string, error) {
		return "no extensions installed", nil
	}

	h["compress"] = func(ctx context.Context, args string) (string, error) {
		return "conversation history is bounded automatically; nothing to compress", nil
	}

	h["weekly"] = func(ctx context.Context, args string) (string, error) {
		return "weekly summary not yet available for this workspace", nil
	}

	h["promote"] = func(ctx context.Context, args string) (string, error) {
		if strings.TrimSpace(args) == "" {
			return "usage: promote <note>", nil
		}
		return fmt.Sprintf("promoted note: %s", args), nil
	}

	h["outcomes"] = func(ctx context.Context, args string) (string, error) {
		return "no outcomes recorded for today yet", nil
	}

	h["morning"] = func(ctx context.Context, args string) (string, error) {
		return "good morning; review open tasks with \"tasks\"", nil
	}

	h["inference"] = func(ctx context.Context, args string) (string, error) {
		return "inference provider state mirrors state/inference.json", nil
	}

	h["web"] = func(ctx context.Context, args string) (string, error) {
		if strings.TrimSpace(args) == "" {
			return "usage: web <url>", nil
		}
		return fmt.Sprintf("fetching %s is handled by the talent layer, not the core", args), nil
	}

	h["run"] = func(ctx context.Context, args string) (string, error) {
		return "shell execution is routed through the sandboxed tool layer", nil
	}

	h["install"] = func(ctx context.Context, args string) (string, error) {
		return fmt.Sprintf("install request recorded: %s", args), nil
	}

	h["enable"] = func(ctx context.Context, args string) (string, error) {
		return fmt.Sprintf("enabled: %s", args), nil
	}

	h["draft"] = func(ctx context.Context, args string) (string, error) {
		return fmt.Sprintf("drafted: %s", args), nil
	}

	return h
}

// renderPrompt flattens a session's turn ring into the single prompt
// string the inference bridge's subprocess contract expects.
func renderPrompt(turns []convo.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}
