// Command tako is the entry point for the takobot cognitive runtime.
// Adapted from a conventional Go CLI subcommand-dispatch shape: on
// flag.Arg(0), an Info-level slog logger, and a background-task
// wiring pass before the foreground loop starts.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pierce403/takobot/internal/buildinfo"
	"github.com/pierce403/takobot/internal/config"
	"github.com/pierce403/takobot/internal/paths"
)

func main() {
	versionFlag := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if *versionFlag {
		fmt.Println(buildinfo.String())
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	sub := "app"
	args := flag.Args()
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	var code int
	switch sub {
	case "app", "run":
		code = runCore(logger, *configPath)
	case "hi":
		code = runHi(logger, *configPath, args)
	case "bootstrap":
		code = runBootstrap(logger, *configPath)
	case "doctor":
		code = runDoctor(logger, *configPath)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", sub)
		code = 2
	}
	os.Exit(code)
}

// loadWorkspace resolves the workspace root, the static config
// overlay, and the .tako runtime layout, refusing to start if
// wallet material is VCS-tracked or another instance already holds
// the workspace's exclusive lock. Every subcommand goes through this
// same boot sequence, matching a single startup-blocked exit
// code (1) for any of these failures. The caller owns the returned
// lock and must Release it before exiting.
func loadWorkspace(logger *slog.Logger, configPath string) (string, *config.Config, *paths.Runtime, *paths.InstanceLock, error) {
	root := "."
	if cfgPath, err := config.FindConfig(configPath); err == nil {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return "", nil, nil, nil, fmt.Errorf("load config: %w", err)
		}
		if cfg.Workspace.Path != "" {
			root = cfg.Workspace.Path
		}
		resolvedRoot, err := paths.FindWorkspaceRoot(root)
		if err != nil {
			return "", nil, nil, nil, err
		}
		rt := paths.NewRuntime(resolvedRoot)
		if err := rt.EnsureDirs(); err != nil {
			return "", nil, nil, nil, fmt.Errorf("ensure runtime dirs: %w", err)
		}
		if err := rt.CheckSecretsNotTracked(resolvedRoot); err != nil {
			return "", nil, nil, nil, err
		}
		lock, err := paths.AcquireLock(rt.InstanceLock)
		if err != nil {
			return "", nil, nil, nil, err
		}
		return resolvedRoot, cfg, rt, lock, nil
	}

	resolvedRoot, err := paths.FindWorkspaceRoot(root)
	if err != nil {
		return "", nil, nil, nil, err
	}
	rt := paths.NewRuntime(resolvedRoot)
	if err := rt.EnsureDirs(); err != nil {
		return "", nil, nil, nil, fmt.Errorf("ensure runtime dirs: %w", err)
	}
	if err := rt.CheckSecretsNotTracked(resolvedRoot); err != nil {
		return "", nil, nil, nil, err
	}
	lock, err := paths.AcquireLock(rt.InstanceLock)
	if err != nil {
		return "", nil, nil, nil, err
	}
	logger.Warn("no config file found, running with defaults")
	return resolvedRoot, config.Default(), rt, lock, nil
}

func runBootstrap(logger *slog.Logger, configPath string) int {
	root, _, rt, lock, err := loadWorkspace(logger, configPath)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		return 1
	}
	defer lock.Release()
	logger.Info("workspace bootstrapped", "root", root, "runtime", rt.Root)
	fmt.Printf("workspace ready at %s\n", root)
	return 0
}

func runDoctor(logger *slog.Logger, configPath string) int {
	_, cfg, rt, lock, err := loadWorkspace(logger, configPath)
	if err != nil {
		logger.Error("doctor: workspace failed to load", "error", err)
		return 1
	}
	defer lock.Release()
	rc, err := newRuntimeCore(logger, rt, cfg)
	if err != nil {
		logger.Error("doctor: core init failed", "error", err)
		return 1
	}
	report := rc.runDoctorChecks(context.Background())
	fmt.Println(report)
	if rc.unhealthy {
		return 1
	}
	return 0
}

func runHi(logger *slog.Logger, configPath string, args []string) int {
	fs := flag.NewFlagSet("hi", flag.ContinueOnError)
	to := fs.String("to", "", "recipient address or ENS name")
	message := fs.String("message", "hi from takobot", "message text")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *to == "" {
		fmt.Fprintln(os.Stderr, "usage: tako hi --to <addr|ens> [--message <text>]")
		return 2
	}

	_, cfg, rt, lock, err := loadWorkspace(logger, configPath)
	if err != nil {
		logger.Error("hi failed", "error", err)
		return 1
	}
	defer lock.Release()
	rc, err := newRuntimeCore(logger, rt, cfg)
	if err != nil {
		logger.Error("hi failed", "error", err)
		return 1
	}
	if rc.transport == nil {
		fmt.Fprintln(os.Stderr, "no transport configured; set TAKO_MQTT_BROKER_URL")
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rc.transport.Start(ctx); err != nil {
		logger.Error("hi: transport start failed", "error", err)
		return 1
	}
	defer rc.transport.Close(ctx)
	if err := rc.transport.Send(ctx, "tako/outbound/"+*to, []byte(*message)); err != nil {
		logger.Error("hi: send failed", "error", err)
		return 1
	}
	fmt.Printf("sent to %s: %s\n", *to, *message)
	return 0
}

// runCore boots the full runtime and drives the foreground
// operator loop described below.
func runCore(logger *slog.Logger, configPath string) int {
	_, cfg, rt, lock, err := loadWorkspace(logger, configPath)
	if err != nil {
		logger.Error("startup blocked", "error", err)
		return 1
	}
	defer lock.Release()

	rc, err := newRuntimeCore(logger, rt, cfg)
	if err != nil {
		logger.Error("startup blocked", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	rc.heartbeat.Start(ctx)
	defer rc.heartbeat.Stop()
	rc.runCognitionLoops(ctx)
	go rc.runInputWorker(ctx)

	if rc.transport != nil {
		if err := rc.transport.Start(ctx); err != nil {
			logger.Warn("transport failed to start; continuing without it", "error", err)
		} else {
			defer rc.transport.Close(context.Background())
			go rc.pumpInbound(ctx)
		}
	}

	fmt.Println(buildinfo.String())
	fmt.Println(`type "help" for the command list, "quit" to exit`)

	interrupted := false
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		reply, quit := rc.submitTurn(ctx, line)
		fmt.Println(reply)
		if quit {
			cancel()
			break
		}
	}
	if ctx.Err() != nil {
		interrupted = true
	}

	if interrupted {
		return 130
	}
	return 0
}
