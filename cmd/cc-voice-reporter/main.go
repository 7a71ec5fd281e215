package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/config"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/daemon"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/history"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/hook"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/logging"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/speech"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}

	switch os.Args[1] {
	case "daemon":
		if err := runDaemon(cfg); err != nil {
			fatal("daemon: %v", err)
		}

	case "hook":
		event := flagValue(os.Args[2:], "--event")
		if err := hook.Handle(cfg, event); err != nil {
			fatal("%v", err)
		}

	case "speak":
		if len(os.Args) < 3 {
			fatal("usage: cc-voice-reporter speak <text>")
		}
		engine := speech.NewEngine(cfg.Speech.Command, cfg.Speech.Args, nil)
		message := strings.Join(os.Args[2:], " ")
		if err := engine.Speak(context.Background(), message); err != nil {
			fatal("speak: %v", err)
		}

	case "history":
		n := 20
		if v := flagValue(os.Args[2:], "-n"); v != "" {
			n, err = strconv.Atoi(v)
			if err != nil || n <= 0 {
				fatal("invalid -n value: %s", v)
			}
		}
		if err := printHistory(cfg, n); err != nil {
			fatal("history: %v", err)
		}

	case "export":
		if len(os.Args) < 3 {
			fatal("usage: cc-voice-reporter export <file.jsonl.zst>")
		}
		if err := exportHistory(cfg, os.Args[2]); err != nil {
			fatal("export: %v", err)
		}

	case "init":
		path, err := config.WriteDefault()
		if err != nil {
			fatal("init: %v", err)
		}
		fmt.Printf("config: %s\n", config.CompressHome(path))

	case "hooks":
		if len(os.Args) < 3 {
			fatal("usage: cc-voice-reporter hooks install|uninstall")
		}
		switch os.Args[2] {
		case "install":
			err = hook.Install()
		case "uninstall":
			err = hook.Uninstall()
		default:
			fatal("unknown hooks subcommand: %s", os.Args[2])
		}
		if err != nil {
			fatal("hooks: %v", err)
		}

	case "version":
		fmt.Printf("cc-voice-reporter v%s\n", version)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

// runDaemon runs until interrupted. The first signal starts a graceful
// shutdown; a second one cuts off in-flight speech.
func runDaemon(cfg config.Config) error {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		<-sigCh
		d.Abort()
	}()

	return d.Run(ctx)
}

func printHistory(cfg config.Config, n int) error {
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	utterances, err := store.Recent(n)
	if err != nil {
		return err
	}
	for _, u := range utterances {
		fmt.Printf("%s  [%s]  %s\n", u.SpokenAt.Local().Format("2006-01-02 15:04:05"), u.Kind, u.Message)
	}
	return nil
}

func exportHistory(cfg config.Config, path string) error {
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := store.Export(f); err != nil {
		return err
	}
	fmt.Printf("exported: %s\n", path)
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `cc-voice-reporter v%s — spoken Claude Code activity reporter

Usage:
  cc-voice-reporter daemon                  Watch transcripts and speak narration
  cc-voice-reporter hook [--event <name>]   Hook mode (reads stdin from Claude Code)
  cc-voice-reporter speak <text>            Speak one message through the engine
  cc-voice-reporter history [-n N]          List recent spoken messages
  cc-voice-reporter export <file.jsonl.zst> Export spoken history
  cc-voice-reporter init                    Write the default config file
  cc-voice-reporter hooks install           Register hooks in ~/.claude/settings.json
  cc-voice-reporter hooks uninstall         Remove registered hooks
  cc-voice-reporter version                 Print version
  cc-voice-reporter help                    Show this help

Hook integration (settings.json):
  {"type": "command", "command": "cc-voice-reporter hook"}

Configuration: ~/.config/cc-voice-reporter/config.toml
`, version)
}

func flagValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "cc-voice-reporter: "+format+"\n", args...)
	os.Exit(1)
}
