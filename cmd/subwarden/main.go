package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mkoppen/subwarden/internal/approval"
	"github.com/mkoppen/subwarden/internal/config"
	"github.com/mkoppen/subwarden/internal/isolation"
	"github.com/mkoppen/subwarden/internal/logger"
)

const usage = `usage: subwarden <command> [flags]

commands:
  exec    run one shell command under the configured sandbox policy
  doctor  report isolation availability
`

func main() {
	if len(os.Args) > 1 && os.Args[1] == "__shim" {
		// Hidden re-exec mode: this binary acts as its own isolation
		// wrapper when no external one is configured.
		if err := isolation.RunShim(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "exec":
		err = runExec(os.Args[2:])
	case "doctor":
		err = runDoctor(os.Args[2:])
	case "--version", "version":
		fmt.Println(isolation.ShimVersion)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		var failed *isolation.ExecutionFailedError
		if errors.As(err, &failed) {
			os.Exit(failed.ExitCode)
		}
		fmt.Fprintln(os.Stderr, "subwarden:", err)
		os.Exit(1)
	}
}

func loadSettings(workspace string) (*config.Settings, error) {
	settings, err := config.Load(workspace, nil)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.ParseLevel(settings.Logging.Level), settings.Logging.Path); err != nil {
		return nil, err
	}
	return settings, nil
}

// wrapperArgv returns the isolation wrapper invocation prefix: the
// configured external wrapper, or this binary's own shim mode.
func wrapperArgv(settings *config.Settings) ([]string, error) {
	if settings.Sandbox.WrapperPath != "" {
		return []string{settings.Sandbox.WrapperPath}, nil
	}
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate own executable: %w", err)
	}
	return []string{self, "__shim"}, nil
}

// stdinConfirm prompts on the terminal, or nil when stdin is not a terminal
// so the broker applies its headless-denial contract.
func stdinConfirm() approval.ConfirmFunc {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return nil
	}
	reader := bufio.NewReader(os.Stdin)
	return func(ctx context.Context, title, message string) (bool, error) {
		fmt.Fprintf(os.Stderr, "\n== %s ==\n%s\n[y/N] ", title, message)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}

func runExec(args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	workspace := fs.String("workspace", "", "workspace root (default: current directory)")
	escalate := fs.Bool("escalate", false, "request to run without the sandbox (on-request policy)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("exec: no command given")
	}
	command := strings.Join(fs.Args(), " ")

	if *workspace == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		*workspace = cwd
	}

	settings, err := loadSettings(*workspace)
	if err != nil {
		return err
	}
	pol, err := settings.RootPolicy()
	if err != nil {
		return err
	}
	wrapper, err := wrapperArgv(settings)
	if err != nil {
		return err
	}
	home, err := isolation.PrepareHome("")
	if err != nil {
		return err
	}

	broker := approval.NewBroker(stdinConfirm())
	defer broker.Close()

	executor := isolation.NewExecutor(wrapper, broker, isolation.Paths{
		Workspace: *workspace,
		Home:      home,
		Temp:      os.TempDir(),
		ProxyAddr: settings.Sandbox.ProxyAddr,
	})

	res, err := executor.Run(context.Background(), command, pol, *escalate)
	if res != nil {
		fmt.Fprint(os.Stdout, res.Stdout)
		fmt.Fprint(os.Stderr, res.Stderr)
		if res.Truncated {
			fmt.Fprintln(os.Stderr, "subwarden: output truncated")
		}
	}
	return err
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	workspace := fs.String("workspace", "", "workspace root (default: current directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *workspace == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		*workspace = cwd
	}

	settings, err := loadSettings(*workspace)
	if err != nil {
		return err
	}
	wrapper, err := wrapperArgv(settings)
	if err != nil {
		return err
	}

	fmt.Printf("isolation wrapper: %s\n", strings.Join(wrapper, " "))
	if err := isolation.NewProber(wrapper).Check(context.Background()); err != nil {
		fmt.Printf("status: UNAVAILABLE\n  %v\n", err)
		return nil
	}
	fmt.Println("status: ok")

	if pol, err := settings.RootPolicy(); err != nil {
		fmt.Printf("root policy: INVALID\n  %v\n", err)
	} else {
		fmt.Printf("root policy: fs=%s net=%s approval=%s timeout=%ds\n",
			pol.Filesystem, pol.Network, pol.Approval, pol.ApprovalTimeout)
	}
	return nil
}
