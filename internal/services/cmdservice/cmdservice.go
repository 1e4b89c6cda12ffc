// Package cmdservice implements the Command capability service: run and
// list_whitelisted, including dry-run effect prediction and best-effort
// process-group cancellation.
package cmdservice

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/silexa/mcp-broker/internal/audit"
	"github.com/silexa/mcp-broker/internal/brokererr"
	"github.com/silexa/mcp-broker/internal/config"
	"github.com/silexa/mcp-broker/internal/policy"
)

const serviceName = "command"

const defaultTimeout = 300 * time.Second

// Service implements the Command capability service.
type Service struct {
	cfg    *config.Store
	audit  *audit.Logger
	policy *policy.Engine
}

// New builds a Command service bound to its collaborators.
func New(cfg *config.Store, auditLogger *audit.Logger, policyEngine *policy.Engine) *Service {
	return &Service{cfg: cfg, audit: auditLogger, policy: policyEngine}
}

func (s *Service) logEntry(ctx context.Context, entry audit.Entry) {
	if _, err := s.audit.Log(ctx, entry); err != nil {
		fmt.Fprintf(os.Stderr, "audit log failed: %v\n", err)
	}
}

// RunInput is the input to Run.
type RunInput struct {
	Command       string
	Args          []string
	Cwd           string
	TimeoutSecs   int64
	ApprovalToken string
	DryRun        bool
}

// RunResult is the outcome of Run, covering both the dry-run and execution
// paths.
type RunResult struct {
	DryRun           bool
	CommandLine      string
	PredictedEffects []string
	ExitCode         int
	Stdout           string
	Stderr           string
	Success          bool
}

// Run executes (or, if DryRun, merely previews) a whitelisted command.
// Dry-run bypasses approval entirely — callers must be able to preview
// without consent — but a Deny still fails even in dry-run.
func (s *Service) Run(ctx context.Context, in RunInput) (RunResult, error) {
	decision := s.policy.CheckCommand(in.Command, in.Args)
	if decision.Kind == policy.Deny {
		return RunResult{}, brokererr.PolicyViolation(serviceName, "run", "%s", decision.Reason)
	}
	if decision.Kind == policy.RequireApproval && !in.DryRun && in.ApprovalToken == "" {
		return RunResult{}, brokererr.ApprovalRequired(serviceName, "run",
			"approval required: %s. Use dry_run=true to preview, or provide approval_token.", decision.Reason)
	}

	commandLine := in.Command
	if len(in.Args) > 0 {
		commandLine = in.Command + " " + strings.Join(in.Args, " ")
	}

	if in.DryRun {
		effects := predictEffects(in.Command, in.Args, in.Cwd)
		entry := audit.NewEntry(serviceName, "dry_run")
		entry.Details = fmt.Sprintf("dry-run: %s", commandLine)
		entry.Result = audit.ResultSimulated
		s.logEntry(ctx, entry)
		return RunResult{
			DryRun:           true,
			CommandLine:      commandLine,
			PredictedEffects: effects,
			Success:          true,
		}, nil
	}

	if in.ApprovalToken != "" && !s.policy.ValidateApproval(in.ApprovalToken) {
		return RunResult{}, brokererr.PolicyViolation(serviceName, "run", "invalid approval token")
	}

	timeout := defaultTimeout
	if in.TimeoutSecs > 0 {
		timeout = time.Duration(in.TimeoutSecs) * time.Second
	}

	output, err := execute(ctx, in.Command, in.Args, in.Cwd, timeout)
	if err != nil {
		return RunResult{}, brokererr.CommandError(serviceName, "run", err)
	}

	entry := audit.NewEntry(serviceName, "execute")
	entry.Details = fmt.Sprintf("executed: %s (exit: %d)", commandLine, output.exitCode)
	entry.UserApproved = in.ApprovalToken != ""
	entry.ApprovalToken = in.ApprovalToken
	if output.success {
		entry.Result = audit.ResultSuccess
	} else {
		entry.Result = audit.ResultFailed
	}
	s.logEntry(ctx, entry)

	return RunResult{
		DryRun:      false,
		CommandLine: commandLine,
		ExitCode:    output.exitCode,
		Stdout:      output.stdout,
		Stderr:      output.stderr,
		Success:     output.success,
	}, nil
}

// ListWhitelisted returns the configured command whitelist.
func (s *Service) ListWhitelisted() []string {
	return s.cfg.Snapshot().WhitelistedCommands
}

type commandOutput struct {
	exitCode int
	stdout   string
	stderr   string
	success  bool
}

// execute runs command with args under a derived deadline, honouring
// timeout by killing the child's process group on Unix platforms — the
// process group is terminated on a best-effort basis if the platform
// exposes groups.
func execute(ctx context.Context, command string, args []string, cwd string, timeout time.Duration) (commandOutput, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command, args...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return commandOutput{}, fmt.Errorf("failed to execute command: %w", err)
		}
	}

	return commandOutput{
		exitCode: exitCode,
		stdout:   stdout.String(),
		stderr:   stderr.String(),
		success:  exitCode == 0,
	}, nil
}

// predictEffects implements the fixed effect-prediction table: the dry-run
// contract tests check for these substrings.
func predictEffects(command string, args []string, cwd string) []string {
	var effects []string
	first := ""
	if len(args) > 0 {
		first = args[0]
	}

	switch command {
	case "npm", "pnpm", "yarn":
		switch first {
		case "install":
			effects = append(effects,
				"Will create/update node_modules folder",
				"May update lockfile (package-lock.json or yarn.lock)",
			)
		case "run":
			script := ""
			if len(args) > 1 {
				script = args[1]
			}
			effects = append(effects, fmt.Sprintf("Will run npm script: %s", script))
		}
	case "git":
		switch first {
		case "commit":
			effects = append(effects, "Will create a new git commit")
		case "push":
			effects = append(effects, "Will push commits to remote repository")
		case "pull":
			effects = append(effects, "Will fetch and merge changes from remote")
		case "checkout":
			effects = append(effects, "Will switch branches or restore files")
		}
	case "cargo":
		if first == "build" {
			effects = append(effects,
				"Will compile Rust project",
				"Will create/update target directory",
			)
		}
	case "docker":
		switch first {
		case "build":
			effects = append(effects, "Will build a Docker image")
		case "run":
			effects = append(effects, "Will start a Docker container")
		case "stop":
			effects = append(effects, "Will stop running container(s)")
		}
	default:
		commandLine := command
		if len(args) > 0 {
			commandLine = command + " " + strings.Join(args, " ")
		}
		effects = append(effects, fmt.Sprintf("Will execute: %s", commandLine))
	}

	if cwd != "" {
		effects = append(effects, fmt.Sprintf("Working directory: %s", cwd))
	}

	return effects
}
