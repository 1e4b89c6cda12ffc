// Package mcptools registers every capability service's operations as MCP
// tools on an *mcp.Server, the same mcp.AddTool-per-operation shape this
// codebase uses for its own capability-gated MCP server.
package mcptools

import (
	"context"
	"encoding/base64"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/silexa/mcp-broker/internal/services/cmdservice"
	"github.com/silexa/mcp-broker/internal/services/fileservice"
	"github.com/silexa/mcp-broker/internal/services/gitservice"
	"github.com/silexa/mcp-broker/internal/services/snapshotservice"
)

// Services bundles the four capability services the broker registers tools
// for.
type Services struct {
	File     *fileservice.Service
	Command  *cmdservice.Service
	Git      *gitservice.Service
	Snapshot *snapshotservice.Service
}

// Register adds one MCP tool per capability operation to server.
func Register(server *mcp.Server, svc Services) {
	registerFileTools(server, svc.File)
	registerCommandTools(server, svc.Command)
	registerGitTools(server, svc.Git)
	registerSnapshotTools(server, svc.Snapshot)
}

// --- file.* ---

type fileReadInput struct {
	Path string `json:"path"`
}

type fileReadOutput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	SHA256  string `json:"sha256"`
	Size    int64  `json:"size"`
}

type fileCreateInput struct {
	Path          string `json:"path"`
	Content       string `json:"content"`
	ApprovalToken string `json:"approval_token,omitempty"`
	DryRun        bool   `json:"dry_run,omitempty"`
}

type fileCreateOutput struct {
	Success    bool   `json:"success"`
	Path       string `json:"path"`
	SHA256     string `json:"sha256"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

type fileAppendInput struct {
	Path          string `json:"path"`
	Content       string `json:"content"`
	ApprovalToken string `json:"approval_token,omitempty"`
	DryRun        bool   `json:"dry_run,omitempty"`
}

type fileAppendOutput struct {
	Success    bool   `json:"success"`
	NewSize    int64  `json:"new_size"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

type fileMoveInput struct {
	FromPath      string `json:"from_path"`
	ToPath        string `json:"to_path"`
	ApprovalToken string `json:"approval_token,omitempty"`
	DryRun        bool   `json:"dry_run,omitempty"`
}

type fileMoveOutput struct {
	Success    bool   `json:"success"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

type fileCopyInput struct {
	FromPath      string `json:"from_path"`
	ToPath        string `json:"to_path"`
	ApprovalToken string `json:"approval_token,omitempty"`
	DryRun        bool   `json:"dry_run,omitempty"`
}

type fileCopyOutput struct {
	Success bool `json:"success"`
}

type fileListDirInput struct {
	Path string `json:"path"`
}

type fileDirEntry struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	IsDir  bool   `json:"is_dir"`
	IsFile bool   `json:"is_file"`
	Size   int64  `json:"size"`
}

type fileListDirOutput struct {
	Entries []fileDirEntry `json:"entries"`
}

type fileStatInput struct {
	Path string `json:"path"`
}

type fileStatOutput struct {
	Exists     bool  `json:"exists"`
	IsFile     bool  `json:"is_file"`
	IsDir      bool  `json:"is_dir"`
	Size       int64 `json:"size"`
	ModifiedAt int64 `json:"modified_at"`
	CreatedAt  int64 `json:"created_at"`
}

func registerFileTools(server *mcp.Server, svc *fileservice.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "file.read",
		Description: "Read a file's contents, returning its bytes, SHA-256 hash, and size. Refuses files larger than the configured maximum.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in fileReadInput) (*mcp.CallToolResult, fileReadOutput, error) {
		res, err := svc.Read(ctx, in.Path)
		if err != nil {
			return nil, fileReadOutput{}, err
		}
		return nil, fileReadOutput{
			Path:    res.Path,
			Content: base64.StdEncoding.EncodeToString(res.Content),
			SHA256:  res.SHA256,
			Size:    res.Size,
		}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "file.create",
		Description: "Create or overwrite a file. Writes to a path outside an allowed root are denied; writes within an allowed root require approval unless dry_run is set.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in fileCreateInput) (*mcp.CallToolResult, fileCreateOutput, error) {
		content, decodeErr := decodeContent(in.Content)
		if decodeErr != nil {
			content = []byte(in.Content)
		}
		res, err := svc.Create(ctx, in.Path, content, in.ApprovalToken, in.DryRun)
		if err != nil {
			return nil, fileCreateOutput{}, err
		}
		return nil, fileCreateOutput{Success: true, Path: res.Path, SHA256: res.SHA256, SnapshotID: res.SnapshotID}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "file.append",
		Description: "Append content to a file, creating it if absent.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in fileAppendInput) (*mcp.CallToolResult, fileAppendOutput, error) {
		content, decodeErr := decodeContent(in.Content)
		if decodeErr != nil {
			content = []byte(in.Content)
		}
		res, err := svc.Append(ctx, in.Path, content, in.ApprovalToken, in.DryRun)
		if err != nil {
			return nil, fileAppendOutput{}, err
		}
		return nil, fileAppendOutput{Success: true, NewSize: res.NewSize, SnapshotID: res.SnapshotID}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "file.move",
		Description: "Move (rename) a file from one path to another.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in fileMoveInput) (*mcp.CallToolResult, fileMoveOutput, error) {
		snapshotID, err := svc.Move(ctx, in.FromPath, in.ToPath, in.ApprovalToken, in.DryRun)
		if err != nil {
			return nil, fileMoveOutput{}, err
		}
		return nil, fileMoveOutput{Success: true, SnapshotID: snapshotID}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "file.copy",
		Description: "Copy a file from one path to another.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in fileCopyInput) (*mcp.CallToolResult, fileCopyOutput, error) {
		if err := svc.Copy(ctx, in.FromPath, in.ToPath, in.ApprovalToken, in.DryRun); err != nil {
			return nil, fileCopyOutput{}, err
		}
		return nil, fileCopyOutput{Success: true}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "file.list_dir",
		Description: "List the immediate children of a directory.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in fileListDirInput) (*mcp.CallToolResult, fileListDirOutput, error) {
		entries, err := svc.ListDir(in.Path)
		if err != nil {
			return nil, fileListDirOutput{}, err
		}
		out := make([]fileDirEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, fileDirEntry{Name: e.Name, Path: e.Path, IsDir: e.IsDir, IsFile: e.IsFile, Size: e.Size})
		}
		return nil, fileListDirOutput{Entries: out}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "file.stat",
		Description: "Report metadata for a path: existence, kind, size, and timestamps.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in fileStatInput) (*mcp.CallToolResult, fileStatOutput, error) {
		res, err := svc.Stat(in.Path)
		if err != nil {
			return nil, fileStatOutput{}, err
		}
		return nil, fileStatOutput{
			Exists: res.Exists, IsFile: res.IsFile, IsDir: res.IsDir,
			Size: res.Size, ModifiedAt: res.ModifiedAt, CreatedAt: res.CreatedAt,
		}, nil
	})
}

func decodeContent(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// --- command.* ---

type commandRunInput struct {
	Command       string   `json:"command"`
	Args          []string `json:"args,omitempty"`
	Cwd           string   `json:"cwd,omitempty"`
	TimeoutSecs   int64    `json:"timeout_secs,omitempty"`
	ApprovalToken string   `json:"approval_token,omitempty"`
	DryRun        bool     `json:"dry_run,omitempty"`
}

type commandRunOutput struct {
	DryRun           bool     `json:"dry_run"`
	CommandLine      string   `json:"command_line"`
	PredictedEffects []string `json:"predicted_effects,omitempty"`
	ExitCode         int      `json:"exit_code"`
	Stdout           string   `json:"stdout,omitempty"`
	Stderr           string   `json:"stderr,omitempty"`
	Success          bool     `json:"success"`
}

type commandListWhitelistedInput struct{}

type commandListWhitelistedOutput struct {
	Commands []string `json:"commands"`
}

func registerCommandTools(server *mcp.Server, svc *cmdservice.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "command.run",
		Description: "Run a whitelisted shell command. Set dry_run to preview predicted effects without executing or requiring approval.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in commandRunInput) (*mcp.CallToolResult, commandRunOutput, error) {
		res, err := svc.Run(ctx, cmdservice.RunInput{
			Command: in.Command, Args: in.Args, Cwd: in.Cwd,
			TimeoutSecs: in.TimeoutSecs, ApprovalToken: in.ApprovalToken, DryRun: in.DryRun,
		})
		if err != nil {
			return nil, commandRunOutput{}, err
		}
		return nil, commandRunOutput{
			DryRun: res.DryRun, CommandLine: res.CommandLine, PredictedEffects: res.PredictedEffects,
			ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr, Success: res.Success,
		}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "command.list_whitelisted",
		Description: "List the commands the broker is configured to allow executing.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ commandListWhitelistedInput) (*mcp.CallToolResult, commandListWhitelistedOutput, error) {
		return nil, commandListWhitelistedOutput{Commands: svc.ListWhitelisted()}, nil
	})
}

// --- git.* ---

type gitStatusInput struct {
	RepoPath string `json:"repo_path"`
}

type gitStatusOutput struct {
	Branch         string   `json:"branch"`
	ModifiedFiles  []string `json:"modified_files,omitempty"`
	StagedFiles    []string `json:"staged_files,omitempty"`
	UntrackedFiles []string `json:"untracked_files,omitempty"`
}

type gitCommitInput struct {
	RepoPath      string   `json:"repo_path"`
	Files         []string `json:"files"`
	Message       string   `json:"message"`
	ApprovalToken string   `json:"approval_token,omitempty"`
}

type gitCommitOutput struct {
	Success     bool   `json:"success"`
	CommitHash  string `json:"commit_hash"`
	DiffSummary string `json:"diff_summary"`
}

type gitCreateBranchInput struct {
	RepoPath   string `json:"repo_path"`
	BranchName string `json:"branch_name"`
}

type gitCreateBranchOutput struct {
	Success    bool   `json:"success"`
	BranchName string `json:"branch_name"`
}

type gitDiffInput struct {
	RepoPath string `json:"repo_path"`
	Staged   bool   `json:"staged,omitempty"`
}

type gitDiffOutput struct {
	Diff string `json:"diff"`
}

type gitLogInput struct {
	RepoPath string `json:"repo_path"`
	Limit    int    `json:"limit,omitempty"`
}

type gitCommitSummary struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Subject string `json:"subject"`
	Time    string `json:"time"`
}

type gitLogOutput struct {
	Commits []gitCommitSummary `json:"commits"`
}

func registerGitTools(server *mcp.Server, svc *gitservice.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "git.status",
		Description: "Report the current branch and classify the working tree into modified, staged, and untracked files.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in gitStatusInput) (*mcp.CallToolResult, gitStatusOutput, error) {
		res, err := svc.Status(ctx, in.RepoPath)
		if err != nil {
			return nil, gitStatusOutput{}, err
		}
		return nil, gitStatusOutput{
			Branch: res.Branch, ModifiedFiles: res.ModifiedFiles,
			StagedFiles: res.StagedFiles, UntrackedFiles: res.UntrackedFiles,
		}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "git.commit",
		Description: "Stage the listed files and create a commit under the broker's fixed identity.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in gitCommitInput) (*mcp.CallToolResult, gitCommitOutput, error) {
		res, err := svc.Commit(ctx, in.RepoPath, in.Files, in.Message, in.ApprovalToken)
		if err != nil {
			return nil, gitCommitOutput{}, err
		}
		return nil, gitCommitOutput{Success: true, CommitHash: res.CommitHash, DiffSummary: res.DiffSummary}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "git.create_branch",
		Description: "Create a branch pointing at the current HEAD without moving HEAD.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in gitCreateBranchInput) (*mcp.CallToolResult, gitCreateBranchOutput, error) {
		if err := svc.CreateBranch(ctx, in.RepoPath, in.BranchName); err != nil {
			return nil, gitCreateBranchOutput{}, err
		}
		return nil, gitCreateBranchOutput{Success: true, BranchName: in.BranchName}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "git.diff",
		Description: "Return a unified diff of the working tree against the index, or of the index against HEAD if staged.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in gitDiffInput) (*mcp.CallToolResult, gitDiffOutput, error) {
		diff, err := svc.Diff(ctx, in.RepoPath, in.Staged)
		if err != nil {
			return nil, gitDiffOutput{}, err
		}
		return nil, gitDiffOutput{Diff: diff}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "git.log",
		Description: "Return the most recent commits as hash/author/subject/time summaries.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in gitLogInput) (*mcp.CallToolResult, gitLogOutput, error) {
		commits, err := svc.Log(ctx, in.RepoPath, in.Limit)
		if err != nil {
			return nil, gitLogOutput{}, err
		}
		out := make([]gitCommitSummary, 0, len(commits))
		for _, c := range commits {
			out = append(out, gitCommitSummary{Hash: c.Hash, Author: c.Author, Subject: c.Subject, Time: c.Time})
		}
		return nil, gitLogOutput{Commits: out}, nil
	})
}

// --- snapshot.* ---

type snapshotCreateInput struct {
	Paths []string `json:"paths"`
	Label string   `json:"label"`
}

type snapshotCreateOutput struct {
	SnapshotID string `json:"snapshot_id"`
	CreatedAt  string `json:"created_at"`
}

type snapshotRestoreInput struct {
	SnapshotID  string   `json:"snapshot_id"`
	TargetPaths []string `json:"target_paths,omitempty"`
}

type snapshotRestoreOutput struct {
	Success       bool     `json:"success"`
	RestoredPaths []string `json:"restored_paths"`
}

type snapshotListInput struct{}

type snapshotInfo struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	CreatedAt string `json:"created_at"`
	FileCount int    `json:"file_count"`
}

type snapshotListOutput struct {
	Snapshots []snapshotInfo `json:"snapshots"`
}

type snapshotGetInput struct {
	SnapshotID string `json:"snapshot_id"`
}

type snapshotGetOutput struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	CreatedAt string   `json:"created_at"`
	Paths     []string `json:"paths"`
	FileCount int      `json:"file_count"`
}

type snapshotDeleteInput struct {
	SnapshotID string `json:"snapshot_id"`
}

type snapshotDeleteOutput struct {
	Success bool `json:"success"`
}

func registerSnapshotTools(server *mcp.Server, svc *snapshotservice.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "snapshot.create",
		Description: "Capture the given files or directories into a new labelled snapshot.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in snapshotCreateInput) (*mcp.CallToolResult, snapshotCreateOutput, error) {
		snap, err := svc.Create(ctx, in.Paths, in.Label)
		if err != nil {
			return nil, snapshotCreateOutput{}, err
		}
		return nil, snapshotCreateOutput{SnapshotID: snap.ID, CreatedAt: snap.CreatedAt.Format("2006-01-02T15:04:05Z07:00")}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "snapshot.restore",
		Description: "Write back the files captured in a snapshot, optionally filtered to a set of target path prefixes.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in snapshotRestoreInput) (*mcp.CallToolResult, snapshotRestoreOutput, error) {
		restored, err := svc.Restore(ctx, in.SnapshotID, in.TargetPaths)
		if err != nil {
			return nil, snapshotRestoreOutput{}, err
		}
		return nil, snapshotRestoreOutput{Success: true, RestoredPaths: restored}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "snapshot.list",
		Description: "List every known snapshot as a summary (id, label, created_at, file_count).",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ snapshotListInput) (*mcp.CallToolResult, snapshotListOutput, error) {
		list := svc.List()
		out := make([]snapshotInfo, 0, len(list))
		for _, s := range list {
			out = append(out, snapshotInfo{ID: s.ID, Label: s.Label, CreatedAt: s.CreatedAt, FileCount: s.FileCount})
		}
		return nil, snapshotListOutput{Snapshots: out}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "snapshot.get",
		Description: "Return full detail for a single snapshot by id.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in snapshotGetInput) (*mcp.CallToolResult, snapshotGetOutput, error) {
		snap, err := svc.Get(in.SnapshotID)
		if err != nil {
			return nil, snapshotGetOutput{}, err
		}
		return nil, snapshotGetOutput{
			ID: snap.ID, Label: snap.Label,
			CreatedAt: snap.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			Paths:     snap.Paths, FileCount: len(snap.Files),
		}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "snapshot.delete",
		Description: "Delete a snapshot's stored blobs and its index entry. Does not affect audit entries that reference it.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in snapshotDeleteInput) (*mcp.CallToolResult, snapshotDeleteOutput, error) {
		if err := svc.Delete(ctx, in.SnapshotID); err != nil {
			return nil, snapshotDeleteOutput{}, err
		}
		return nil, snapshotDeleteOutput{Success: true}, nil
	})
}
