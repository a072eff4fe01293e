package paths

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Runtime holds every directory under the workspace's hidden runtime
// directory (.tako/) that the core reads or writes.
type Runtime struct {
	Root          string // <workspace>/.tako
	KeysJSON      string // wallet material; must never be VCS-tracked
	OperatorJSON  string
	LocksDir      string
	LogsDir       string
	TmpDir        string
	StateDir      string
	ConvoDir      string // StateDir/conversations
	DailyDir      string
	XMTPDBDir     string
	InstanceLock  string // LocksDir/tako.lock
	EventsLog     string // StateDir/events.jsonl
	DoseJSON      string // StateDir/dose.json
	InferenceJSON string // StateDir/inference.json
	InferenceSet  string // StateDir/inference-settings.json
	OpenLoopsJSON string // StateDir/open_loops.json
	TalentsDir    string // <workspace>/talents
}

// FindWorkspaceRoot performs best-effort workspace root discovery.
// It prefers a tako.toml sentinel; failing that, a minimal doc set
// (AGENTS.md, SOUL.md, MEMORY.md all present). If neither matches
// anywhere up the tree, it returns start unchanged so the core can
// still run in ad-hoc mode and surface a health-check warning.
func FindWorkspaceRoot(start string) (string, error) {
	probe, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("paths: resolve start dir: %w", err)
	}

	dir := probe
	for {
		if fileExists(filepath.Join(dir, "tako.toml")) {
			return dir, nil
		}
		if fileExists(filepath.Join(dir, "AGENTS.md")) &&
			fileExists(filepath.Join(dir, "SOUL.md")) &&
			fileExists(filepath.Join(dir, "MEMORY.md")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return probe, nil
}

// NewRuntime computes the runtime directory layout under workspaceRoot.
// It does not create any directories; call EnsureDirs for that.
func NewRuntime(workspaceRoot string) *Runtime {
	root := filepath.Join(workspaceRoot, ".tako")
	state := filepath.Join(root, "state")
	locks := filepath.Join(root, "locks")
	return &Runtime{
		Root:          root,
		KeysJSON:      filepath.Join(root, "keys.json"),
		OperatorJSON:  filepath.Join(root, "operator.json"),
		LocksDir:      locks,
		LogsDir:       filepath.Join(root, "logs"),
		TmpDir:        filepath.Join(root, "tmp"),
		StateDir:      state,
		ConvoDir:      filepath.Join(state, "conversations"),
		DailyDir:      filepath.Join(workspaceRoot, "memory", "dailies"),
		XMTPDBDir:     filepath.Join(root, "xmtp-db"),
		InstanceLock:  filepath.Join(locks, "tako.lock"),
		EventsLog:     filepath.Join(state, "events.jsonl"),
		DoseJSON:      filepath.Join(state, "dose.json"),
		InferenceJSON: filepath.Join(state, "inference.json"),
		InferenceSet:  filepath.Join(state, "inference-settings.json"),
		OpenLoopsJSON: filepath.Join(state, "open_loops.json"),
		TalentsDir:    filepath.Join(workspaceRoot, "talents"),
	}
}

// EnsureDirs creates every directory the runtime needs, idempotently.
func (r *Runtime) EnsureDirs() error {
	dirs := []string{r.Root, r.LocksDir, r.LogsDir, r.TmpDir, r.StateDir, r.ConvoDir, r.DailyDir, r.XMTPDBDir, r.TalentsDir}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("paths: create %s: %w", d, err)
		}
	}
	return nil
}

// Resolver builds a prefix resolver over this runtime's well-known
// directories, turning arguments like "state:dose.json" or "daily:"
// into absolute paths.
func (r *Runtime) Resolver(workspaceRoot string) *Resolver {
	return New(map[string]string{
		"ws":    workspaceRoot,
		"state": r.StateDir,
		"logs":  r.LogsDir,
		"daily": r.DailyDir,
	})
}

// CheckSecretsNotTracked refuses to let the process start if keys.json
// is tracked by the workspace's VCS; no other runtime path is checked. It only inspects a checked-in .gitignore for the
// expected exclusion; it does not shell out to git, since the core
// must be able to start in a workspace with no git binary at all.
func (r *Runtime) CheckSecretsNotTracked(workspaceRoot string) error {
	gitDir := filepath.Join(workspaceRoot, ".git")
	if !dirExists(gitDir) {
		return nil // not a git workspace; nothing to check
	}
	tracked, err := isPathTracked(gitDir, r.KeysJSON, workspaceRoot)
	if err != nil {
		return fmt.Errorf("paths: check secrets tracked: %w", err)
	}
	if tracked {
		return fmt.Errorf("paths: %s is tracked by git; add it to .gitignore and untrack it before starting", r.KeysJSON)
	}
	return nil
}

// isPathTracked does a minimal, dependency-free trackedness check. It
// neither reads .git/index nor shells out to git; it only checks
// whether the file exists outside of any ignore pattern recorded in
// the workspace's .gitignore.
func isPathTracked(gitDir, absPath, workspaceRoot string) (bool, error) {
	rel, err := filepath.Rel(workspaceRoot, absPath)
	if err != nil {
		return false, err
	}
	rel = filepath.ToSlash(rel)

	ignoreFile := filepath.Join(workspaceRoot, ".gitignore")
	f, err := os.Open(ignoreFile)
	if err != nil {
		if os.IsNotExist(err) {
			// No .gitignore at all: the secret path has no documented
			// exclusion, so treat it as at risk of being tracked.
			return fileExists(absPath), nil
		}
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "/")
		if line == rel || line == filepath.Base(rel) || strings.HasPrefix(rel, strings.TrimSuffix(line, "/")+"/") {
			return false, nil // explicitly ignored
		}
	}
	return fileExists(absPath), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
