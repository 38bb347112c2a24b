package localfs

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// gitClient shells out to git. Callers hold the directory lock.
type gitClient struct {
	dir    string
	logger *slog.Logger
}

func (g *gitClient) run(args ...string) (string, error) {
	g.logger.Debug("executing git", "args", args, "dir", g.dir)

	full := append([]string{"-c", "user.name=aide", "-c", "user.email=aide@localhost"}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = g.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s failed: %w\nOutput: %s", args[0], err, out)
	}
	return strings.TrimSpace(string(out)), nil
}

func (g *gitClient) init() error {
	if _, err := os.Stat(filepath.Join(g.dir, ".git")); err == nil {
		return nil
	}
	if _, err := g.run("init"); err != nil {
		return err
	}
	// Keep the lock and temp files out of the history.
	ignore := lockName + "\n" + tempFilePrefix + "*\n"
	return os.WriteFile(filepath.Join(g.dir, ".gitignore"), []byte(ignore), 0o644)
}

func (g *gitClient) commit(path, message string) error {
	if _, err := g.run("add", "--", path); err != nil {
		return err
	}
	_, err := g.run("commit", "--allow-empty", "-m", message, "--", path)
	return err
}

// log returns the commit subjects touching path, newest first.
func (g *gitClient) log(path string) ([]string, error) {
	out, err := g.run("log", "--format=%s", "--", path)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
