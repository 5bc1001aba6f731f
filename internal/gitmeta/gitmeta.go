// Package gitmeta reads commit metadata for report stamping. It is strictly
// best-effort: a missing git binary, a non-repository directory, or any
// other failure yields a nil Info and no error.
package gitmeta

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Info is the most recent commit of the repository containing dir.
type Info struct {
	Commit string    `json:"commit"`
	Date   time.Time `json:"date"`
}

// Head returns the last commit hash and date for dir, or nil when the
// information is unavailable.
func Head(ctx context.Context, dir string) *Info {
	out, err := runGit(ctx, dir, "log", "-1", "--format=%H %cI")
	if err != nil {
		return nil
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return nil
	}
	date, err := time.Parse(time.RFC3339, fields[1])
	if err != nil {
		return nil
	}
	return &Info{Commit: fields[0], Date: date}
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
