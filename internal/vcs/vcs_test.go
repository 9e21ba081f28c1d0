// Copyright 2024 The brewer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// newRemote creates a local repository with one commit tagged v1 and a
// second commit on top of it.
func newRemote(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-c", "user.name=brewer", "-c", "user.email=brewer@example.com"}, args...)...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
		}
	}
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	git("init", "--quiet")
	write("NEWS", "version 1\n")
	git("add", "NEWS")
	git("commit", "--quiet", "-m", "first")
	git("tag", "v1")
	write("NEWS", "version 2\n")
	git("commit", "--quiet", "-am", "second")
	return "file://" + dir
}

func readNews(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "NEWS"))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestGitVCS_Sync(t *testing.T) {
	remote := newRemote(t)
	vcs := NewGitVCS(WithKeep(".brewer.lock"))
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "src")

	if err := vcs.Sync(ctx, remote, "", dir); err != nil {
		t.Fatalf("Sync (clone) failed: %v", err)
	}
	if got := readNews(t, dir); got != "version 2\n" {
		t.Errorf("NEWS = %q after syncing HEAD", got)
	}
	head, err := vcs.Revision(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(head) != 40 {
		t.Errorf("expected 40-char hash, got %q", head)
	}

	// An earlier build left a patched file, a build output and a lock.
	if err := os.WriteFile(filepath.Join(dir, "NEWS"), []byte("patched\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"config.log", ".brewer.lock"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := vcs.Sync(ctx, remote, "v1", dir); err != nil {
		t.Fatalf("Sync (update) failed: %v", err)
	}
	if got := readNews(t, dir); got != "version 1\n" {
		t.Errorf("NEWS = %q after syncing v1", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.log")); !os.IsNotExist(err) {
		t.Errorf("untracked build output survived the sync: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".brewer.lock")); err != nil {
		t.Errorf("kept file was removed: %v", err)
	}
	rev, err := vcs.Revision(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if rev == head {
		t.Errorf("HEAD should have changed after switching to v1, got %s both times", rev)
	}
}

func TestGitVCS_SyncBadRemote(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	vcs := NewGitVCS()
	err := vcs.Sync(context.Background(), "file://"+filepath.Join(t.TempDir(), "missing"), "", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "fetch") {
		t.Errorf("Sync() error = %v, want a fetch error", err)
	}
}
