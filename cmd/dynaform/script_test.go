package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestMain builds the dynaform binary once and puts it on PATH so the
// testdata/*.txt scripts can invoke it with a plain "exec dynaform ...",
// the same build-then-script pattern cmd/go's own script tests use for
// the "go" binary under test.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "dynaform-script-test")
	if err != nil {
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	bin := filepath.Join(dir, "dynaform")
	build := exec.Command("go", "build", "-o", bin, ".")
	build.Stdout, build.Stderr = os.Stdout, os.Stderr
	if err := build.Run(); err != nil {
		os.Exit(1)
	}

	os.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	os.Exit(m.Run())
}

// TestScripts drives every testdata/*.txt script against the built binary
// (SPEC_FULL.md §9's rsc.io/script CLI-level test harness).
func TestScripts(t *testing.T) {
	engine := &script.Engine{
		Cmds:  script.DefaultCmds(),
		Conds: script.DefaultConds(),
	}
	scripttest.Test(t, context.Background(), engine, os.Environ(), "testdata/*.txt")
}
