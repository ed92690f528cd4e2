// Copyright (c) 2026 Mesh Intelligence. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

// Package main provides build targets for vetlab using Mage.
//
// Usage:
//
//	mage build       Compile the vetlab binary to bin/
//	mage test:all    Run every test
//	mage test:unit   Run tests without the race detector, skipping slow packages
//	mage test:cover  Run every test and write coverage.out
//	mage vet         Run go vet
//	mage lint        Run go vet and golangci-lint
//	mage clean       Remove build artifacts
//	mage install     Install vetlab to GOPATH/bin
//	mage stats       Print Go line counts as JSON
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "vetlab"
	binaryDir  = "bin"
	cmdDir     = "./cmd/vetlab"
	cliPkg     = "github.com/mesh-intelligence/vetlab/internal/cli"
)

// ldflags stamps the version and commit into the CLI.
func ldflags() string {
	version := os.Getenv("VETLAB_VERSION")
	if version == "" {
		version = "dev"
	}
	commit, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil || strings.TrimSpace(commit) == "" {
		commit = "none"
	}
	return fmt.Sprintf("-X %s.Version=%s -X %s.Commit=%s", cliPkg, version, cliPkg, commit)
}

// Build compiles the vetlab binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-ldflags", ldflags(), "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	if err := os.RemoveAll(coverFile); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
