// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package engine

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcess puts the CLI in its own process group so an abort
// reaches the tools it spawned too.
func configureProcess(command *exec.Cmd) {
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func interruptProcess(command *exec.Cmd) error {
	return unix.Kill(-command.Process.Pid, unix.SIGINT)
}

func killProcess(command *exec.Cmd) error {
	return unix.Kill(-command.Process.Pid, unix.SIGKILL)
}
