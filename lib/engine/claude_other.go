// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package engine

import "os/exec"

func configureProcess(*exec.Cmd) {}

// Without process groups or SIGINT there is no graceful path.
func interruptProcess(command *exec.Cmd) error {
	return command.Process.Kill()
}

func killProcess(command *exec.Cmd) error {
	return command.Process.Kill()
}
