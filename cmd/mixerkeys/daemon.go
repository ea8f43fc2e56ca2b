package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// daemonize re-executes the current binary detached from the terminal,
// dropping the -background flag so the child runs in the foreground of its
// own session. The parent returns immediately; callers exit afterwards.
func daemonize() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	args := make([]string, 0, len(os.Args)-1)
	for _, a := range os.Args[1:] {
		if a == "-background" || a == "--background" {
			continue
		}
		args = append(args, a)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(exe, args...)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start background process: %w", err)
	}
	return nil
}
