//go:build !unix

package grader

import "os/exec"

func setProcessGroup(*exec.Cmd) {}
