package git

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const hardenedSSHOptions = "-o StrictHostKeyChecking=no -o BatchMode=yes -o UserKnownHostsFile=/dev/null"

// sshScriptContent renders the wrapper script for the given ssh command.
// An empty command means the system ssh client with hardened options.
func sshScriptContent(sshCommand string, windows bool) string {
	command := strings.TrimSpace(sshCommand)
	if command == "" {
		command = "ssh " + hardenedSSHOptions
	}
	if windows {
		return "@" + command + " %*\r\n"
	}
	return "#!/bin/sh\nexec " + command + " \"$@\"\n"
}

// isBareExecutable reports whether the custom ssh command is a plain path
// that can be exported without a wrapper
func isBareExecutable(sshCommand string) bool {
	command := strings.TrimSpace(sshCommand)
	return command != "" && !strings.ContainsAny(command, " \t")
}

// writeSSHScript creates the wrapper script in a private directory below base.
// It returns the path to export as GIT_SSH and the directory to remove afterwards.
func writeSSHScript(base, sshCommand string) (path, dir string, err error) {
	if isBareExecutable(sshCommand) {
		return strings.TrimSpace(sshCommand), "", nil
	}

	dir, err = os.MkdirTemp(base, "reposync-ssh-")
	if err != nil {
		return "", "", fmt.Errorf("failed to create ssh script directory: %w", err)
	}

	windows := runtime.GOOS == "windows"
	name := "git-ssh.sh"
	if windows {
		name = "git-ssh.bat"
	}
	path = filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(sshScriptContent(sshCommand, windows)), 0700); err != nil { //nolint:gosec // the script must be executable
		_ = os.RemoveAll(dir)
		return "", "", fmt.Errorf("failed to write ssh script: %w", err)
	}
	return path, dir, nil
}
