package runner

import (
	"fmt"
	"os"
	"path/filepath"
)

const sshKeyPath = "/root/.ssh/borg-ssh.key"

// SetupSSHKey writes the private key material to disk with mode 0600 and
// returns its path. borg's BORG_RSH invocation refuses keys with looser
// permissions.
func SetupSSHKey(keyContent string) (string, error) {
	dir := filepath.Dir(sshKeyPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create ssh dir %s: %w", dir, err)
	}
	if err := os.WriteFile(sshKeyPath, []byte(keyContent), 0o600); err != nil {
		return "", fmt.Errorf("write ssh key: %w", err)
	}
	// WriteFile honors umask; enforce the exact mode borg's strict-permission
	// checks expect.
	if err := os.Chmod(sshKeyPath, 0o600); err != nil {
		return "", fmt.Errorf("chmod ssh key: %w", err)
	}
	return sshKeyPath, nil
}
