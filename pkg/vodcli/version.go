package vodcli

import (
	"context"
	"fmt"
	"io"
	"os"
)

// VersionCheckEnv suppresses version mismatch warnings when set to any
// non-empty value.
const VersionCheckEnv = "VODKEEP_SUPPRESS_VERSION_CHECK"

// CheckVersionMismatch warns on w when the daemon runs a different version
// than the CLI. It never fails the caller.
func (c *Client) CheckVersionMismatch(ctx context.Context, expectedVersion string, w io.Writer) {
	if expectedVersion == "" || os.Getenv(VersionCheckEnv) != "" {
		return
	}
	daemonVersion, err := c.GetDaemonVersion(ctx)
	if err != nil {
		fmt.Fprintf(w, "Warning: could not verify daemon version: %v\n", err)
		return
	}
	if daemonVersion.Version != expectedVersion {
		fmt.Fprintf(w, "Warning: CLI version (%s) differs from daemon version (%s)\n",
			expectedVersion, daemonVersion.Version)
		fmt.Fprintf(w, "Restart the daemon to run the new version.\n")
	}
}
