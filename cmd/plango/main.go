// plango recovers files from CrashPlan/Code42 desktop backup archives:
// it unwraps the archive key from a passphrase, key store, or service
// configuration, lists the archived files and revisions, and restores them
// with integrity checks at every layer.
package main

import (
	"os"

	"plango/internal/cli"
)

// version is reported by the --version flag.
const version = "v1.0.0"

func main() {
	os.Exit(cli.Execute(version))
}
