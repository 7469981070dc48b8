// Command tiedsiren blocks distracting apps, websites and keywords during
// focus sessions.
package main

import (
	"os"

	"github.com/tiedsiren/tiedsiren/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
