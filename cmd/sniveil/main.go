// Command sniveil intercepts outbound IPv4 traffic via netfilter queues
// and mangles TLS ClientHello packets carrying a configured SNI to defeat
// SNI-based DPI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sniveil/sniveil/pkg/policy"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, policy.ErrConfigInvalid) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
