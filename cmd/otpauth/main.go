// Command otpauth runs the passwordless email sign-in API.
//
//	otpauth serve [--embedded-redis] [--migrate]
//	otpauth migrate
//	otpauth loadtest [--challenges N] [--concurrency N] [--ops N]
//
// Settings come from the environment or a .env file in --env-dir.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
