// Command bandit-router runs and validates the contextual-bandit request
// router. Subcommands live in cmd/.
package main

import "github.com/inference-sim/bandit-router/cmd"

func main() {
	cmd.Execute()
}
