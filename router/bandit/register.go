// register.go wires router/bandit constructors into the router package's
// registration variable (NewAlgorithmFunc). This init() runs when any package
// imports router/bandit, breaking the import cycle between router/ (interface
// owner) and router/bandit/ (implementation). Test code in package router uses
// bandit_import_test.go for the blank import.
package bandit

import "github.com/inference-sim/bandit-router/router"

func init() {
	router.NewAlgorithmFunc = New
}
