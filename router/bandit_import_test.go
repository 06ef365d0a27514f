package router_test

// Blank import triggers router/bandit's init(), which registers NewAlgorithmFunc.
// This lets package router's internal tests build real algorithms without
// importing router/bandit directly (which would create an import cycle).
import _ "github.com/inference-sim/bandit-router/router/bandit"
