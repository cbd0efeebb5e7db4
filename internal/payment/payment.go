// Package payment defines the contract a payment gateway must satisfy and a
// simulated implementation. The checkout pipeline blocks on Execute inside
// its transaction; a real gateway would need a reserve/confirm flow outside
// the transaction instead.
package payment

import (
	"context"
	"math/rand"

	"github.com/shopspring/decimal"
)

type Result struct {
	Success bool
	Reason  string
}

type Gateway interface {
	Execute(ctx context.Context, method string, details map[string]string, amount decimal.Decimal) (Result, error)
}

// SimulatedGateway approves most charges and declines the rest with a
// refusal reason, mimicking a real acquirer's behavior.
type SimulatedGateway struct {
	// roll returns a number in [0, 100); swapped out in tests.
	roll func() int
}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{roll: func() int { return rand.Intn(100) }}
}

func (g *SimulatedGateway) Execute(_ context.Context, _ string, _ map[string]string, _ decimal.Decimal) (Result, error) {
	return calcResult(g.roll()), nil
}

func calcResult(roll int) Result {
	if roll < 95 {
		return Result{Success: true}
	}
	switch roll % 5 {
	case 1:
		return Result{Success: false, Reason: "insufficient funds"}
	case 2:
		return Result{Success: false, Reason: "card expired"}
	case 3:
		return Result{Success: false, Reason: "suspected fraud"}
	case 4:
		return Result{Success: false, Reason: "issuer unavailable"}
	default:
		return Result{Success: false, Reason: "unknown reason"}
	}
}

// StaticGateway always returns the configured outcome; used by tests and
// local development.
type StaticGateway struct {
	Result Result
	Err    error
}

func (g StaticGateway) Execute(context.Context, string, map[string]string, decimal.Decimal) (Result, error) {
	return g.Result, g.Err
}
