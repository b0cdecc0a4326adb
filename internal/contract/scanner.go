// Package contract extracts the callable surface of a target contract.
// The enumerated operation list feeds the failure classifier (to name
// what a broken test should have called) and the adaptation validator
// (to repair calls to operations that don't exist).
package contract

import (
	"regexp"
	"strings"

	"vulnforge/internal/logging"
	"vulnforge/internal/types"
)

// Operation is one externally callable entry point of a contract.
type Operation struct {
	Name       string
	Payable    bool
	Mutability string // "", view, pure, payable, nonpayable
	Inputs     int    // parameter count; -1 when unknown
}

// funcPattern captures Solidity function declarations: name, parameter
// list, and the modifier soup between the parameter list and the body.
var funcPattern = regexp.MustCompile(`(?m)function\s+(\w+)\s*\(([^)]*)\)\s*([^{;]*)`)

var (
	receivePattern  = regexp.MustCompile(`(?m)receive\s*\(\s*\)\s*external\s+payable`)
	fallbackPattern = regexp.MustCompile(`(?m)fallback\s*\(\s*[^)]*\)\s*external`)
)

// ScanSource enumerates callable operations from raw Solidity source.
// Internal and private functions are excluded: a generated test cannot
// call them. A contract with no callable operations returns an empty
// slice, not an error - downstream components handle that case.
func ScanSource(source string) []Operation {
	var ops []Operation

	for _, m := range funcPattern.FindAllStringSubmatch(source, -1) {
		name, params, modifiers := m[1], m[2], m[3]

		if strings.Contains(modifiers, "internal") || strings.Contains(modifiers, "private") {
			continue
		}

		op := Operation{
			Name:    name,
			Payable: strings.Contains(modifiers, "payable"),
			Inputs:  countParams(params),
		}
		switch {
		case strings.Contains(modifiers, "view"):
			op.Mutability = "view"
		case strings.Contains(modifiers, "pure"):
			op.Mutability = "pure"
		case op.Payable:
			op.Mutability = "payable"
		default:
			op.Mutability = "nonpayable"
		}

		ops = append(ops, op)
	}

	if receivePattern.MatchString(source) {
		ops = append(ops, Operation{Name: "receive", Payable: true, Mutability: "payable", Inputs: 0})
	}
	if fallbackPattern.MatchString(source) {
		payable := strings.Contains(fallbackPattern.FindString(source), "payable")
		mut := "nonpayable"
		if payable {
			mut = "payable"
		}
		ops = append(ops, Operation{Name: "fallback", Payable: payable, Mutability: mut, Inputs: 0})
	}

	logging.ClassifyDebug("Scanned %d callable operations from source", len(ops))
	return ops
}

func countParams(params string) int {
	params = strings.TrimSpace(params)
	if params == "" {
		return 0
	}
	return strings.Count(params, ",") + 1
}

// Enumerate returns the callable operations for a target, preferring the
// ABI artifact when one is available and falling back to source scanning.
func Enumerate(target types.Target) []Operation {
	if target.ABIPath != "" {
		ops, err := LoadABIOperations(target.ABIPath)
		if err == nil {
			return ops
		}
		logging.Get(logging.CategoryClassify).Warn(
			"ABI load failed for %s, falling back to source scan: %v", target.ID, err)
	}
	return ScanSource(target.Source)
}

// Names flattens an operation list to the bare names consumed by prompts
// and validators.
func Names(ops []Operation) []string {
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}
	return names
}

// Describe renders the operation list for inclusion in a prompt or a
// suggested-fix message, one operation per line.
func Describe(ops []Operation) string {
	if len(ops) == 0 {
		return "(no callable operations found)"
	}
	var sb strings.Builder
	for _, op := range ops {
		sb.WriteString("- ")
		sb.WriteString(op.Name)
		sb.WriteString(" [")
		sb.WriteString(op.Mutability)
		sb.WriteString("]\n")
	}
	return sb.String()
}
