package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"vulnforge/internal/logging"
)

// artifact is the subset of a compiler artifact we care about. Hardhat
// and Foundry both wrap the ABI array in an object; raw ABI files are
// just the array.
type artifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABIOperations parses a compiled ABI artifact and returns the
// contract's callable operations. Accepts both a raw ABI array and an
// artifact object wrapping one.
func LoadABIOperations(path string) ([]Operation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ABI artifact: %w", err)
	}

	raw := bytes.TrimSpace(data)
	if len(raw) > 0 && raw[0] == '{' {
		var art artifact
		if err := json.Unmarshal(raw, &art); err != nil {
			return nil, fmt.Errorf("parse ABI artifact: %w", err)
		}
		if len(art.ABI) == 0 {
			return nil, fmt.Errorf("artifact %s has no abi field", path)
		}
		raw = art.ABI
	}

	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	ops := make([]Operation, 0, len(parsed.Methods))
	for name, method := range parsed.Methods {
		ops = append(ops, Operation{
			Name:       name,
			Payable:    method.StateMutability == "payable",
			Mutability: method.StateMutability,
			Inputs:     len(method.Inputs),
		})
	}
	if parsed.HasReceive() {
		ops = append(ops, Operation{Name: "receive", Payable: true, Mutability: "payable"})
	}
	if parsed.HasFallback() {
		payable := parsed.Fallback.StateMutability == "payable"
		ops = append(ops, Operation{Name: "fallback", Payable: payable, Mutability: parsed.Fallback.StateMutability})
	}

	// Map iteration order is random; keep the list stable for prompts
	// and fingerprint-adjacent consumers.
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })

	logging.ClassifyDebug("Loaded %d operations from ABI %s", len(ops), path)
	return ops, nil
}
