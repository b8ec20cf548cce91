// Package contract translates marketplace operations into and out of chain
// calls using the deployed SnailMarket contract's ABI.
package contract

import (
	"bytes"
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

// addressRegex validates the deployed address found in the artifact.
var addressRegex = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")

// Artifact is the parsed form of a Truffle build artifact: the contract ABI
// plus the address it was deployed at on the configured network. Loaded once
// at startup, immutable afterwards.
type Artifact struct {
	ContractName string
	ABI          abi.ABI
	Address      string
}

// artifactJSON mirrors the subset of the Truffle build output we consume.
type artifactJSON struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Networks     map[string]struct {
		Address string `json:"address"`
	} `json:"networks"`
}

// LoadArtifact reads a Truffle build artifact from disk and resolves the
// deployed address for the given network ID (e.g. "5777" for ganache).
func LoadArtifact(path, networkID string) (*Artifact, error) {
	// #nosec G304 -- artifact path comes from validated config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mkterr.WithCause(mkterr.ErrArtifactInvalid, err)
	}

	return ParseArtifact(data, networkID)
}

// ParseArtifact parses artifact bytes. Split out from LoadArtifact so tests
// can feed artifacts without touching disk.
func ParseArtifact(data []byte, networkID string) (*Artifact, error) {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, mkterr.WithCause(mkterr.ErrArtifactInvalid, err)
	}

	if len(raw.ABI) == 0 {
		return nil, mkterr.WithDetails(mkterr.ErrArtifactInvalid, map[string]string{
			"reason": "artifact has no abi field",
		})
	}

	parsedABI, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, mkterr.WithCause(mkterr.ErrArtifactInvalid, err)
	}

	network, ok := raw.Networks[networkID]
	if !ok {
		known := make([]string, 0, len(raw.Networks))
		for id := range raw.Networks {
			known = append(known, id)
		}
		return nil, mkterr.WithDetails(mkterr.ErrArtifactInvalid, map[string]string{
			"reason":     "contract not deployed on the configured network",
			"network_id": networkID,
			"deployed":   strings.Join(known, ", "),
		})
	}

	if !addressRegex.MatchString(network.Address) {
		return nil, mkterr.WithDetails(mkterr.ErrArtifactInvalid, map[string]string{
			"reason":  "deployed address is malformed",
			"address": network.Address,
		})
	}

	return &Artifact{
		ContractName: raw.ContractName,
		ABI:          parsedABI,
		Address:      network.Address,
	}, nil
}
