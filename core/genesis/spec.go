// core/genesis/spec.go
package genesis

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"savingsbank/native/access"
	"savingsbank/native/bank"
	"savingsbank/native/plans"
)

// Spec describes the initial state of a savings deployment.
type Spec struct {
	SuperAdmin string              `toml:"superAdmin"`
	Asset      AssetSpec           `toml:"asset"`
	Roles      map[string][]string `toml:"roles"` // role -> []addr
	Alloc      map[string]string   `toml:"alloc"` // addr -> amount
	Plans      []PlanSpec          `toml:"plans"`
	VaultSeed  string              `toml:"vaultSeed"`

	superAdmin ethcommon.Address
	alloc      map[ethcommon.Address]*big.Int
	vaultSeed  *big.Int
}

type AssetSpec struct {
	Name     string `toml:"name"`
	Symbol   string `toml:"symbol"`
	Decimals uint8  `toml:"decimals"`
}

type PlanSpec struct {
	Name            string `toml:"name"`
	MinDeposit      string `toml:"minDeposit"`
	MaxDeposit      string `toml:"maxDeposit"`
	MinTermDays     uint64 `toml:"minTermDays"`
	MaxTermDays     uint64 `toml:"maxTermDays"`
	AnnualRateBps   uint64 `toml:"annualRateBps"`
	PenaltyRateBps  uint64 `toml:"penaltyRateBps"`
	PenaltyReceiver string `toml:"penaltyReceiver"`
	Inactive        bool   `toml:"inactive"`

	input    plans.Input
	receiver ethcommon.Address
}

// LoadSpec reads and validates a TOML genesis file. Unknown keys are rejected.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	var spec Spec
	meta, err := toml.DecodeFile(path, &spec)
	if err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("decode genesis spec %q: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// ParseSpec decodes a TOML genesis document held in memory.
func ParseSpec(raw string) (*Spec, error) {
	var spec Spec
	meta, err := toml.Decode(raw, &spec)
	if err != nil {
		return nil, fmt.Errorf("decode genesis spec: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode genesis spec: unknown key %s", undecoded[0].String())
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec: %w", err)
	}
	return &spec, nil
}

// Validate checks every field and caches the parsed values used by Apply.
func (s *Spec) Validate() error {
	admin, err := parseAddress(s.SuperAdmin)
	if err != nil {
		return fmt.Errorf("superAdmin: %w", err)
	}
	s.superAdmin = admin

	if strings.TrimSpace(s.Asset.Symbol) == "" {
		s.Asset = AssetSpec{
			Name:     bank.DefaultMetadata.Name,
			Symbol:   bank.DefaultMetadata.Symbol,
			Decimals: bank.DefaultMetadata.Decimals,
		}
	}

	for role, members := range s.Roles {
		if !isKnownRole(role) {
			return fmt.Errorf("roles: unknown role %q", role)
		}
		for i, member := range members {
			if _, err := parseAddress(member); err != nil {
				return fmt.Errorf("roles.%s[%d]: %w", role, i, err)
			}
		}
	}

	s.alloc = make(map[ethcommon.Address]*big.Int, len(s.Alloc))
	for addrStr, amountStr := range s.Alloc {
		addr, err := parseAddress(addrStr)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addrStr, err)
		}
		amount, err := parseAmount(amountStr)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addrStr, err)
		}
		s.alloc[addr] = amount
	}

	if len(s.Plans) > 0 && len(s.Roles[access.RoleAdmin]) == 0 {
		return fmt.Errorf("plans require at least one %s holder", access.RoleAdmin)
	}
	for i := range s.Plans {
		if err := s.Plans[i].validate(); err != nil {
			return fmt.Errorf("plans[%d]: %w", i, err)
		}
	}

	seed, err := parseAmount(s.VaultSeed)
	if err != nil {
		return fmt.Errorf("vaultSeed: %w", err)
	}
	if seed.Sign() > 0 && len(s.Roles[access.RoleAdmin]) == 0 {
		return fmt.Errorf("vaultSeed requires at least one %s holder", access.RoleAdmin)
	}
	s.vaultSeed = seed
	return nil
}

func (p *PlanSpec) validate() error {
	minDeposit, err := parseAmount(p.MinDeposit)
	if err != nil {
		return fmt.Errorf("minDeposit: %w", err)
	}
	maxDeposit, err := parseAmount(p.MaxDeposit)
	if err != nil {
		return fmt.Errorf("maxDeposit: %w", err)
	}
	p.input = plans.Input{
		Name:           p.Name,
		MinDeposit:     minDeposit,
		MaxDeposit:     maxDeposit,
		MinTermDays:    p.MinTermDays,
		MaxTermDays:    p.MaxTermDays,
		AnnualRateBps:  p.AnnualRateBps,
		PenaltyRateBps: p.PenaltyRateBps,
	}
	if err := p.input.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(p.PenaltyReceiver) != "" {
		receiver, err := parseAddress(p.PenaltyReceiver)
		if err != nil {
			return fmt.Errorf("penaltyReceiver: %w", err)
		}
		p.receiver = receiver
	}
	return nil
}

// PlanAdmin returns the ADMIN_ROLE holder that creates the genesis plans.
func (s *Spec) PlanAdmin() ethcommon.Address {
	members := append([]string(nil), s.Roles[access.RoleAdmin]...)
	if len(members) == 0 {
		return ethcommon.Address{}
	}
	sort.Strings(members)
	addr, _ := parseAddress(members[0])
	return addr
}

func isKnownRole(role string) bool {
	switch role {
	case access.RoleDefaultAdmin, access.RoleAdmin, access.RolePauser,
		access.RoleLiquidityManager, access.RoleWithdraw, access.RoleMinter:
		return true
	default:
		return false
	}
}

func parseAddress(raw string) (ethcommon.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !ethcommon.IsHexAddress(trimmed) {
		return ethcommon.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	addr := ethcommon.HexToAddress(trimmed)
	if addr == (ethcommon.Address{}) {
		return ethcommon.Address{}, fmt.Errorf("zero address not allowed")
	}
	return addr, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
