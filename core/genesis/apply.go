// core/genesis/apply.go
package genesis

import (
	"fmt"
	"math/big"
	"sort"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"savingsbank/native/access"
	"savingsbank/native/bank"
	"savingsbank/native/plans"
)

var appliedKey = []byte("genesis/applied")

// Store is the state surface genesis needs to record that it ran.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Modules bundles the engines that genesis seeds. All of them must share the
// same state overlay.
type Modules struct {
	State   Store
	Access  *access.Supervisor
	Asset   *bank.Ledger
	Plans   *plans.Registry
	Savings interface {
		Address() ethcommon.Address
		DepositToVault(caller ethcommon.Address, amount *big.Int) error
	}
}

// Applied reports whether a genesis has already been written to state.
func Applied(st Store) (bool, error) {
	var marker bool
	ok, err := st.KVGet(appliedKey, &marker)
	if err != nil {
		return false, err
	}
	return ok && marker, nil
}

// Apply seeds a fresh state from the spec. It fails if state already carries
// a genesis marker. Callers commit or discard the overlay.
func (s *Spec) Apply(m Modules) error {
	if s == nil {
		return fmt.Errorf("genesis: nil spec")
	}
	if m.State == nil || m.Access == nil || m.Asset == nil || m.Plans == nil || m.Savings == nil {
		return fmt.Errorf("genesis: modules not configured")
	}
	if s.superAdmin == (ethcommon.Address{}) {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	applied, err := Applied(m.State)
	if err != nil {
		return fmt.Errorf("genesis: read marker: %w", err)
	}
	if applied {
		return fmt.Errorf("genesis: state already initialised")
	}

	if err := m.Access.Bootstrap(s.superAdmin); err != nil {
		return fmt.Errorf("genesis: bootstrap: %w", err)
	}
	ledger := m.Savings.Address()
	for _, role := range []string{access.RoleLiquidityManager, access.RoleWithdraw, access.RoleMinter} {
		if err := m.Access.GrantRole(s.superAdmin, role, ledger); err != nil {
			return fmt.Errorf("genesis: grant %s to ledger: %w", role, err)
		}
	}

	roles := make([]string, 0, len(s.Roles))
	for role := range s.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		for _, member := range s.Roles[role] {
			addr, err := parseAddress(member)
			if err != nil {
				return fmt.Errorf("genesis: roles.%s: %w", role, err)
			}
			if err := m.Access.GrantRole(s.superAdmin, role, addr); err != nil {
				return fmt.Errorf("genesis: grant %s: %w", role, err)
			}
		}
	}

	if err := m.Asset.SetMetadata(bank.Metadata{
		Name:     s.Asset.Name,
		Symbol:   s.Asset.Symbol,
		Decimals: s.Asset.Decimals,
	}); err != nil {
		return fmt.Errorf("genesis: asset metadata: %w", err)
	}

	holders := make([]ethcommon.Address, 0, len(s.alloc))
	for addr := range s.alloc {
		holders = append(holders, addr)
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Hex() < holders[j].Hex() })
	for _, addr := range holders {
		amount := s.alloc[addr]
		if amount.Sign() == 0 {
			continue
		}
		if err := m.Asset.Mint(addr, amount); err != nil {
			return fmt.Errorf("genesis: alloc %s: %w", addr.Hex(), err)
		}
	}

	admin := s.PlanAdmin()
	for i, plan := range s.Plans {
		id, err := m.Plans.CreatePlan(admin, plan.input)
		if err != nil {
			return fmt.Errorf("genesis: plans[%d]: %w", i, err)
		}
		if plan.receiver != (ethcommon.Address{}) {
			if err := m.Plans.UpdatePenaltyReceiver(admin, id, plan.receiver); err != nil {
				return fmt.Errorf("genesis: plans[%d] receiver: %w", i, err)
			}
		}
		if plan.Inactive {
			if err := m.Plans.DeactivatePlan(admin, id); err != nil {
				return fmt.Errorf("genesis: plans[%d] deactivate: %w", i, err)
			}
		}
	}

	if s.vaultSeed != nil && s.vaultSeed.Sign() > 0 {
		if err := m.Asset.Approve(admin, ledger, s.vaultSeed); err != nil {
			return fmt.Errorf("genesis: vault seed approval: %w", err)
		}
		if err := m.Savings.DepositToVault(admin, s.vaultSeed); err != nil {
			return fmt.Errorf("genesis: vault seed: %w", err)
		}
	}

	return m.State.KVPut(appliedKey, true)
}
