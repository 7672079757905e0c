package config

import "github.com/mekvam/paygate/infra/crypto"

// StoreWithVault builds a PaymentConfigStore backed only by the given vault,
// for tests that exercise decryption against a different master key.
func StoreWithVault(v *crypto.Vault) *PaymentConfigStore {
	return &PaymentConfigStore{vault: v}
}
