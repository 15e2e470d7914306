package sdk

import (
	"github.com/rs/zerolog"
)

// CredentialFunc resolves the credential for a tag that asked for one.
// Returning false denies that tag only.
type CredentialFunc func(TagIdentity) (Credential, bool)

// AuthBridge carries credential requests raised by the device mid-cycle to
// the application's resolver.
type AuthBridge struct {
	resolve CredentialFunc
	log     zerolog.Logger
}

func NewAuthBridge(fn CredentialFunc, logger zerolog.Logger) *AuthBridge {
	return &AuthBridge{resolve: fn, log: logger}
}

// Resolve never blocks on anything but the resolver itself. A missing
// resolver denies every request.
func (b *AuthBridge) Resolve(id TagIdentity) (Credential, bool) {
	if b == nil || b.resolve == nil {
		return Credential{}, false
	}
	cred, ok := b.resolve(id)
	b.log.Debug().
		Str("epc", TagRecord{EPC: id.EPC}.EPCHex()).
		Bool("granted", ok).
		Msg("credential requested")
	return cred, ok
}

// PasswordTable resolves by the last EPC byte modulo the table size, the way
// demo tag sets are provisioned.
func PasswordTable(passwords ...uint32) CredentialFunc {
	table := append([]uint32(nil), passwords...)
	return func(id TagIdentity) (Credential, bool) {
		if len(table) == 0 || len(id.EPC) == 0 {
			return Credential{}, false
		}
		idx := int(id.EPC[len(id.EPC)-1]) % len(table)
		return Credential{Password: table[idx]}, true
	}
}
