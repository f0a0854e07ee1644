/*

This is the custodial wallet record as it is stored at rest. The private key is
never present in this struct in plaintext; EncryptedKey carries the serialized
nonce:ciphertext:authTag blob produced by the key vault.

*/

package types

import "time"

type WalletRecord struct {
	ID           string    `json:"id"`            // opaque unique identifier (uuid)
	UserID       string    `json:"user_id"`       // external identifier of the owning user
	Address      string    `json:"address"`       // public chain address, immutable once set
	EncryptedKey string    `json:"-"`             // never logged or serialized outward
	CreatedAt    time.Time `json:"created_at"`    // picks the canonical record among duplicates
}
