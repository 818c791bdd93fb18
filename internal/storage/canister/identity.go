package canister

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base32"
	"hash/crc32"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Identity is the cryptographic session the canister adapter signs calls
// with. It is distinct from the web session: the other adapters are
// server-authenticated, this one is self-authenticating.
type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// DeriveIdentity derives a deterministic ed25519 identity from a user
// secret and salt via argon2id, so the same user always signs as the same
// principal.
func DeriveIdentity(secret, salt []byte) *Identity {
	seed := argon2.IDKey(secret, salt, 1, 64*1024, 4, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)
	return &Identity{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

// Sign signs a message with the identity key.
func (i *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(i.priv, message)
}

// PublicKey returns the raw ed25519 public key.
func (i *Identity) PublicKey() []byte {
	return append([]byte(nil), i.pub...)
}

// Principal renders the self-authenticating principal in its textual form:
// crc32 prefix over sha224(pubkey)+0x02, base32 lowercase, dash-grouped.
func (i *Identity) Principal() string {
	h := sha256.Sum224(i.pub)
	raw := append(h[:], 0x02)

	crc := crc32.ChecksumIEEE(raw)
	buf := []byte{byte(crc >> 24), byte(crc >> 16), byte(crc >> 8), byte(crc)}
	buf = append(buf, raw...)

	enc := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))

	var groups []string
	for len(enc) > 5 {
		groups = append(groups, enc[:5])
		enc = enc[5:]
	}
	groups = append(groups, enc)
	return strings.Join(groups, "-")
}
