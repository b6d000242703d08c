/*
account.go - Ledger account identifiers

PURPOSE:
  Derives ledger addresses from principal identifiers. The service never holds
  ledger credentials; it only derives addresses to compare against the
  transfers it finds on the ledger and to address refunds.

FORMAT:
  account = crc32(hash) || hash
  hash    = sha224("\x0Aaccount-id" || owner || subaccount)

  The subaccount is 32 zero bytes when none is given. The textual form is the
  lowercase hex encoding of the 32 byte identifier.

SEE ALSO:
  - client.go: Transfers addressed with AccountIdentifier
  - verify.go: Payment verification compares derived identifiers
*/
package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
)

const accountDomainSeparator = "\x0Aaccount-id"

// Subaccount selects one of the accounts owned by a principal.
type Subaccount [32]byte

// AccountIdentifier is a checksummed ledger address.
type AccountIdentifier [32]byte

// ErrInvalidAccount is returned when a textual account identifier cannot be parsed.
var ErrInvalidAccount = errors.New("invalid account identifier")

// AccountID derives the ledger address of owner's subaccount.
// A nil subaccount selects the default (all-zero) subaccount.
func AccountID(owner string, sub *Subaccount) AccountIdentifier {
	var s Subaccount
	if sub != nil {
		s = *sub
	}

	h := sha256.New224()
	h.Write([]byte(accountDomainSeparator))
	h.Write([]byte(owner))
	h.Write(s[:])
	sum := h.Sum(nil)

	var id AccountIdentifier
	binary.BigEndian.PutUint32(id[:4], crc32.ChecksumIEEE(sum))
	copy(id[4:], sum)
	return id
}

// ParseAccountIdentifier parses the hex form and validates the checksum.
func ParseAccountIdentifier(s string) (AccountIdentifier, error) {
	var id AccountIdentifier
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAccount, len(id), len(raw))
	}
	copy(id[:], raw)
	if binary.BigEndian.Uint32(id[:4]) != crc32.ChecksumIEEE(id[4:]) {
		return id, fmt.Errorf("%w: checksum mismatch", ErrInvalidAccount)
	}
	return id, nil
}

func (a AccountIdentifier) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero value (never a derived address).
func (a AccountIdentifier) IsZero() bool {
	return a == AccountIdentifier{}
}

func (a AccountIdentifier) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountIdentifier) UnmarshalText(text []byte) error {
	id, err := ParseAccountIdentifier(string(text))
	if err != nil {
		return err
	}
	*a = id
	return nil
}
