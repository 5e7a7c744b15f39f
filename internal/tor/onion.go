package tor

import (
	"bytes"
	"encoding/base32"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// OnionV3Length is the length of a v3 address without the ".onion" suffix.
	OnionV3Length = 56

	// OnionV3Version is the trailing version byte of a v3 address.
	OnionV3Version = 0x03

	// OnionSuffix is the suffix of every onion hostname.
	OnionSuffix = ".onion"
)

var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

// checksumPrefix is the constant mixed into the v3 address checksum.
var checksumPrefix = []byte(".onion checksum")

// publicKeyHeader starts the hs_ed25519_public_key file written by Tor.
var publicKeyHeader = []byte("== ed25519v1-public: type0 ==\x00\x00\x00")

// IsValidV3Address reports whether address is a v3 onion address with a
// correct checksum. Case is ignored.
func IsValidV3Address(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, OnionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}

	// pubkey (32) || checksum (2) || version (1)
	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != OnionV3Version {
		return false
	}
	return bytes.Equal(checksum, computeV3Checksum(pubkey, version))
}

// computeV3Checksum returns the first two bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func computeV3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	hash := sha3.Sum256(data)
	return hash[:2]
}

// AddressFromPublicKey derives the v3 onion address of an ed25519 public key.
func AddressFromPublicKey(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", ErrInvalidOnionAddress
	}
	data := make([]byte, 0, 35)
	data = append(data, pubkey...)
	data = append(data, computeV3Checksum(pubkey, OnionV3Version)...)
	data = append(data, OnionV3Version)
	return strings.ToLower(base32.StdEncoding.EncodeToString(data)) + OnionSuffix, nil
}

// NormalizeAddress lowercases address, strips a URL scheme and path, adds
// a missing ".onion" suffix and validates the result.
func NormalizeAddress(address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	address = strings.TrimPrefix(address, "https://")
	address = strings.TrimPrefix(address, "http://")
	if idx := strings.IndexAny(address, "/?#"); idx != -1 {
		address = address[:idx]
	}
	if !strings.HasSuffix(address, OnionSuffix) {
		address += OnionSuffix
	}
	if !IsValidV3Address(address) {
		return "", ErrInvalidOnionAddress
	}
	return address, nil
}

// ReadHostname reads and validates a HiddenServiceDir hostname file.
func ReadHostname(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Operator-configured hidden service dir
	if err != nil {
		return "", err
	}
	return NormalizeAddress(string(data))
}

// ReadPublicKeyAddress derives the onion address from a Tor
// hs_ed25519_public_key file.
func ReadPublicKeyAddress(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Operator-configured hidden service dir
	if err != nil {
		return "", err
	}
	if len(data) != len(publicKeyHeader)+32 || !bytes.HasPrefix(data, publicKeyHeader) {
		return "", fmt.Errorf("%w: malformed public key file", ErrInvalidOnionAddress)
	}
	return AddressFromPublicKey(data[len(publicKeyHeader):])
}
