package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignedMessagePrefix starts every message accepted by VerifySignedMessage. The rest of the
// message is the unix time it was signed at.
const SignedMessagePrefix = "bridge-tracker:"

// RecoverPersonalSigner returns the address that produced a personal_sign signature over
// message. Both 0/1 and 27/28 recovery ids are accepted.
func RecoverPersonalSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		// tolerate a missing 0x
		if sig, err = hexutil.Decode("0x" + signature); err != nil {
			return common.Address{}, fmt.Errorf("signature is not hex: %w", err)
		}
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature is %d bytes, want %d", len(sig), crypto.SignatureLength)
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignedMessage checks a timestamped login message and returns the signer. Messages
// older or newer than maxSkew are refused.
func VerifySignedMessage(message, signature string, now time.Time, maxSkew time.Duration) (common.Address, error) {
	ts, ok := strings.CutPrefix(message, SignedMessagePrefix)
	if !ok {
		return common.Address{}, fmt.Errorf("message must start with %q", SignedMessagePrefix)
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("message timestamp: %w", err)
	}
	signedAt := time.Unix(unix, 0)
	if d := now.Sub(signedAt); d > maxSkew || d < -maxSkew {
		return common.Address{}, fmt.Errorf("message signed at %s is outside the accepted window", signedAt.UTC())
	}
	return RecoverPersonalSigner(message, signature)
}

// ValidateEVMAddress reports whether address is 0x followed by 40 hex digits.
func ValidateEVMAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}
