package burner

import (
	"context"
	"crypto/sha256"
	"fmt"

	"veilpay/internal/model"
	"veilpay/internal/noncechain"
)

// DefaultGapLimit is how many consecutive inactive indices end a recovery
// scan. Real burner sequences are dense, so a long empty run is strong
// evidence the chain is exhausted. Tunable, but the default should not be
// changed without evidence it is wrong.
const DefaultGapLimit = 10

// ActivityOracle answers whether an address has ever been used on chain.
type ActivityOracle interface {
	HasActivity(ctx context.Context, address string) (bool, error)
}

// RecoverByScanning walks indices 0..maxIndex, derives the keypair at each
// and keeps the ones the oracle reports as active. Index 0 is derived under
// the stable role tag, everything above under the spending tag. Inactive
// burners are wiped immediately rather than returned. The scan stops early
// after gapLimit consecutive inactive indices; gapLimit <= 0 selects
// DefaultGapLimit.
func RecoverByScanning(ctx context.Context, masterSeed []byte, oracle ActivityOracle, maxIndex uint32, gapLimit int) ([]*model.BurnerKeyPair, error) {
	if gapLimit <= 0 {
		gapLimit = DefaultGapLimit
	}

	nonce, err := noncechain.DeriveAtIndex(masterSeed, 0)
	if err != nil {
		return nil, err
	}

	var found []*model.BurnerKeyPair
	gap := 0

	for index := uint32(0); ; index++ {
		if err := ctx.Err(); err != nil {
			wipeAll(found)
			return nil, err
		}

		var kp *model.BurnerKeyPair
		if index == 0 {
			kp, err = DeriveStableAddress(masterSeed, nonce)
		} else {
			kp, err = DeriveSpendingBurner(masterSeed, nonce)
		}
		if err != nil {
			wipeAll(found)
			return nil, err
		}

		active, err := oracle.HasActivity(ctx, kp.Address)
		if err != nil {
			Clear(kp)
			wipeAll(found)
			return nil, fmt.Errorf("activity check for index %d: %w", index, err)
		}

		if active {
			found = append(found, kp)
			gap = 0
		} else {
			Clear(kp)
			gap++
		}

		if gap >= gapLimit || index == maxIndex {
			break
		}

		nonce.Value = sha256.Sum256(nonce.Value[:])
		nonce.Index++
	}

	return found, nil
}

func wipeAll(kps []*model.BurnerKeyPair) {
	for _, kp := range kps {
		Clear(kp)
	}
}
