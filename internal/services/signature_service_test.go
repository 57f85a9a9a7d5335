package services_test

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/parcelverse/marketplace-api/internal/logger"
	"github.com/parcelverse/marketplace-api/internal/services"
	"github.com/parcelverse/marketplace-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger()
}

var testVerifier = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

type testKey struct {
	priv *ecdsa.PrivateKey
	addr common.Address
}

func newKey(t *testing.T) testKey {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testKey{priv: priv, addr: crypto.PubkeyToAddress(priv.PublicKey)}
}

func newSignatureService() *services.SignatureService {
	return services.NewSignatureService("ParcelMarket", "1", big.NewInt(137), testVerifier)
}

func signBatch(t *testing.T, svc *services.SignatureService, key testKey, seller common.Address, hashes []common.Hash) types.Signature {
	t.Helper()
	digest := svc.Digest(seller, hashes)
	raw, err := crypto.Sign(digest.Bytes(), key.priv)
	require.NoError(t, err)
	return types.Signature{
		V: raw[64] + 27,
		R: common.BytesToHash(raw[:32]),
		S: common.BytesToHash(raw[32:64]),
	}
}

func TestSignatureService_VerifyBatch(t *testing.T) {
	svc := newSignatureService()
	seller := newKey(t)
	hashes := []common.Hash{
		crypto.Keccak256Hash([]byte("order-0")),
		crypto.Keccak256Hash([]byte("order-1")),
		crypto.Keccak256Hash([]byte("order-2")),
	}
	sig := signBatch(t, svc, seller, seller.addr, hashes)

	t.Run("valid signature recovers the seller", func(t *testing.T) {
		assert.NoError(t, svc.VerifyBatch(seller.addr, hashes, sig))
	})

	t.Run("altered order hash is rejected", func(t *testing.T) {
		tampered := append([]common.Hash{}, hashes...)
		tampered[1] = crypto.Keccak256Hash([]byte("swapped"))
		err := svc.VerifyBatch(seller.addr, tampered, sig)
		assert.ErrorIs(t, err, types.ErrInvalidSignature)
	})

	t.Run("different claimed seller is rejected", func(t *testing.T) {
		other := newKey(t)
		err := svc.VerifyBatch(other.addr, hashes, sig)
		assert.ErrorIs(t, err, types.ErrInvalidSignature)
	})

	t.Run("malformed recovery id is rejected", func(t *testing.T) {
		bad := sig
		bad.V = 5
		err := svc.VerifyBatch(seller.addr, hashes, bad)
		assert.ErrorIs(t, err, types.ErrInvalidSignature)
	})

	t.Run("different signing domain produces a different digest", func(t *testing.T) {
		other := services.NewSignatureService("ParcelMarket", "1", big.NewInt(1), testVerifier)
		err := other.VerifyBatch(seller.addr, hashes, sig)
		assert.ErrorIs(t, err, types.ErrInvalidSignature)
	})
}
