package okto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	testEntryPoint = common.HexToAddress(DefaultEntryPoint)
	testChainID    = big.NewInt(137)
)

func TestUserOpHash_KnownVectors(t *testing.T) {
	tests := []struct {
		name string
		op   *UnsignedUserOperation
		want string
	}{
		{
			name: "no paymaster",
			op:   mockUnsignedOp(),
			want: "0xab4df5b8518e438d8b85983a6b72f7eaf54f0321f75e695a34224d63fe607037",
		},
		{
			name: "sponsored",
			op:   mockSponsoredOp(),
			want: "0xa61c6871ef87094f9b4ac43a6ebf178cc22b187ae3a7bce2ceecf7ef57758c1a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := UserOpHash(tt.op, testEntryPoint, testChainID)
			require.NoError(t, err)
			require.Equal(t, tt.want, hash.Hex())
		})
	}
}

func TestUserOpHash_Deterministic(t *testing.T) {
	first, err := mockSponsoredOp().Hash(testEntryPoint, testChainID)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := mockSponsoredOp().Hash(testEntryPoint, testChainID)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestUserOpHash_EveryFieldMatters(t *testing.T) {
	base, err := mockSponsoredOp().Hash(testEntryPoint, testChainID)
	require.NoError(t, err)

	mutations := map[string]func(op *UnsignedUserOperation){
		"sender":                        func(op *UnsignedUserOperation) { op.Sender = "0x9f1d3a1b2c3d4e5f60718293a4b5c6d7e8f90a1c" },
		"nonce":                         func(op *UnsignedUserOperation) { op.Nonce = "124" },
		"callData":                      func(op *UnsignedUserOperation) { op.CallData = "0x01" },
		"callGasLimit":                  func(op *UnsignedUserOperation) { op.CallGasLimit = "50001" },
		"verificationGasLimit":          func(op *UnsignedUserOperation) { op.VerificationGasLimit = "100001" },
		"preVerificationGas":            func(op *UnsignedUserOperation) { op.PreVerificationGas = "21001" },
		"maxFeePerGas":                  func(op *UnsignedUserOperation) { op.MaxFeePerGas = "1000000001" },
		"maxPriorityFeePerGas":          func(op *UnsignedUserOperation) { op.MaxPriorityFeePerGas = "1000000001" },
		"paymaster":                     func(op *UnsignedUserOperation) { op.Paymaster = testSender },
		"paymasterVerificationGasLimit": func(op *UnsignedUserOperation) { op.PaymasterVerificationGasLimit = "60001" },
		"paymasterPostOpGasLimit":       func(op *UnsignedUserOperation) { op.PaymasterPostOpGasLimit = "30001" },
		"paymasterData":                 func(op *UnsignedUserOperation) { op.PaymasterData = "0xdeadbeee" },
	}

	for field, mutate := range mutations {
		t.Run(field, func(t *testing.T) {
			op := mockSponsoredOp()
			mutate(op)
			hash, err := op.Hash(testEntryPoint, testChainID)
			require.NoError(t, err)
			require.NotEqual(t, base, hash)
		})
	}

	t.Run("entryPoint", func(t *testing.T) {
		hash, err := mockSponsoredOp().Hash(common.HexToAddress(testPaymaster), testChainID)
		require.NoError(t, err)
		require.NotEqual(t, base, hash)
	})

	t.Run("chainId", func(t *testing.T) {
		hash, err := mockSponsoredOp().Hash(testEntryPoint, big.NewInt(1))
		require.NoError(t, err)
		require.NotEqual(t, base, hash)
	})
}

func TestUserOpHash_InvalidChainID(t *testing.T) {
	packed, err := mockUnsignedOp().Pack()
	require.NoError(t, err)

	_, err = packed.Hash(testEntryPoint, nil)
	require.ErrorIs(t, err, ErrInvalidChainID)

	_, err = packed.Hash(testEntryPoint, big.NewInt(-1))
	require.ErrorIs(t, err, ErrInvalidChainID)

	_, err = packed.Hash(testEntryPoint, new(big.Int).Lsh(big.NewInt(1), 256))
	require.ErrorIs(t, err, ErrUint256Overflow)
}
