package contract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// Claims settle on-chain: the player submits the payout transaction
// themselves, carrying the nonce the backend issued. The backend never
// signs or relays anything; it only reads the contract to learn whether
// a nonce was consumed.
const gameHouseABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "player", "type": "address"},
			{"internalType": "bytes32", "name": "nonce", "type": "bytes32"}
		],
		"name": "isNonceUsed",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

const callTimeout = 10 * time.Second

// GameHouse is the read-only claim contract client.
type GameHouse struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	address  common.Address
	log      *logrus.Logger
}

// NewGameHouse dials the chain RPC and binds the claim contract.
func NewGameHouse(rpcURL, contractAddress string, log *logrus.Logger) (*GameHouse, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid claim contract address: %s", contractAddress)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain RPC: %w", err)
	}

	contractABI, err := abi.JSON(strings.NewReader(gameHouseABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	address := common.HexToAddress(contractAddress)
	bound := bind.NewBoundContract(address, contractABI, client, client, client)

	log.WithField("contract", address.Hex()).Info("✅ Claim contract client initialized")

	return &GameHouse{
		client:   client,
		contract: bound,
		address:  address,
		log:      log,
	}, nil
}

// Close releases the RPC connection.
func (g *GameHouse) Close() {
	g.client.Close()
}

// NonceUsed reports whether the claim nonce was consumed on-chain for the
// wallet. The nonce string is keccak-hashed to the bytes32 the contract
// stores.
func (g *GameHouse) NonceUsed(ctx context.Context, wallet, nonce string) (bool, error) {
	if !common.IsHexAddress(wallet) {
		return false, fmt.Errorf("invalid wallet address: %s", wallet)
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var nonceHash [32]byte
	copy(nonceHash[:], gethcrypto.Keccak256([]byte(nonce)))

	var out []interface{}
	err := g.contract.Call(&bind.CallOpts{Context: callCtx}, &out, "isNonceUsed",
		common.HexToAddress(wallet), nonceHash)
	if err != nil {
		return false, fmt.Errorf("failed to query nonce: %w", err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("unexpected isNonceUsed output length: %d", len(out))
	}
	used, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isNonceUsed output type: %T", out[0])
	}
	return used, nil
}
