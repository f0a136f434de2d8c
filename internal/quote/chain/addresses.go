package chain

import (
	"math/big"

	"crab-rebase-sim/internal/quote"

	"github.com/ethereum/go-ethereum/common"
)

type Addresses struct {
	Controller    common.Address
	Oracle        common.Address
	Quoter        common.Address
	WETH          common.Address
	OSQTH         common.Address
	USDC          common.Address
	WETHUSDCPool  common.Address
	OSQTHWETHPool common.Address
}

// Mainnet holds the Squeeth and Uniswap V3 deployments on Ethereum mainnet.
var Mainnet = Addresses{
	Controller:    common.HexToAddress("0x64187ae08781B09368e6253F9E94951243A493D5"),
	Oracle:        common.HexToAddress("0x65D66c76447ccB45dAf1e8044e918fA786A483A1"),
	Quoter:        common.HexToAddress("0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6"),
	WETH:          common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"),
	OSQTH:         common.HexToAddress("0xf1B99e3E573A1a9C5E6B2Ce818b617F0E664E86B"),
	USDC:          common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
	WETHUSDCPool:  common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8"),
	OSQTHWETHPool: common.HexToAddress("0x82c427AdFDf2d245Ec51D8046b41c4ee87F0d29C"),
}

const (
	poolFee     = 3000
	indexPeriod = 1
)

var (
	poolFeeBig   = big.NewInt(poolFee)
	noPriceLimit = big.NewInt(0)
)

type poolRef struct {
	pool         common.Address
	base         common.Address
	quote        common.Address
	decimalsDiff int32
}

func (a Addresses) pool(pair quote.Pair) (poolRef, bool) {
	switch pair {
	case quote.PairWETHUSDC:
		return poolRef{pool: a.WETHUSDCPool, base: a.WETH, quote: a.USDC, decimalsDiff: 12}, true
	case quote.PairOSQTHWETH:
		return poolRef{pool: a.OSQTHWETHPool, base: a.OSQTH, quote: a.WETH, decimalsDiff: 0}, true
	}
	return poolRef{}, false
}

func (a Addresses) token(t quote.Token) (common.Address, bool) {
	switch t {
	case quote.TokenWETH:
		return a.WETH, true
	case quote.TokenOSQTH:
		return a.OSQTH, true
	}
	return common.Address{}, false
}
