package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const poolABIJSON = `[{"inputs":[],"name":"slot0","outputs":[
{"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},
{"internalType":"int24","name":"tick","type":"int24"},
{"internalType":"uint16","name":"observationIndex","type":"uint16"},
{"internalType":"uint16","name":"observationCardinality","type":"uint16"},
{"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},
{"internalType":"uint8","name":"feeProtocol","type":"uint8"},
{"internalType":"bool","name":"unlocked","type":"bool"}],
"stateMutability":"view","type":"function"}]`

const oracleABIJSON = `[{"inputs":[
{"internalType":"address","name":"_pool","type":"address"},
{"internalType":"address","name":"_base","type":"address"},
{"internalType":"address","name":"_quote","type":"address"},
{"internalType":"uint32","name":"_period","type":"uint32"},
{"internalType":"bool","name":"_checkPeriod","type":"bool"}],
"name":"getTwap","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],
"stateMutability":"view","type":"function"}]`

const quoterABIJSON = `[
{"inputs":[
{"internalType":"address","name":"tokenIn","type":"address"},
{"internalType":"address","name":"tokenOut","type":"address"},
{"internalType":"uint24","name":"fee","type":"uint24"},
{"internalType":"uint256","name":"amountIn","type":"uint256"},
{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],
"name":"quoteExactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],
"stateMutability":"nonpayable","type":"function"},
{"inputs":[
{"internalType":"address","name":"tokenIn","type":"address"},
{"internalType":"address","name":"tokenOut","type":"address"},
{"internalType":"uint24","name":"fee","type":"uint24"},
{"internalType":"uint256","name":"amountOut","type":"uint256"},
{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],
"name":"quoteExactOutputSingle","outputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"}],
"stateMutability":"nonpayable","type":"function"}]`

const controllerABIJSON = `[
{"inputs":[{"internalType":"uint32","name":"_period","type":"uint32"}],"name":"getIndex",
"outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint32","name":"_period","type":"uint32"}],"name":"getDenormalizedMark",
"outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getExpectedNormalizationFactor",
"outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

var (
	poolABI       = mustABI(poolABIJSON)
	oracleABI     = mustABI(oracleABIJSON)
	quoterABI     = mustABI(quoterABIJSON)
	controllerABI = mustABI(controllerABIJSON)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
