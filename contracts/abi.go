package contracts

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Only the view methods the sweeps use are declared.

const LpSugarABI = `[
	{"name":"count","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"all","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_limit","type":"uint256"},{"name":"_offset","type":"uint256"},{"name":"_filter","type":"uint256"}],
	 "outputs":[{"name":"","type":"tuple[]","components":[
		{"name":"lp","type":"address"},
		{"name":"symbol","type":"string"},
		{"name":"decimals","type":"uint8"},
		{"name":"liquidity","type":"uint256"},
		{"name":"type","type":"int24"},
		{"name":"tick","type":"int24"},
		{"name":"sqrt_ratio","type":"uint160"},
		{"name":"token0","type":"address"},
		{"name":"reserve0","type":"uint256"},
		{"name":"staked0","type":"uint256"},
		{"name":"token1","type":"address"},
		{"name":"reserve1","type":"uint256"},
		{"name":"staked1","type":"uint256"},
		{"name":"gauge","type":"address"},
		{"name":"gauge_liquidity","type":"uint256"},
		{"name":"gauge_alive","type":"bool"},
		{"name":"fee","type":"address"},
		{"name":"bribe","type":"address"},
		{"name":"factory","type":"address"},
		{"name":"emissions","type":"uint256"},
		{"name":"emissions_token","type":"address"},
		{"name":"emissions_cap","type":"uint256"},
		{"name":"pool_fee","type":"uint256"},
		{"name":"unstaked_fee","type":"uint256"},
		{"name":"token0_fees","type":"uint256"},
		{"name":"token1_fees","type":"uint256"},
		{"name":"locked","type":"uint256"},
		{"name":"emerging","type":"uint256"},
		{"name":"created_at","type":"uint32"},
		{"name":"nfpm","type":"address"},
		{"name":"alm","type":"address"},
		{"name":"root","type":"address"}
	 ]}]},
	{"name":"tokens","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_limit","type":"uint256"},{"name":"_offset","type":"uint256"},{"name":"_account","type":"address"},{"name":"_addresses","type":"address[]"}],
	 "outputs":[{"name":"","type":"tuple[]","components":[
		{"name":"token_address","type":"address"},
		{"name":"symbol","type":"string"},
		{"name":"decimals","type":"uint8"},
		{"name":"account_balance","type":"uint256"},
		{"name":"listed","type":"bool"},
		{"name":"emerging","type":"bool"}
	 ]}]},
	{"name":"positions","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_limit","type":"uint256"},{"name":"_offset","type":"uint256"},{"name":"_account","type":"address"}],
	 "outputs":[{"name":"","type":"tuple[]","components":[
		{"name":"id","type":"uint256"},
		{"name":"lp","type":"address"},
		{"name":"liquidity","type":"uint256"},
		{"name":"staked","type":"uint256"},
		{"name":"amount0","type":"uint256"},
		{"name":"amount1","type":"uint256"},
		{"name":"staked0","type":"uint256"},
		{"name":"staked1","type":"uint256"},
		{"name":"unstaked_earned0","type":"uint256"},
		{"name":"unstaked_earned1","type":"uint256"},
		{"name":"emissions_earned","type":"uint256"},
		{"name":"tick_lower","type":"int24"},
		{"name":"tick_upper","type":"int24"},
		{"name":"sqrt_ratio_lower","type":"uint160"},
		{"name":"sqrt_ratio_upper","type":"uint160"},
		{"name":"locker","type":"address"},
		{"name":"unlocks_at","type":"uint32"},
		{"name":"alm","type":"address"}
	 ]}]}
]`

const rewardComponents = `[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}]`

const lpEpochComponents = `[
	{"name":"ts","type":"uint256"},
	{"name":"lp","type":"address"},
	{"name":"votes","type":"uint256"},
	{"name":"emissions","type":"uint256"},
	{"name":"bribes","type":"tuple[]","components":` + rewardComponents + `},
	{"name":"fees","type":"tuple[]","components":` + rewardComponents + `}
]`

const RewardsSugarABI = `[
	{"name":"epochsLatest","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_limit","type":"uint256"},{"name":"_offset","type":"uint256"}],
	 "outputs":[{"name":"","type":"tuple[]","components":` + lpEpochComponents + `}]},
	{"name":"epochsByAddress","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_limit","type":"uint256"},{"name":"_offset","type":"uint256"},{"name":"_address","type":"address"}],
	 "outputs":[{"name":"","type":"tuple[]","components":` + lpEpochComponents + `}]},
	{"name":"rewards","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_limit","type":"uint256"},{"name":"_offset","type":"uint256"},{"name":"_venft_id","type":"uint256"}],
	 "outputs":[{"name":"","type":"tuple[]","components":[
		{"name":"venft_id","type":"uint256"},
		{"name":"lp","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"token","type":"address"},
		{"name":"fee","type":"address"},
		{"name":"bribe","type":"address"}
	 ]}]}
]`

const lpVoteComponents = `[{"name":"lp","type":"address"},{"name":"weight","type":"uint256"}]`

const VeSugarABI = `[
	{"name":"all","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_limit","type":"uint256"},{"name":"_offset","type":"uint256"}],
	 "outputs":[{"name":"","type":"tuple[]","components":[
		{"name":"id","type":"uint256"},
		{"name":"account","type":"address"},
		{"name":"decimals","type":"uint8"},
		{"name":"amount","type":"uint128"},
		{"name":"voting_amount","type":"uint256"},
		{"name":"governance_amount","type":"uint256"},
		{"name":"rebase_amount","type":"uint256"},
		{"name":"expires_at","type":"uint256"},
		{"name":"voted_at","type":"uint256"},
		{"name":"votes","type":"tuple[]","components":` + lpVoteComponents + `},
		{"name":"token","type":"address"},
		{"name":"permanent","type":"bool"},
		{"name":"delegate_id","type":"uint256"},
		{"name":"managed_id","type":"uint256"}
	 ]}]}
]`

const RelaySugarABI = `[
	{"name":"all","type":"function","stateMutability":"view",
	 "inputs":[{"name":"_account","type":"address"}],
	 "outputs":[{"name":"","type":"tuple[]","components":[
		{"name":"venft_id","type":"uint256"},
		{"name":"decimals","type":"uint8"},
		{"name":"amount","type":"uint128"},
		{"name":"voting_amount","type":"uint256"},
		{"name":"used_voting_amount","type":"uint256"},
		{"name":"voted_at","type":"uint256"},
		{"name":"votes","type":"tuple[]","components":` + lpVoteComponents + `},
		{"name":"token","type":"address"},
		{"name":"compounded","type":"uint256"},
		{"name":"withdrawable","type":"uint256"},
		{"name":"run_at","type":"uint256"},
		{"name":"manager","type":"address"},
		{"name":"relay","type":"address"},
		{"name":"inactive","type":"bool"},
		{"name":"name","type":"string"},
		{"name":"account_venfts","type":"tuple[]","components":[
			{"name":"id","type":"uint256"},
			{"name":"amount","type":"uint256"},
			{"name":"earned","type":"uint256"}
		]}
	 ]}]}
]`

const OracleABI = `[
	{"name":"getManyRatesToEthWithCustomConnectors","type":"function","stateMutability":"view",
	 "inputs":[{"name":"srcTokens","type":"address[]"},{"name":"useWrappers","type":"bool"},{"name":"customConnectors","type":"address[]"},{"name":"thresholdFilter","type":"uint256"}],
	 "outputs":[{"name":"rates","type":"uint256[]"}]}
]`

const ERC20ABI = `[
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

var (
	lpSugarABI      = mustParse("LpSugar", LpSugarABI)
	rewardsSugarABI = mustParse("RewardsSugar", RewardsSugarABI)
	veSugarABI      = mustParse("VeSugar", VeSugarABI)
	relaySugarABI   = mustParse("RelaySugar", RelaySugarABI)
	oracleABI       = mustParse("Oracle", OracleABI)
	erc20ABI        = mustParse("ERC20", ERC20ABI)
)

func mustParse(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("contracts: invalid %s ABI: %v", name, err))
	}
	return parsed
}
