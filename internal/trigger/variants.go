package trigger

import "github.com/shopspring/decimal"

var (
	CollateralAndPerformance = Rules{
		Name:        "CollateralAndPerformance",
		Performance: true,
	}
	Collateral175250 = Rules{
		Name:       "Collateral175250",
		UpperBound: decimal.RequireFromString("2.5"),
	}
	Collateral175235 = Rules{
		Name:       "Collateral175235",
		UpperBound: decimal.RequireFromString("2.35"),
	}
	TwapCollateral175235 = Rules{
		Name:       "TwapCollateral175235",
		UpperBound: decimal.RequireFromString("2.35"),
		Signal:     SignalTWAP,
	}
	ValueTwapCollateral175235 = Rules{
		Name:       "ValueTwapCollateral175235",
		UpperBound: decimal.RequireFromString("2.35"),
		Signal:     SignalTWAP,
	}
	GrowthCollateral175250 = Rules{
		Name:       "GrowthCollateral175250",
		UpperBound: decimal.RequireFromString("2.5"),
		Growth:     true,
	}
	GrowthCollateral175235 = Rules{
		Name:       "GrowthCollateral175235",
		UpperBound: decimal.RequireFromString("2.35"),
		Growth:     true,
	}
)

var variants = []Rules{
	CollateralAndPerformance,
	Collateral175250,
	Collateral175235,
	TwapCollateral175235,
	ValueTwapCollateral175235,
	GrowthCollateral175250,
	GrowthCollateral175235,
}

func Lookup(name string) (Rules, bool) {
	for _, v := range variants {
		if v.Name == name {
			return v, true
		}
	}
	return Rules{}, false
}

func Names() []string {
	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = v.Name
	}
	return names
}
