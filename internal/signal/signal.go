package signal

import "sort"

// ---------------------------------------------------------------------------
// Signal Model -- weighted risk/opportunity observations about a token
// ---------------------------------------------------------------------------

// Type identifies what aspect of a token a signal describes. The string
// value is the wire name used in config weight overrides and journal rows.
type Type string

const (
	// Wallet behavior.
	TypeWalletAge              Type = "wallet_age"
	TypeWalletHistory          Type = "wallet_history"
	TypeWalletPriorPerformance Type = "wallet_prior_performance"
	TypeKnownDeployer          Type = "known_deployer"
	TypeKnownSniper            Type = "known_sniper"
	TypeWalletClustering       Type = "wallet_clustering"

	// Supply distribution.
	TypeSupplyDispersion    Type = "supply_dispersion"
	TypeConcentrationRisk   Type = "concentration_risk"
	TypeEarlyAccumulation   Type = "early_accumulation"
	TypeMintAuthority       Type = "mint_authority"
	TypeFreezeAuthority     Type = "freeze_authority"
	TypeHolderConcentration Type = "holder_concentration"

	// Order flow.
	TypeBuyTiming       Type = "buy_timing"
	TypeSellTiming      Type = "sell_timing"
	TypeBurstDetection  Type = "burst_detection"
	TypeWashTrading     Type = "wash_trading"
	TypeVelocityMetrics Type = "velocity_metrics"

	// Wallet profile.
	TypeTransactionSizeRatio Type = "transaction_size_ratio"
	TypeCoordinatedFunding   Type = "coordinated_funding"

	// Pump.fun specific.
	TypeDeployerPattern   Type = "deployer_pattern"
	TypeLiquiditySeeding  Type = "liquidity_seeding"
	TypeEarlySellPressure Type = "early_sell_pressure"
	TypeOrganicDemand     Type = "organic_demand"

	// Metadata.
	TypeNameQuality   Type = "name_quality"
	TypeSymbolQuality Type = "symbol_quality"
	TypeURIAnalysis   Type = "uri_analysis"

	// Early momentum (first seconds of trading).
	TypeVolumeSpike          Type = "volume_spike"
	TypeAccumulationPattern  Type = "accumulation_pattern"
	TypeFirstTradesQuality   Type = "first_trades_quality"
	TypeBondingCurvePosition Type = "bonding_curve_position"
	TypeCreatorBuyback       Type = "creator_buyback"
)

// Category groups signal types for per-category score breakdowns.
type Category string

const (
	CategoryWalletBehavior Category = "wallet_behavior"
	CategoryDistribution   Category = "distribution"
	CategoryOrderFlow      Category = "order_flow"
	CategoryWalletProfile  Category = "wallet_profile"
	CategoryPumpfun        Category = "pumpfun"
	CategoryMetadata       Category = "metadata"
	CategoryEarlyMomentum  Category = "early_momentum"
)

// typeInfo carries the static properties of a signal type.
type typeInfo struct {
	Weight   float64
	Category Category
	Hot      bool // cheap enough for the pre-buy hot path
}

// catalog is the authoritative signal type registry. Weights reflect how
// strongly each type historically separates rugs from runners; hot types
// must be computable from data already in hand (no RPC).
var catalog = map[Type]typeInfo{
	TypeWalletAge:              {1.2, CategoryWalletBehavior, true},
	TypeWalletHistory:          {1.0, CategoryWalletBehavior, false},
	TypeWalletPriorPerformance: {1.5, CategoryWalletBehavior, false},
	TypeKnownDeployer:          {2.0, CategoryWalletBehavior, true},
	TypeKnownSniper:            {1.5, CategoryWalletBehavior, true},
	TypeWalletClustering:       {1.0, CategoryWalletBehavior, false},

	TypeSupplyDispersion:    {1.0, CategoryDistribution, false},
	TypeConcentrationRisk:   {1.5, CategoryDistribution, false},
	TypeEarlyAccumulation:   {1.2, CategoryDistribution, false},
	TypeMintAuthority:       {2.5, CategoryDistribution, true},
	TypeFreezeAuthority:     {2.0, CategoryDistribution, true},
	TypeHolderConcentration: {1.5, CategoryDistribution, true},

	TypeBuyTiming:       {1.0, CategoryOrderFlow, false},
	TypeSellTiming:      {1.0, CategoryOrderFlow, false},
	TypeBurstDetection:  {1.3, CategoryOrderFlow, false},
	TypeWashTrading:     {1.8, CategoryOrderFlow, false},
	TypeVelocityMetrics: {1.0, CategoryOrderFlow, false},

	TypeTransactionSizeRatio: {0.8, CategoryWalletProfile, false},
	TypeCoordinatedFunding:   {1.5, CategoryWalletProfile, false},

	TypeDeployerPattern:   {1.5, CategoryPumpfun, false},
	TypeLiquiditySeeding:  {1.2, CategoryPumpfun, true},
	TypeEarlySellPressure: {1.4, CategoryPumpfun, false},
	TypeOrganicDemand:     {1.0, CategoryPumpfun, false},

	TypeNameQuality:   {0.5, CategoryMetadata, true},
	TypeSymbolQuality: {0.3, CategoryMetadata, true},
	TypeURIAnalysis:   {0.4, CategoryMetadata, true},

	TypeVolumeSpike:          {1.2, CategoryEarlyMomentum, true},
	TypeAccumulationPattern:  {1.3, CategoryEarlyMomentum, true},
	TypeFirstTradesQuality:   {1.0, CategoryEarlyMomentum, true},
	TypeBondingCurvePosition: {0.8, CategoryEarlyMomentum, true},
	TypeCreatorBuyback:       {1.0, CategoryEarlyMomentum, true},
}

// DefaultWeight returns the catalog weight for the type (1.0 for unknown).
func (t Type) DefaultWeight() float64 {
	if info, ok := catalog[t]; ok {
		return info.Weight
	}
	return 1.0
}

// TypeCategory returns the category the type belongs to.
func (t Type) TypeCategory() Category {
	if info, ok := catalog[t]; ok {
		return info.Category
	}
	return CategoryMetadata
}

// HotPath reports whether the type is cheap enough for pre-buy scoring.
func (t Type) HotPath() bool {
	if info, ok := catalog[t]; ok {
		return info.Hot
	}
	return false
}

// Valid reports whether the type is in the catalog.
func (t Type) Valid() bool {
	_, ok := catalog[t]
	return ok
}

// ParseType converts a wire name (e.g. from a config weight map) into a
// Type. Returns false for names not in the catalog.
func ParseType(s string) (Type, bool) {
	t := Type(s)
	return t, t.Valid()
}

// AllTypes returns every catalog type in deterministic (sorted) order.
func AllTypes() []Type {
	types := make([]Type, 0, len(catalog))
	for t := range catalog {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ---------------------------------------------------------------------------
// Signal value object
// ---------------------------------------------------------------------------

// Signal is a single scored observation. Value is directional (-1 worst,
// +1 best), Confidence expresses how much the producer trusts the value,
// and Weight is the type's importance in aggregation.
type Signal struct {
	Type       Type    `json:"type"`
	Value      float64 `json:"value"`      // [-1, 1]
	Confidence float64 `json:"confidence"` // [0, 1]
	Weight     float64 `json:"weight"`
	Reason     string  `json:"reason"`
	LatencyMs  int     `json:"latency_ms,omitempty"`
	Cached     bool    `json:"cached,omitempty"`
}

// New builds a signal with the type's default weight. Value and confidence
// are clamped into range so a buggy provider can never skew aggregation
// beyond one full signal's worth.
func New(t Type, value, confidence float64, reason string) Signal {
	return Signal{
		Type:       t,
		Value:      clamp(value, -1, 1),
		Confidence: clamp(confidence, 0, 1),
		Weight:     t.DefaultWeight(),
		Reason:     reason,
	}
}

// Neutral is a fully confident "nothing remarkable" observation.
func Neutral(t Type, reason string) Signal {
	return New(t, 0, 1.0, reason)
}

// ExtremeRisk is the strongest possible negative observation.
func ExtremeRisk(t Type, reason string) Signal {
	return New(t, -1.0, 1.0, reason)
}

// HighOpportunity is the strongest possible positive observation.
func HighOpportunity(t Type, reason string) Signal {
	return New(t, 1.0, 1.0, reason)
}

// Unavailable marks a signal whose producer could not run (timeout, missing
// data). Zero confidence keeps it out of the weighted aggregate while still
// recording that the check was attempted.
func Unavailable(t Type, reason string) Signal {
	return New(t, 0, 0, reason)
}

// WithLatency records how long the signal took to produce.
func (s Signal) WithLatency(ms int) Signal {
	s.LatencyMs = ms
	return s
}

// WithCached marks the signal as derived from cached data.
func (s Signal) WithCached() Signal {
	s.Cached = true
	return s
}

// WithWeight overrides the catalog weight.
func (s Signal) WithWeight(w float64) Signal {
	s.Weight = w
	return s
}

// EffectiveContribution is the signal's pull on the aggregate score.
func (s Signal) EffectiveContribution() float64 {
	return s.Value * s.Weight * s.Confidence
}

// IsRisk reports whether the signal points negative.
func (s Signal) IsRisk() bool {
	return s.Value < 0
}

// IsOpportunity reports whether the signal points positive.
func (s Signal) IsOpportunity() bool {
	return s.Value > 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
