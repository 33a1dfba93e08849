package domain

import "time"

// Signal is a three-way directional bias.
type Signal string

const (
	SignalBullish Signal = "BULLISH"
	SignalBearish Signal = "BEARISH"
	SignalNeutral Signal = "NEUTRAL"
)

type RSIZone string

const (
	RSIOverbought RSIZone = "OVERBOUGHT"
	RSIOversold   RSIZone = "OVERSOLD"
	RSINeutral    RSIZone = "NEUTRAL"
)

type MACD struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	Bias      Signal  `json:"bias"`
}

type BandPosition string

const (
	BandAboveUpper BandPosition = "ABOVE_UPPER"
	BandBelowLower BandPosition = "BELOW_LOWER"
	BandNearUpper  BandPosition = "NEAR_UPPER"
	BandNearLower  BandPosition = "NEAR_LOWER"
	BandMiddle     BandPosition = "MIDDLE"
)

type Bollinger struct {
	Upper     float64      `json:"upper"`
	Middle    float64      `json:"middle"`
	Lower     float64      `json:"lower"`
	PercentB  float64      `json:"percentB"`
	Bandwidth float64      `json:"bandwidth"`
	Position  BandPosition `json:"position"`
}

type PatternKind string

const (
	PatternDoji           PatternKind = "DOJI"
	PatternHammer         PatternKind = "HAMMER"
	PatternInvertedHammer PatternKind = "INVERTED_HAMMER"
	PatternShootingStar   PatternKind = "SHOOTING_STAR"
	PatternHangingMan     PatternKind = "HANGING_MAN"
	PatternMarubozu       PatternKind = "MARUBOZU"
	PatternNormal         PatternKind = "NORMAL"
)

// CandlePattern describes one classified candle. Percentages are relative to the candle range.
type CandlePattern struct {
	Time         time.Time   `json:"time"`
	Pattern      PatternKind `json:"pattern"`
	BodyPct      float64     `json:"bodyPct"`
	UpperWickPct float64     `json:"upperWickPct"`
	LowerWickPct float64     `json:"lowerWickPct"`
	Bullish      bool        `json:"bullish"`
}

type RejectionLevel struct {
	Kind     string  `json:"kind"` // SUPPORT or RESISTANCE
	Price    float64 `json:"price"`
	Strength string  `json:"strength"` // STRONG or MODERATE
}

type CandleAnalysis struct {
	Patterns        []CandlePattern  `json:"patterns"`
	Rejections      []RejectionLevel `json:"rejections"`
	AvgUpperWickPct float64          `json:"avgUpperWickPct"`
	AvgLowerWickPct float64          `json:"avgLowerWickPct"`
	BodyToWickRatio float64          `json:"bodyToWickRatio"`
}

type TrendLabel string

const (
	TrendStrongBullish TrendLabel = "STRONG_BULLISH"
	TrendBullish       TrendLabel = "BULLISH"
	TrendNeutral       TrendLabel = "NEUTRAL"
	TrendBearish       TrendLabel = "BEARISH"
	TrendStrongBearish TrendLabel = "STRONG_BEARISH"
)

func (t TrendLabel) IsBullish() bool { return t == TrendBullish || t == TrendStrongBullish }
func (t TrendLabel) IsBearish() bool { return t == TrendBearish || t == TrendStrongBearish }

type Trend struct {
	Label  TrendLabel `json:"label"`
	MAFast float64    `json:"maFast"`
	MASlow float64    `json:"maSlow"`
	GapPct float64    `json:"gapPct"`
}

// IndicatorSnapshot is recomputed every cycle. A nil pointer means the history was too
// short for that indicator and the signal must be skipped.
type IndicatorSnapshot struct {
	Symbol          string         `json:"symbol"`
	Price           float64        `json:"price"`
	EMA50           *float64       `json:"ema50"`
	EMA200          *float64       `json:"ema200"`
	EMASignal       Signal         `json:"emaSignal"`
	RSI             *float64       `json:"rsi"`
	RSIZone         RSIZone        `json:"rsiZone"`
	ATR             *float64       `json:"atr"`
	MACD            *MACD          `json:"macd"`
	Bollinger       *Bollinger     `json:"bollinger"`
	VWAP            *float64       `json:"vwap"`
	VWAPDistancePct *float64       `json:"vwapDistancePct"`
	Support         []float64      `json:"support"`
	Resistance      []float64      `json:"resistance"`
	Candles         CandleAnalysis `json:"candles"`
	Trend           Trend          `json:"trend"`
	DayChangePct    float64        `json:"dayChangePct"`
	WeekChangePct   float64        `json:"weekChangePct"`
	RangeWidthPct   float64        `json:"rangeWidthPct"`
	AvgVolume       float64        `json:"avgVolume"`
	CandleCount     int            `json:"candleCount"`
}

type DepthQuality string

const (
	DepthHigh   DepthQuality = "HIGH"
	DepthMedium DepthQuality = "MEDIUM"
	DepthLow    DepthQuality = "LOW"
)

type LiquidityZone struct {
	Side        string  `json:"side"` // bid or ask
	Price       float64 `json:"price"`
	Size        float64 `json:"size"`
	DistancePct float64 `json:"distancePct"`
}

type OrderBookDepth struct {
	MidPrice      float64         `json:"midPrice"`
	BidVolume     float64         `json:"bidVolume"`
	AskVolume     float64         `json:"askVolume"`
	Imbalance     float64         `json:"imbalance"`
	KeyBidLevels  []BookLevel     `json:"keyBidLevels"`
	KeyAskLevels  []BookLevel     `json:"keyAskLevels"`
	Quality       DepthQuality    `json:"quality"`
	LiquidityZone []LiquidityZone `json:"liquidityZones"`
}

type WhaleTrade struct {
	Side     string    `json:"side"`
	Price    float64   `json:"price"`
	Size     float64   `json:"size"`
	Notional float64   `json:"notional"`
	Time     time.Time `json:"time"`
}

type WhaleFlow struct {
	BuyNotional  float64      `json:"buyNotional"`
	SellNotional float64      `json:"sellNotional"`
	NetFlow      float64      `json:"netFlow"`
	Bias         Signal       `json:"bias"`
	Whales       []WhaleTrade `json:"whales"`
	WhaleCount   int          `json:"whaleCount"`
}
