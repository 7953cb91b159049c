package models

import "time"

// Kind selects which record family a pipeline run operates on. The value
// doubles as the folder name under the data root ("bbo" or "trade").
type Kind string

const (
	KindQuote Kind = "bbo"
	KindTrade Kind = "trade"
)

func (k Kind) Valid() bool {
	return k == KindQuote || k == KindTrade
}

func (k Kind) String() string {
	return string(k)
}

// Canonical column names as they appear in the source CSV headers and in the
// produced datasets. The serial-date column is dropped after temporal
// normalization; Index and Stock are appended by the pipeline.
const (
	ColSerialTime  = "xltime"
	ColIndex       = "index"
	ColStock       = "Stock"
	ColBidPrice    = "bid-price"
	ColAskPrice    = "ask-price"
	ColBidVolume   = "bid-volume"
	ColAskVolume   = "ask-volume"
	ColTradePrice  = "trade-price"
	ColTradeVolume = "trade-volume"
	ColTradeRaw    = "trade-rawflag"
	ColTradeFlag   = "trade-stringflag"
)

// UncategorizedTrade is the classification tag of ordinary (non-special)
// trade prints in the source feed.
const UncategorizedTrade = "uncategorized"

// Columns returns the canonical dataset column order for a kind, as produced
// by a full pipeline run.
func (k Kind) Columns() []string {
	if k == KindTrade {
		return []string{ColIndex, ColStock, ColTradePrice, ColTradeVolume, ColTradeRaw, ColTradeFlag}
	}
	return []string{ColIndex, ColStock, ColBidPrice, ColAskPrice, ColBidVolume, ColAskVolume}
}

// StringColumns lists the source columns that are textual rather than
// numeric. Everything else in a member CSV is parsed as float64.
func (k Kind) StringColumns() map[string]bool {
	if k == KindTrade {
		return map[string]bool{ColTradeFlag: true}
	}
	return map[string]bool{}
}

// QuoteRow is the parquet projection of one normalized BBO record.
type QuoteRow struct {
	Timestamp int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	Stock     string  `parquet:"name=stock, type=BYTE_ARRAY, convertedtype=UTF8"`
	BidPrice  float64 `parquet:"name=bid_price, type=DOUBLE"`
	AskPrice  float64 `parquet:"name=ask_price, type=DOUBLE"`
	BidVolume float64 `parquet:"name=bid_volume, type=DOUBLE"`
	AskVolume float64 `parquet:"name=ask_volume, type=DOUBLE"`
}

// TradeRow is the parquet projection of one normalized trade record.
type TradeRow struct {
	Timestamp int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	Stock     string  `parquet:"name=stock, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price     float64 `parquet:"name=price, type=DOUBLE"`
	Volume    float64 `parquet:"name=volume, type=DOUBLE"`
}

// RunReport summarizes one ingestion run for logging and metrics.
type RunReport struct {
	RunID          string    `json:"run_id"`
	Kind           Kind      `json:"kind"`
	TickersWanted  int       `json:"tickers_wanted"`
	TickersKept    int       `json:"tickers_kept"`
	MembersDecoded int       `json:"members_decoded"`
	MembersFailed  int       `json:"members_failed"`
	RowsRetained   int       `json:"rows_retained"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
