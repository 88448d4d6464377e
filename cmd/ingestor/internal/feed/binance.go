package feed

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/vineet4007/crypto-streaming-platform/pkg/models"
)

// errControlFrame marks frames that are valid protocol traffic but not
// trades (subscription acks, result envelopes). They are not malformed.
var errControlFrame = errors.New("control frame")

// tradeFrame is the raw Binance trade stream payload:
//
//	{"e":"trade","s":"BTCUSDT","t":12345,"p":"65000.10","q":"0.002","T":1634567890123}
//
// Price and quantity arrive as strings; the validator tags reject frames
// with missing fields or non-numeric amounts before any conversion.
type tradeFrame struct {
	Event    string `json:"e"`
	Symbol   string `json:"s" validate:"required"`
	TradeID  int64  `json:"t"`
	Price    string `json:"p" validate:"required,numeric"`
	Quantity string `json:"q" validate:"required,numeric"`
	Time     int64  `json:"T" validate:"required,gt=0"`

	// set on subscription acks ({"result":null,"id":1}), never on trades
	AckID *int64 `json:"id"`
}

// Parser turns raw feed frames into canonical trade events.
type Parser struct {
	validate *validator.Validate
	source   string
}

func NewParser(source string) *Parser {
	return &Parser{
		validate: validator.New(),
		source:   source,
	}
}

// Parse decodes one frame. It returns errControlFrame for non-trade
// traffic; any other error means the frame is malformed and must be
// dropped and counted, never forwarded.
func (p *Parser) Parse(data []byte) (models.TradeEvent, error) {
	var frame tradeFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return models.TradeEvent{}, fmt.Errorf("decode frame: %w", err)
	}

	if frame.Event != "" && frame.Event != "trade" {
		return models.TradeEvent{}, errControlFrame
	}
	if frame.Event == "" && frame.AckID != nil {
		return models.TradeEvent{}, errControlFrame
	}

	if err := p.validate.Struct(&frame); err != nil {
		return models.TradeEvent{}, fmt.Errorf("validate frame: %w", err)
	}

	price, err := decimal.NewFromString(frame.Price)
	if err != nil {
		return models.TradeEvent{}, fmt.Errorf("parse price: %w", err)
	}
	quantity, err := decimal.NewFromString(frame.Quantity)
	if err != nil {
		return models.TradeEvent{}, fmt.Errorf("parse quantity: %w", err)
	}

	event := models.TradeEvent{
		Symbol:    frame.Symbol,
		Price:     price,
		Quantity:  quantity,
		EventTime: frame.Time,
		Source:    p.source,
	}
	if frame.TradeID > 0 {
		event.IngestID = p.source + "-" + strconv.FormatInt(frame.TradeID, 10)
	}

	event.Normalize()
	if err := event.Validate(); err != nil {
		return models.TradeEvent{}, fmt.Errorf("invalid trade: %w", err)
	}
	return event, nil
}
