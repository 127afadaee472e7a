// Package settlement applies matched trades to orders and the balance ledger.
package settlement

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"exchange/internal/event"
	"exchange/internal/model"
	"exchange/internal/model/enum"
	"exchange/internal/notify"
	"exchange/internal/obs"
	"exchange/internal/store"
	"exchange/pkg/exception"
)

// Engine settles trade events. Each trade is one database transaction.
type Engine struct {
	store   *store.Store
	pub     notify.Publisher
	metrics *obs.Metrics
}

func NewEngine(s *store.Store, pub notify.Publisher, metrics *obs.Metrics) *Engine {
	return &Engine{store: s, pub: pub, metrics: metrics}
}

// Handle decodes a raw trade event and settles it. It is the event-log handler
// of the settlement stream.
func (e *Engine) Handle(ctx context.Context, data []byte) error {
	t, err := event.DecodeTrade(data)
	if err != nil {
		return err
	}
	return e.Settle(ctx, t)
}

// Settle applies t exactly once. A trade id seen before is reported as
// exception.ErrDuplicateTrade without touching any row.
func (e *Engine) Settle(ctx context.Context, t event.Trade) error {
	if e == nil || e.store == nil {
		return exception.ErrNilInstance
	}

	amounts, err := t.Amounts()
	if err != nil {
		return err
	}

	err = e.store.Transaction(ctx, func(tx *store.Store) error {
		return settle(ctx, tx, t, amounts)
	})
	if err != nil {
		if exception.IsPermanent(err) {
			logs.Warnf("settlement skipped trade %s (%s maker %s taker %s), err: %+v", t.TradeID, t.Symbol, t.MakerOrderID, t.TakerOrderID, err)
		}
		return err
	}

	e.publishTape(ctx, t)
	return nil
}

func settle(ctx context.Context, tx *store.Store, t event.Trade, a event.TradeAmounts) error {
	maker, taker, err := lockOrders(ctx, tx, t.MakerOrderID, t.TakerOrderID)
	if err != nil {
		return err
	}

	// Checked after the order locks so a concurrent redelivery waits for the
	// first unit and then sees its trade row.
	seen, err := tx.TradeExists(ctx, t.TradeID)
	if err != nil {
		return err
	}
	if seen {
		return errors.Wrapf(exception.ErrDuplicateTrade, "trade %s", t.TradeID)
	}

	if maker.Side == taker.Side {
		return errors.Wrapf(exception.ErrSideMismatch, "trade %s both %s", t.TradeID, maker.Side)
	}
	if buyerIsMaker := maker.Side == enum.OrderSideBuy; buyerIsMaker != t.IsBuyerMaker {
		logs.Warnf("settlement trade %s isBuyerMaker=%t disagrees with maker order side %s, using order sides", t.TradeID, t.IsBuyerMaker, maker.Side)
	}

	for _, o := range []*model.Order{maker, taker} {
		if err := o.ApplyFill(a.Quantity); err != nil {
			return errors.Wrapf(err, "fill order %s", o.ID)
		}
		if err := tx.SaveFill(ctx, o); err != nil {
			return err
		}
	}

	trade := &model.Trade{
		ID:            t.TradeID,
		Symbol:        t.Symbol,
		Price:         a.Price,
		Quantity:      a.Quantity,
		QuoteQuantity: a.QuoteQty,
		MakerOrderID:  t.MakerOrderID,
		TakerOrderID:  t.TakerOrderID,
		MakerUserID:   t.MakerUserID,
		TakerUserID:   t.TakerUserID,
		IsBuyerMaker:  t.IsBuyerMaker,
		MakerFee:      a.MakerFee,
		TakerFee:      a.TakerFee,
		ExecutedAt:    t.Time(),
	}
	if err := tx.InsertTrade(ctx, trade); err != nil {
		return err
	}

	base, quote := t.Assets()
	ref := store.TradeRef(t.TradeID)
	parties := []party{
		{order: maker, userID: t.MakerUserID, fee: a.MakerFee},
		{order: taker, userID: t.TakerUserID, fee: a.TakerFee},
	}
	for _, p := range parties {
		if err := p.leg(base, quote, a).apply(ctx, tx, ref); err != nil {
			return err
		}
	}
	return nil
}

// lockOrders locks both orders in id order so two units sharing a pair of
// orders can never wait on each other.
func lockOrders(ctx context.Context, tx *store.Store, makerID, takerID string) (maker, taker *model.Order, err error) {
	first, second := makerID, takerID
	if second < first {
		first, second = second, first
	}

	locked := make(map[string]*model.Order, 2)
	for _, id := range []string{first, second} {
		if _, ok := locked[id]; ok {
			continue
		}
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "order %s", id)
		}
		locked[id] = o
	}
	return locked[makerID], locked[takerID], nil
}

type party struct {
	order  *model.Order
	userID string
	fee    decimal.Decimal
}

// leg is one party's side of the exchange: what it receives into available
// and what it pays out of locked.
type leg struct {
	userID       string
	receiveAsset string
	receive      decimal.Decimal
	fee          decimal.Decimal
	payAsset     string
	pay          decimal.Decimal
}

// leg resolves what the party receives and pays from its order side: a buyer
// receives base and pays quote, a seller the reverse.
func (p party) leg(base, quote string, a event.TradeAmounts) leg {
	l := leg{userID: p.userID, fee: p.fee}
	if p.order.Side == enum.OrderSideBuy {
		l.receiveAsset, l.receive = base, a.Quantity
		l.payAsset, l.pay = quote, a.QuoteQty
	} else {
		l.receiveAsset, l.receive = quote, a.QuoteQty
		l.payAsset, l.pay = base, a.Quantity
	}
	return l
}

func (l leg) apply(ctx context.Context, tx *store.Store, ref store.Reference) error {
	if err := tx.Credit(ctx, l.userID, l.receiveAsset, l.receive, ref); err != nil {
		return err
	}
	if err := tx.DebitLocked(ctx, l.userID, l.payAsset, l.pay, ref); err != nil {
		return err
	}
	if l.fee.IsPositive() {
		if err := tx.ChargeFee(ctx, l.userID, l.receiveAsset, l.fee, ref); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) publishTape(ctx context.Context, t event.Trade) {
	if e.pub == nil {
		return
	}
	side := string(enum.OrderSideBuy)
	if t.IsBuyerMaker {
		side = string(enum.OrderSideSell)
	}
	err := notify.PublishTrade(ctx, e.pub, t.Symbol, notify.TradeTape{
		ID:        t.TradeID,
		Price:     t.Price,
		Quantity:  t.Quantity,
		Side:      side,
		Timestamp: t.ExecutedAt,
	})
	if err != nil {
		e.metrics.IncNotifyFailure()
		logs.Errorf("settlement publish trade %s, err: %+v", t.TradeID, err)
	}
}
