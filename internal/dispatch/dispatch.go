// Package dispatch models the external value-transfer collaborator. A
// transfer is a fire-and-forget request emitted only after the ledger has
// committed its bookkeeping; its success or failure is observed later, out
// of band. There is no automatic compensation: a transfer that fails after
// the ledger was decremented leaves the funds lost in flight, to be
// reconciled by a higher-level recovery procedure.
package dispatch

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"casino-core/internal/model"
)

// Request is one outbound value movement.
type Request struct {
	ID        uuid.UUID       `json:"id"`
	Token     model.TokenID   `json:"token"`
	Recipient model.AccountID `json:"recipient"`
	Amount    uint64          `json:"amount"`
	Memo      string          `json:"memo"`
}

// NewRequest builds a request with a fresh identifier.
func NewRequest(token model.TokenID, recipient model.AccountID, amount uint64, memo string) Request {
	return Request{
		ID:        uuid.New(),
		Token:     token,
		Recipient: recipient,
		Amount:    amount,
		Memo:      memo,
	}
}

// Dispatcher submits an asynchronous outbound transfer. Callers must have
// zeroed or decremented the relevant ledger field before calling.
type Dispatcher interface {
	Transfer(req Request)
}

// Sender performs the actual token-contract call for one request.
type Sender interface {
	Send(ctx context.Context, req Request) error
}

// Callback observes a transfer's eventual outcome; err is nil on success.
type Callback func(req Request, err error)

// AsyncDispatcher hands each request to the sender on its own goroutine and
// reports the outcome through the callback and the log.
type AsyncDispatcher struct {
	sender   Sender
	onResult Callback
}

// NewAsync creates a dispatcher over the given sender. A nil callback only
// logs outcomes.
func NewAsync(sender Sender, onResult Callback) *AsyncDispatcher {
	return &AsyncDispatcher{sender: sender, onResult: onResult}
}

// Transfer submits the request and returns immediately.
func (d *AsyncDispatcher) Transfer(req Request) {
	go func() {
		err := d.sender.Send(context.Background(), req)
		event := log.Info()
		if err != nil {
			event = log.Error().Err(err)
		}
		event.
			Str("transfer_id", req.ID.String()).
			Str("token", string(req.Token)).
			Str("recipient", string(req.Recipient)).
			Uint64("amount", req.Amount).
			Str("memo", req.Memo).
			Msg("Transfer dispatched")
		if d.onResult != nil {
			d.onResult(req, err)
		}
	}()
}

// LogSender is the default sender when no token bridge is wired: it accepts
// every request and only records it.
type LogSender struct{}

// Send logs the request and succeeds.
func (LogSender) Send(_ context.Context, req Request) error {
	log.Debug().
		Str("transfer_id", req.ID.String()).
		Str("token", string(req.Token)).
		Uint64("amount", req.Amount).
		Msg("No token bridge configured, transfer recorded only")
	return nil
}

// Recorder is a synchronous test double capturing every request.
type Recorder struct {
	Requests []Request
}

// Transfer appends the request.
func (r *Recorder) Transfer(req Request) {
	r.Requests = append(r.Requests, req)
}

// Last returns the most recent request, or a zero request when none exist.
func (r *Recorder) Last() Request {
	if len(r.Requests) == 0 {
		return Request{}
	}
	return r.Requests[len(r.Requests)-1]
}
