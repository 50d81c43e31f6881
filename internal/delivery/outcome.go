package delivery

// OutcomeKind classifies the result of one delivery attempt. The consumer
// maps it to queue ack/nack: Sent, Skipped and Terminal acknowledge the
// job; Retryable rejects it with requeue.
type OutcomeKind int

const (
	// OutcomeSent: the message went out and the recipient was marked SENT.
	OutcomeSent OutcomeKind = iota
	// OutcomeSkipped: nothing to do (already sent, or recipient gone).
	OutcomeSkipped
	// OutcomeRetryable: the attempt failed but the job should be
	// redelivered; the attempt is already recorded on the recipient.
	OutcomeRetryable
	// OutcomeTerminal: retries are exhausted and the recipient is FAILED.
	OutcomeTerminal
)

type Outcome struct {
	Kind      OutcomeKind
	MessageID string
	Err       error
}

func Sent(messageID string) Outcome { return Outcome{Kind: OutcomeSent, MessageID: messageID} }
func Skipped() Outcome              { return Outcome{Kind: OutcomeSkipped} }
func Retryable(err error) Outcome   { return Outcome{Kind: OutcomeRetryable, Err: err} }
func Terminal(err error) Outcome    { return Outcome{Kind: OutcomeTerminal, Err: err} }

// Requeue reports whether the queue should redeliver the job.
func (o Outcome) Requeue() bool { return o.Kind == OutcomeRetryable }
