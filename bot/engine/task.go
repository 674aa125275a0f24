package engine

import "github.com/hrygo/mediahub/store"

// maxAttempts bounds retries per task (first try included).
const maxAttempts = 3

// SendTask is one unit of work for the send workers: deliver one normalized
// message to one destination. The distributor materializes per-message state
// (signature, alias tag, reply anchor) at enqueue time so workers stay
// stateless.
type SendTask struct {
	Msg      *NormalizedMessage
	DestChat int64
	DestKind store.ChatKind

	// ReplyTo is the destination-local anchor message id; zero for none.
	ReplyTo int

	AliasTag  string
	Signature string

	// Edit is set when the task re-delivers an edited source message.
	Edit bool

	Attempt int
	// migrated guards the one re-enqueue allowed after a group migration.
	migrated bool
}
