package communication

// MessageHandler processes one decoded request and produces the reply. A
// non-nil error indicates the handler itself failed; operation-level failures
// are reported through the Response code instead.
type MessageHandler func(msg Message) (*Response, error)
