package model

// ParsedContent is the output of the content parser: the structured
// commands, addresses, domains and language directives extracted from
// one inbound message body.
type ParsedContent struct {
	Commands    []string
	LangCodes   []string
	XMPPJIDs    []string
	APAddrs     []string
	Domains     []string
	ParsedBody  string
	FlagShortAP bool
}

// Dispatch is the normalized event both listeners convert their native
// event into before handing it to the shared core pipeline.
type Dispatch struct {
	Side    Side
	Sender  string
	Body    string
	FromID  string // sender-side message/status id, if any
	ReplyID string // id the sender's client says it is replying to, if any
}
