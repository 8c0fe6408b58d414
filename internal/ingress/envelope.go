package ingress

// Envelope is the WhatsApp Business webhook payload. Only the fields
// the pipeline consumes are modelled.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	Changes []Change `json:"changes"`
}

type Change struct {
	Value Value `json:"value"`
}

type Value struct {
	Messages []InboundMessage `json:"messages"`
	Statuses []StatusUpdate   `json:"statuses"`
	Contacts []WebhookContact `json:"contacts"`
}

// InboundMessage is one message inside a webhook delivery. ID is the
// channel-global dedup key.
type InboundMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// StatusUpdate reports delivery progress for an outbound message.
type StatusUpdate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}
