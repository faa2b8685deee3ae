package protocol

import (
	"strconv"
	"strings"
)

// Request is one parsed client record: VERB REQ_ID k1=v1 k2=v2 ...
type Request struct {
	Verb    string
	ReqID   string
	Payload map[string]string
}

// ParseError is returned by Parse for a malformed record. Per spec the
// codec reports these as ERR 0 bad_request rather than dropping the
// connection.
type ParseError struct{ Msg string }

func (e *ParseError) Error() string { return e.Msg }

// Parse splits a record into verb, request id and payload tokens. VERB
// and REQ_ID must be non-empty and whitespace-free; payload tokens are
// split on the first '=' only, so a value may itself contain '='.
func Parse(record string) (Request, error) {
	fields := strings.Fields(record)
	if len(fields) < 2 {
		return Request{}, &ParseError{Msg: "malformed record"}
	}

	req := Request{
		Verb:    fields[0],
		ReqID:   fields[1],
		Payload: make(map[string]string, len(fields)-2),
	}
	for _, tok := range fields[2:] {
		i := strings.IndexByte(tok, '=')
		if i <= 0 {
			return Request{}, &ParseError{Msg: "malformed payload token"}
		}
		req.Payload[tok[:i]] = tok[i+1:]
	}
	return req, nil
}

// Require fetches each key in order, returning ok=false on the first
// missing one (handlers use this to emit ERR 400 missing_fields).
func (r Request) Require(keys ...string) (values []string, ok bool) {
	values = make([]string, len(keys))
	for i, k := range keys {
		v, present := r.Payload[k]
		if !present {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// Optional fetches a key, returning def if absent.
func (r Request) Optional(key, def string) string {
	if v, ok := r.Payload[key]; ok {
		return v
	}
	return def
}

// EncodeOK serialises a successful response: "OK REQ_ID k1=v1 k2=v2 ...".
func EncodeOK(reqID string, payload ...KV) string {
	var b strings.Builder
	b.WriteString("OK ")
	b.WriteString(reqID)
	for _, kv := range payload {
		b.WriteByte(' ')
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(kv.Value)
	}
	return b.String()
}

// EncodeErr serialises an error response: "ERR REQ_ID CODE MESSAGE".
func EncodeErr(reqID string, code int, message string) string {
	var b strings.Builder
	b.WriteString("ERR ")
	b.WriteString(reqID)
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(code))
	b.WriteByte(' ')
	b.WriteString(message)
	return b.String()
}

// EncodePush serialises a server-initiated push: "PUSH VERB k=v ...".
// Pushes carry no REQ_ID; they are not responses.
func EncodePush(verb string, payload ...KV) string {
	var b strings.Builder
	b.WriteString("PUSH ")
	b.WriteString(verb)
	for _, kv := range payload {
		b.WriteByte(' ')
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(kv.Value)
	}
	return b.String()
}

// KV is one response/push payload token.
type KV struct {
	Key   string
	Value string
}

func Kv(key, value string) KV { return KV{Key: key, Value: value} }
