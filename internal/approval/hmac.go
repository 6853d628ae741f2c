package approval

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Payload prefixes recognized by the reference verifier. Anything else is
// classified KindNone.
var (
	prefixOnChain  = []byte("onchain:")
	prefixOffChain = []byte("hmac:")
)

// Reference is the reference Verifier. On-chain approvals are ticket IDs
// registered ahead of the transfer; off-chain approvals are an HMAC-SHA256
// tag over the ticket ID under a shared secret. This is a stand-in for a real
// signature scheme, which deployments supply behind the Verifier port.
type Reference struct {
	secret []byte

	mu      sync.RWMutex
	tickets map[string]struct{}
}

// NewReference builds a verifier with the given off-chain shared secret.
func NewReference(secret []byte) *Reference {
	return &Reference{
		secret:  secret,
		tickets: make(map[string]struct{}),
	}
}

// RegisterTicket records an on-chain approval ticket.
func (r *Reference) RegisterTicket(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[id] = struct{}{}
}

// Consume retires the on-chain ticket referenced by data, if any. The
// executor calls this after a successful transfer so advisory checks
// (Verify) stay read-only while tickets remain single-use.
func (r *Reference) Consume(_ context.Context, data []byte) {
	if !bytes.HasPrefix(data, prefixOnChain) {
		return
	}
	id := string(bytes.TrimPrefix(data, prefixOnChain))
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tickets, id)
}

func (r *Reference) Verify(_ context.Context, data []byte) (Kind, error) {
	switch {
	case bytes.HasPrefix(data, prefixOnChain):
		id := string(bytes.TrimPrefix(data, prefixOnChain))
		r.mu.RLock()
		defer r.mu.RUnlock()
		if _, ok := r.tickets[id]; !ok {
			return KindNone, nil
		}
		return KindOnChain, nil

	case bytes.HasPrefix(data, prefixOffChain):
		// Format: hmac:<ticket-id>:<hex tag>.
		rest := bytes.TrimPrefix(data, prefixOffChain)
		sep := bytes.LastIndexByte(rest, ':')
		if sep < 0 {
			return KindNone, nil
		}
		id, tagHex := rest[:sep], rest[sep+1:]
		tag, err := hex.DecodeString(string(tagHex))
		if err != nil {
			return KindNone, nil
		}
		mac := hmac.New(sha256.New, r.secret)
		mac.Write(id)
		if !hmac.Equal(tag, mac.Sum(nil)) {
			return KindNone, nil
		}
		return KindOffChain, nil

	default:
		return KindNone, nil
	}
}

// Tag computes the off-chain approval tag for a ticket ID. Exposed for
// approvers and tests that mint payloads.
func (r *Reference) Tag(id string) string {
	mac := hmac.New(sha256.New, r.secret)
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}
