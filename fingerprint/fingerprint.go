package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/internal/util"
)

// inboundDigestFields is the canonical projection of an inbound event used
// for content addressing. Volatile fields (receive timestamp, correlation
// id) are deliberately absent so redeliveries of the same logical message
// collapse onto one fingerprint.
type inboundDigestFields struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// Inbound derives the admission fingerprint for an event: the
// provider-assigned message id when present, otherwise a digest of the
// canonically-ordered payload.
func Inbound(ev core.InboundEvent) string {
	if ev.FingerprintHint != "" {
		return "in:" + ev.FingerprintHint
	}
	body, err := util.MarshalCanonical(inboundDigestFields{
		ConversationID: ev.ConversationID,
		Text:           ev.Text,
	})
	if err != nil {
		// Unreachable for this shape; keep the fingerprint deterministic anyway.
		body = []byte(ev.ConversationID + "\x00" + ev.Text)
	}
	sum := sha256.Sum256(body)
	return "in:" + hex.EncodeToString(sum[:])
}

// Outbound derives the send-guard idempotency key for a decision: a digest
// of (conversation id, decided content ref, decision epoch). The epoch is
// the conversation version the decision was committed against, so a
// redelivered decision reuses the same key while a fresh decision for the
// same conversation gets a new one.
func Outbound(conversationID string, contentRef int, epoch int64) string {
	body := fmt.Sprintf("%s|%d|%d", conversationID, contentRef, epoch)
	sum := sha256.Sum256([]byte(body))
	return "out:" + hex.EncodeToString(sum[:])
}
