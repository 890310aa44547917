package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var waSuffixes = []string{"@s.whatsapp.net", "@g.us", "@newsletter", "@lid"}

// NormalizePhone strips WhatsApp JID suffixes and whitespace from a sender
// identifier, leaving the bare phone number.
func NormalizePhone(id string) string {
	p := strings.TrimSpace(id)
	for _, s := range waSuffixes {
		if strings.HasSuffix(p, s) {
			p = strings.TrimSuffix(p, s)
			break
		}
	}
	return strings.ReplaceAll(p, " ", "")
}

// RenderTemplate substitutes {NAME} and {PHONE} placeholders in a trigger's
// content template.
func RenderTemplate(body, name, phone string) string {
	out := strings.ReplaceAll(body, "{NAME}", name)
	return strings.ReplaceAll(out, "{PHONE}", phone)
}

func NewInboxID() string {
	return "inb_" + newULID()
}

func NewQueueItemID() string {
	return "bqi_" + newULID()
}

func newULID() string {
	// ULID is sortable (nice for DB indexes and dashboards)
	t := time.Now().UTC()
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
