package support

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// seedNamespace scopes deterministic record ids derived from record content.
var seedNamespace = uuid.MustParse("5b0f3c1e-8d7a-4c52-9a61-2f4e7d0c9b13")

// Record is a stored question/answer pair in the support knowledge base.
type Record struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Normalize fills derived fields so the record can be persisted.
// Records without an id receive a UUIDv5 of their content, which keeps repeated imports idempotent.
func (r Record) Normalize(now time.Time) Record {
	r.Subject = strings.TrimSpace(r.Subject)
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		r.ID = ContentID(r.Subject, r.Question, r.Answer)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	return r
}

// Validate reports whether the record carries the fields the matcher depends on.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return errQuestionRequired
	}
	if strings.TrimSpace(r.Answer) == "" {
		return errAnswerRequired
	}
	return nil
}

// ContentID derives a stable identifier from the record content.
func ContentID(subject, question, answer string) string {
	payload := subject + "\x00" + question + "\x00" + answer
	return uuid.NewSHA1(seedNamespace, []byte(payload)).String()
}
