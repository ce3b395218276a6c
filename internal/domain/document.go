package domain

import "time"

// DocType identifies the role of a document within a collection.
type DocType string

const (
	DocTypeUserResume    DocType = "USER_RESUME"
	DocTypeJD            DocType = "JD"
	DocTypeAnalysis      DocType = "ANALYSIS"
	DocTypeRewriteResume DocType = "REWRITE_RESUME"
	DocTypeCoverLetter   DocType = "COVER_LETTER"
)

// DocCollection groups every artifact produced by one job run, including the
// raw inputs the run started from.
type DocCollection struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"collection_name" json:"collection_name"`
	UserResume string    `db:"user_resume" json:"user_resume"`
	JD         string    `db:"jd" json:"jd"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Document is one persisted text artifact. Documents are append-only; a run
// never mutates a document after creating it.
type Document struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	DocType      DocType   `db:"doc_type" json:"doc_type"`
	Content      string    `db:"content" json:"content"`
	CollectionID string    `db:"collection_id" json:"collection_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// CollectionWithDocs is the listing shape returned to clients.
type CollectionWithDocs struct {
	DocCollection
	Docs []Document `json:"docs"`
}

// User is the identity and metering entity. Only the fields the ledger and
// ownership checks need live here; account management is a separate service.
type User struct {
	ID               string  `db:"id" json:"id"`
	Email            string  `db:"email" json:"email"`
	CreditBalance    int     `db:"credit_balance" json:"credit_balance"`
	IsAdmin          bool    `db:"is_admin" json:"is_admin"`
	StripeCustomerID *string `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
}
