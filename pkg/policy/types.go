package policy

import "time"

// ActivePolicy records one policy activation. Exactly one record is current
// at any time; history is retained for audit and rollback.
type ActivePolicy struct {
	// PolicyID identifies the activated definition.
	PolicyID string `json:"policy_id"`

	// ContentHash is the SHA-256 of the definition content that was
	// loaded into the evaluator at activation time.
	ContentHash string `json:"content_hash"`

	// ActivatedAt is when the activation was committed.
	ActivatedAt time.Time `json:"activated_at"`

	// ActivatedBy identifies the administrator who activated it.
	ActivatedBy string `json:"activated_by,omitempty"`

	// Generation increments monotonically on every activation, including
	// reactivation of the same policy.
	Generation uint64 `json:"generation"`
}

// Definition is one loadable policy definition from the definitions
// directory.
type Definition struct {
	// ID is the definition identifier, derived from the file name.
	ID string `json:"id"`

	// Name is the human-readable name from the definition front matter.
	Name string `json:"name"`

	// Description summarizes the definition's intent.
	Description string `json:"description,omitempty"`

	// Path is the file the definition was loaded from.
	Path string `json:"-"`

	// Content is the definition body handed to the evaluator.
	Content []byte `json:"-"`
}
