package apperrors

import "errors"

// Sentinel errors shared across the mailbox client, the sync engine and the
// reply store. Callers classify with errors.Is rather than string matching.
var (
	// ErrAuthExpired means the stored OAuth credentials are stale and the user
	// must re-authenticate. Never retried automatically.
	ErrAuthExpired = errors.New("mailbox credentials expired")

	// ErrRemoteUnavailable is a transient network/API failure. The sync engine
	// retries via backoff; user-facing callers surface it once.
	ErrRemoteUnavailable = errors.New("mailbox temporarily unavailable")

	// ErrCursorExpired means the history cursor is no longer recognized by the
	// mailbox backend and a full resync is required. Not user-visible.
	ErrCursorExpired = errors.New("history cursor expired")

	// ErrDuplicateReply is returned by the reply store when a record matching
	// the uniqueness key already exists. An expected outcome, not a failure.
	ErrDuplicateReply = errors.New("reply already recorded")

	// ErrGenerationFailed means the AI collaborator returned malformed or
	// missing structured output. The operation is abandoned with no partial
	// state written.
	ErrGenerationFailed = errors.New("generation failed")
)

func IsAuthExpired(err error) bool { return errors.Is(err, ErrAuthExpired) }

func IsRemoteUnavailable(err error) bool { return errors.Is(err, ErrRemoteUnavailable) }

func IsCursorExpired(err error) bool { return errors.Is(err, ErrCursorExpired) }

func IsDuplicateReply(err error) bool { return errors.Is(err, ErrDuplicateReply) }

func IsGenerationFailed(err error) bool { return errors.Is(err, ErrGenerationFailed) }
