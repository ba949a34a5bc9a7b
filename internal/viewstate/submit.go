package viewstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Clark-Hu/kvartali/internal/domain"
	"github.com/Clark-Hu/kvartali/internal/ratingstore"
	"github.com/Clark-Hu/kvartali/internal/votekey"
)

const (
	MessageAccepted         = "Оценката е запазена успешно!"
	MessageNotAuthenticated = "Моля изчакайте автентикация..."
	MessageNoContent        = "Моля оценете критериите или напишете мнение!"
	MessageScoreOutOfRange  = "Оценките трябва да са между 1 и 5!"
	MessageUnknownCategory  = "Неизвестна категория!"
)

// MinScore and MaxScore bound a single criterion score.
const (
	MinScore = 1
	MaxScore = 5
)

// Form is the user's input for one submission.
type Form struct {
	City string `json:"city"`
	// Location is the selected neighborhood or facility, or the doctor's or dentist's name.
	Location  string         `json:"location" validate:"max=200"`
	Specialty string         `json:"specialty" validate:"max=100"`
	Scores    map[string]int `json:"scores" validate:"max=10"`
	Opinion   string         `json:"opinion" validate:"max=2000"`
}

// SubmitState is the submission sub-flow position.
type SubmitState int

const (
	SubmitIdle SubmitState = iota
	SubmitValidating
	SubmitSubmitting
	SubmitAccepted
	SubmitRejected
)

func (s SubmitState) String() string {
	return [...]string{"idle", "validating", "submitting", "accepted", "rejected"}[s]
}

// SubmitResult is the terminal outcome of a submission.
type SubmitResult struct {
	State   SubmitState
	Err     error
	Message string
	VoteKey string
	// Form is what the input form should show afterwards.
	Form Form
}

// Accepted reports whether the vote was stored.
func (r SubmitResult) Accepted() bool { return r.State == SubmitAccepted }

// Prepared is a validated submission ready for the backend.
type Prepared struct {
	Record     domain.RatingRecord
	VoteKey    string
	StorageKey string
}

// Prepare validates form for category and builds the record. voted may be nil. No backend
// call is made.
func Prepare(category domain.Category, city, userID string, form Form, voted *votekey.Set, now time.Time) (Prepared, error) {
	if !category.Valid() {
		return Prepared{}, &domain.ValidationError{Reason: domain.ReasonUnknownCategory, Message: MessageUnknownCategory}
	}
	kind := category.Kind()
	if userID == "" {
		return Prepared{}, &domain.ValidationError{Reason: domain.ReasonNotAuthenticated, Message: MessageNotAuthenticated}
	}

	location := strings.TrimSpace(form.Location)
	switch kind.Identifying {
	case domain.FieldNameAndSpecialty:
		specialty := strings.TrimSpace(form.Specialty)
		if location == "" || specialty == "" {
			return Prepared{}, &domain.ValidationError{Reason: domain.ReasonMissingLocation, Message: kind.MissingIDMessage}
		}
		location = fmt.Sprintf("%s (%s)", location, specialty)
	default:
		if location == "" {
			return Prepared{}, &domain.ValidationError{Reason: domain.ReasonMissingLocation, Message: kind.MissingIDMessage}
		}
	}

	scores := make(map[string]int, len(kind.Criteria))
	for _, criterion := range kind.Criteria {
		v := form.Scores[criterion]
		if v == 0 {
			continue
		}
		if v < MinScore || v > MaxScore {
			return Prepared{}, &domain.ValidationError{Reason: domain.ReasonScoreOutOfRange, Message: MessageScoreOutOfRange}
		}
		scores[criterion] = v
	}
	if len(scores) != 0 && len(scores) != len(kind.Criteria) {
		return Prepared{}, &domain.ValidationError{Reason: domain.ReasonPartialCriteria, Message: kind.PartialMessage}
	}
	opinion := strings.TrimSpace(form.Opinion)
	if len(scores) == 0 && opinion == "" {
		return Prepared{}, &domain.ValidationError{Reason: domain.ReasonNoContent, Message: MessageNoContent}
	}

	city = domain.NormalizeCity(city)
	key := votekey.Derive(category, city, location)
	if voted != nil && voted.Has(key) {
		return Prepared{}, &domain.DuplicateVoteError{Category: category}
	}

	return Prepared{
		Record: domain.RatingRecord{
			Category:     category,
			City:         city,
			LocationName: location,
			Scores:       scores,
			Opinion:      opinion,
			UserID:       userID,
			SubmittedAt:  now.UTC(),
		},
		VoteKey:    key,
		StorageKey: votekey.StorageKey(category, city, location, userID),
	}, nil
}

// Send writes a prepared submission. A taken key yields *domain.DuplicateVoteError; any
// other failure is wrapped with domain.ErrBackendUnavailable.
func Send(ctx context.Context, st ratingstore.Store, p Prepared) error {
	err := st.SubmitIfAbsent(ctx, p.StorageKey, p.Record)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrDuplicateVote):
		return &domain.DuplicateVoteError{Category: p.Record.Category}
	case errors.Is(err, domain.ErrBackendUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
}

// Message maps a submission error to the text shown to the user.
func Message(err error) string {
	if err == nil {
		return MessageAccepted
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	var dup *domain.DuplicateVoteError
	if errors.As(err, &dup) {
		return dup.Message()
	}
	if errors.Is(err, domain.ErrAuthenticationFailed) {
		return MessageNotAuthenticated
	}
	return domain.GenericRetryMessage
}
