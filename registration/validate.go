package registration

import (
	"fmt"
	"net/mail"
	"strings"
)

// ValidateDraft checks a draft request before any network or storage call.
// Team-size bounds are checked against the event separately since only the
// backend knows them.
func ValidateDraft(displayName string, participants []Participant) error {
	var fields []FieldError

	if strings.TrimSpace(displayName) == "" {
		fields = append(fields, FieldError{Field: "displayName", Message: "must not be empty"})
	}

	if len(participants) == 0 {
		fields = append(fields, FieldError{Field: "participants", Message: "must not be empty"})
		return NewInvalidParticipantsError("Draft request is invalid", fields)
	}

	leaders := 0
	seenEmails := map[string]int{}
	for i, p := range participants {
		prefix := fmt.Sprintf("participants[%d]", i)

		if strings.TrimSpace(p.FullName) == "" {
			fields = append(fields, FieldError{Field: prefix + ".fullName", Message: "must not be empty"})
		}
		if strings.TrimSpace(p.Phone) == "" {
			fields = append(fields, FieldError{Field: prefix + ".phone", Message: "must not be empty"})
		}
		if strings.TrimSpace(p.College) == "" {
			fields = append(fields, FieldError{Field: prefix + ".college", Message: "must not be empty"})
		}

		email := strings.ToLower(strings.TrimSpace(p.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			fields = append(fields, FieldError{Field: prefix + ".email", Message: "must be a valid email address"})
		} else if prev, ok := seenEmails[email]; ok {
			fields = append(fields, FieldError{
				Field:   prefix + ".email",
				Message: fmt.Sprintf("duplicates participants[%d].email", prev),
			})
		} else {
			seenEmails[email] = i
		}

		if p.IsLeader {
			leaders++
		}
	}

	if leaders != 1 {
		fields = append(fields, FieldError{
			Field:   "participants",
			Message: fmt.Sprintf("exactly one participant must be the leader, got %d", leaders),
		})
	}

	if len(fields) > 0 {
		return NewInvalidParticipantsError("Draft request is invalid", fields)
	}

	return nil
}
