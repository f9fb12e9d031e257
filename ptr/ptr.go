package ptr

import (
	"time"

	"github.com/google/uuid"
)

func String(s string) *string {
	return &s
}

func UUID(id uuid.UUID) *uuid.UUID {
	return &id
}

func Time(t time.Time) *time.Time {
	return &t
}
