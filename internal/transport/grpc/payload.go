package grpc

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"sessionbook/backend/internal/domain"
)

const dateLayout = "2006-01-02"

// fieldError is a malformed request field. It maps to InvalidArgument.
type fieldError struct {
	msg string
}

func (e *fieldError) Error() string { return e.msg }

func fieldErrorf(format string, args ...any) error {
	return &fieldError{msg: fmt.Sprintf(format, args...)}
}

func stringField(req *structpb.Struct, name string) string {
	v, ok := req.GetFields()[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

func uuidField(req *structpb.Struct, name string) (uuid.UUID, error) {
	raw := stringField(req, name)
	if raw == "" {
		return uuid.Nil, fieldErrorf("%s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fieldErrorf("%s must be a UUID", name)
	}
	return id, nil
}

func timeField(req *structpb.Struct, name string) (time.Time, error) {
	raw := stringField(req, name)
	if raw == "" {
		return time.Time{}, fieldErrorf("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fieldErrorf("%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}

func dateField(req *structpb.Struct, name string) (time.Time, error) {
	raw := stringField(req, name)
	if raw == "" {
		return time.Time{}, fieldErrorf("%s is required", name)
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fieldErrorf("%s must be a date in YYYY-MM-DD form", name)
	}
	return t, nil
}

func intField(req *structpb.Struct, name string) (int, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, fieldErrorf("%s is required", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > math.MaxInt32 {
		return 0, fieldErrorf("%s must be a whole number", name)
	}
	return int(n.NumberValue), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func appointmentPayload(a domain.Appointment) map[string]any {
	out := map[string]any{
		"id":                  a.ID.String(),
		"provider_id":         a.ProviderID,
		"consumer_id":         a.ConsumerID,
		"session_kind":        string(a.SessionKind),
		"status":              string(a.Status),
		"start_time":          formatTime(a.StartTime),
		"end_time":            formatTime(a.EndTime),
		"duration_minutes":    a.DurationMinutes,
		"cancellation_reason": a.CancellationReason,
		"completion_note":     a.CompletionNote,
		"payment": map[string]any{
			"amount":       a.Payment.AmountMinor,
			"status":       string(a.Payment.Status),
			"external_ref": a.Payment.ExternalRef,
		},
		"created_at": formatTime(a.CreatedAt),
		"updated_at": formatTime(a.UpdatedAt),
	}
	if a.ConfirmationDeadline != nil {
		out["confirmation_deadline"] = formatTime(*a.ConfirmationDeadline)
	}
	if a.FollowUp != nil {
		out["follow_up"] = map[string]any{
			"recommended_appointment_id": a.FollowUp.RecommendedAppointmentID.String(),
			"note":                       a.FollowUp.Note,
		}
	}
	if a.FollowUpOf != nil {
		out["follow_up_of"] = a.FollowUpOf.String()
	}
	return out
}

func appointmentResponse(a domain.Appointment) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"appointment": appointmentPayload(a)})
}

func slotsResponse(slots []domain.Interval) (*structpb.Struct, error) {
	out := make([]any, 0, len(slots))
	for _, s := range slots {
		out = append(out, map[string]any{
			"start_time": formatTime(s.Start),
			"end_time":   formatTime(s.End),
		})
	}
	return structpb.NewStruct(map[string]any{"slots": out})
}
