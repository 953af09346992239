package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"showings/internal/domain"
	"showings/internal/service/booking"
)

// The voice platform has shipped two webhook shapes: the current
// message.toolCalls array and the legacy single functionCall, nested or at
// the root. Both are accepted.
type webhookRequest struct {
	Message *struct {
		ToolCalls    []toolCall    `json:"toolCalls"`
		FunctionCall *functionCall `json:"functionCall"`
	} `json:"message"`
	FunctionCall *functionCall `json:"functionCall"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
	Parameters json.RawMessage `json:"parameters"`
}

type actionParams struct {
	UserID          string `json:"user_id"`
	PropertyAddress string `json:"property_address"`
	RequestID       string `json:"request_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	AttendeeName    string `json:"attendee_name"`
	AttendeeEmail   string `json:"attendee_email"`
	DaysAhead       int    `json:"days_ahead"`
}

type webhookResponse struct {
	Results []webhookResult `json:"results"`
}

type webhookResult struct {
	ToolCallID string `json:"toolCallId,omitempty"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	callID, name, rawParams, ok := normalizeCall(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "no function call in payload")
		return
	}

	var params actionParams
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid function parameters")
			return
		}
	}

	log := s.log.With(slog.String("action", name), slog.String("tool_call_id", callID), slog.String("user_id", params.UserID))

	var result any
	var err error
	switch name {
	case "get_availability":
		result, err = s.actionGetAvailability(r, params)
	case "set_appointment":
		result, err = s.actionSetAppointment(r, callID, params)
	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+name)
		return
	}

	if err != nil {
		log.Warn("webhook action failed", slog.Any("err", err))
		writeJSON(w, statusFromError(err), webhookResponse{Results: []webhookResult{{
			ToolCallID: callID,
			Error:      err.Error(),
		}}})
		return
	}

	log.Info("webhook action handled")
	writeJSON(w, http.StatusOK, webhookResponse{Results: []webhookResult{{
		ToolCallID: callID,
		Result:     result,
	}}})
}

func normalizeCall(req webhookRequest) (callID, name string, params json.RawMessage, ok bool) {
	if req.Message != nil && len(req.Message.ToolCalls) > 0 {
		tc := req.Message.ToolCalls[0]
		return tc.ID, tc.Function.Name, firstRaw(tc.Function.Arguments, tc.Function.Parameters), true
	}

	fc := req.FunctionCall
	if fc == nil && req.Message != nil {
		fc = req.Message.FunctionCall
	}
	if fc == nil || fc.Name == "" {
		return "", "", nil, false
	}
	return fc.ID, fc.Name, firstRaw(fc.Parameters, fc.Arguments), true
}

func firstRaw(raws ...json.RawMessage) json.RawMessage {
	for _, r := range raws {
		if len(r) > 0 && string(r) != "null" {
			return r
		}
	}
	return nil
}

func (s *Server) actionGetAvailability(r *http.Request, params actionParams) (any, error) {
	days := params.DaysAhead
	if days < 1 {
		days = s.windowDays
	}

	slots, err := s.availability.GetAvailability(r.Context(), params.UserID, days, domain.BusinessHours{})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"available_slots": slots,
		"total_slots":     len(slots),
	}, nil
}

func (s *Server) actionSetAppointment(r *http.Request, callID string, params actionParams) (any, error) {
	start, err := time.Parse(time.RFC3339, params.StartTime)
	if err != nil {
		return nil, &paramError{"start_time must be RFC 3339"}
	}

	var end time.Time
	if params.EndTime != "" {
		end, err = time.Parse(time.RFC3339, params.EndTime)
		if err != nil {
			return nil, &paramError{"end_time must be RFC 3339"}
		}
	} else {
		end = start.Add(30 * time.Minute)
	}

	requestID := strings.TrimSpace(params.RequestID)
	if requestID == "" {
		// Synthesize deterministically from the inbound call's own id so a
		// retried delivery collapses onto the same booking. The legacy shape
		// can arrive without a call id; key on the booking's own coordinates
		// then, so two different bookings never share a key.
		seed := "showings:set_appointment:" + params.UserID + ":" + callID
		if callID == "" {
			seed = "showings:set_appointment:" + params.UserID + ":" + params.StartTime + ":" + params.PropertyAddress
		}
		requestID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
	}

	appt, err := s.booking.CreateAppointment(r.Context(), booking.CreateInput{
		UserID:          params.UserID,
		RequestID:       requestID,
		PropertyAddress: params.PropertyAddress,
		StartTime:       start,
		EndTime:         end,
		AttendeeName:    params.AttendeeName,
		AttendeeEmail:   params.AttendeeEmail,
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

type paramError struct {
	msg string
}

func (e *paramError) Error() string {
	return e.msg
}
