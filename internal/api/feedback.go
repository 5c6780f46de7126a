package api

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/campuskitchen/canteen-api/internal/domain/feedback"
)

func encFeedbackEntry(e *jx.Encoder, entry *feedback.Entry) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(entry.ID)
	e.FieldStart("studentName")
	e.Str(entry.StudentName)
	e.FieldStart("message")
	e.Str(entry.Message)
	e.FieldStart("rating")
	e.Int(entry.Rating)
	e.FieldStart("createdAt")
	encTime(e, entry.CreatedAt)
	e.ObjEnd()
}

// addFeedback records a feedback entry. Open to both roles.
func (h *Handler) addFeedback(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, badRequest("unreadable body"))
		return
	}

	var (
		studentName, message string
		rating               int
	)
	d := jx.DecodeBytes(data)
	decodeErr := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "studentName":
			studentName, err = d.Str()
		case "message":
			message, err = d.Str()
		case "rating":
			rating, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if decodeErr != nil {
		writeError(w, r, badRequest("invalid feedback body"))
		return
	}

	entry, err := h.feedback.Add(r.Context(), studentName, message, rating)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encFeedbackEntry(&e, entry)
	writeJSON(w, http.StatusCreated, &e)
}

// listFeedback returns recent entries plus the all-time average rating.
// Manager only.
func (h *Handler) listFeedback(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	limit := queryLimit(r, defaultFeedbackLimit, maxHistoryLimit)

	entries, err := h.feedback.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	avg, err := h.feedback.AverageRating(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("averageRating")
	e.Float64(avg)
	e.FieldStart("entries")
	e.ArrStart()
	for i := range entries {
		encFeedbackEntry(&e, &entries[i])
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
