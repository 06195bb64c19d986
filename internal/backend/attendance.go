package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// TimestampLayout is the ISO-8601 form sent in the timestamp field.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var validate = validator.New()

// Submission is the multipart payload of one attendance record.
type Submission struct {
	Image       []byte    `validate:"required,min=1"`
	ContentType string
	Filename    string
	EmployeeID  string    `validate:"required"`
	Type        string    `validate:"required,oneof=check_in check_out"`
	Latitude    float64   `validate:"latitude"`
	Longitude   float64   `validate:"longitude"`
	Address     string    `validate:"required"`
	Timestamp   time.Time `validate:"-"`
}

// Validate checks the payload before it is sent.
func (s Submission) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp required", ErrInvalidSubmission)
	}
	return nil
}

// Receipt is the backend's acknowledgement.
type Receipt struct {
	ID      string          `json:"id,omitempty"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// MarkAttendance posts one submission as multipart/form-data. Any failure
// satisfies errors.Is(err, ErrSubmissionFailed); non-2xx responses are also
// *StatusError.
func (c *Client) MarkAttendance(ctx context.Context, s Submission) (*Receipt, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := writeSubmission(w, s); err != nil {
		return nil, fmt.Errorf("%w: build form: %v", ErrSubmissionFailed, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.AttendancePath, &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	raw, err := c.send(req)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			se.submission = true
			return nil, se
		}
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	receipt := &Receipt{}
	if json.Valid(raw) {
		receipt.Raw = raw
		var body struct {
			ID      json.RawMessage `json:"id"`
			Message string          `json:"message"`
		}
		if json.Unmarshal(raw, &body) == nil {
			receipt.ID = rawID(body.ID)
			receipt.Message = body.Message
		}
	}
	return receipt, nil
}

func writeSubmission(w *multipart.Writer, s Submission) error {
	filename := s.Filename
	if filename == "" {
		filename = "selfie.jpg"
	}
	contentType := s.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(s.Image); err != nil {
		return err
	}

	fields := []struct{ k, v string }{
		{"employeeId", s.EmployeeID},
		{"type", s.Type},
		{"latitude", strconv.FormatFloat(s.Latitude, 'f', -1, 64)},
		{"longitude", strconv.FormatFloat(s.Longitude, 'f', -1, 64)},
		{"address", s.Address},
		{"timestamp", s.Timestamp.UTC().Format(TimestampLayout)},
	}
	for _, f := range fields {
		if err := w.WriteField(f.k, f.v); err != nil {
			return err
		}
	}
	return w.Close()
}

// rawID renders a JSON id that may be a string or a number.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
