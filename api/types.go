// types.go - Anfrage- und Antworttypen des DDPM-Servers
// Enthaelt: StatusError, Image, MessageRequest, StepResponse, ProgressResponse,
// ScheduleResponse, SessionsResponse, HistoryResponse
package api

import (
	"fmt"
	"time"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the ddpm server logs for details"
	}
}

// Image is a materialized image tensor laid out [N][H][W][C].
type Image [][][][]float32

// Shape returns [N, H, W, C] of a non-ragged image.
func (img Image) Shape() []int {
	if len(img) == 0 || len(img[0]) == 0 || len(img[0][0]) == 0 {
		return []int{len(img), 0, 0, 0}
	}
	return []int{len(img), len(img[0]), len(img[0][0]), len(img[0][0][0])}
}

// Message types understood by /api/message.
const (
	MessageStart = "start"
	MessageNext  = "next"
)

// MessageRequest drives the resumable sampler: {"type": "start"} begins
// a session, {"type": "next", "key": ...} advances it by one step.
type MessageRequest struct {
	Type string `json:"type"`
	Key  string `json:"key,omitempty"`
}

// NextRequest is the body of POST /api/next.
type NextRequest struct {
	Key string `json:"key"`
}

// StepResponse is the reply to start and next.
type StepResponse struct {
	Step    int     `json:"step"`
	Image   Image   `json:"image"`
	Key     string  `json:"key"`
	Percent float64 `json:"percent"`
}

// Done reports whether this was the last step of the session.
func (r StepResponse) Done() bool { return r.Step == 0 }

// SampleRequest starts a run-to-completion sample. A nil seed uses the
// server's generator; any other value, zero included, makes the run
// reproducible.
type SampleRequest struct {
	Seed *uint64 `json:"seed,omitempty"`
}

// ProgressResponse is one event of a sample stream.
type ProgressResponse struct {
	Type    string  `json:"type"`
	Step    int     `json:"step"`
	Percent float64 `json:"percent"`
	Image   Image   `json:"image"`
}

// ScheduleResponse describes the server's noise schedule.
type ScheduleResponse struct {
	Kind      string  `json:"kind"`
	BetaStart float64 `json:"beta_start"`
	BetaEnd   float64 `json:"beta_end"`
	Timesteps int     `json:"timesteps"`

	Beta                     []float64 `json:"beta"`
	Alpha                    []float64 `json:"alpha"`
	AlphaCumprod             []float64 `json:"alpha_cumprod"`
	AlphaCumprodPrev         []float64 `json:"alpha_cumprod_prev"`
	SqrtOneMinusAlphaCumprod []float64 `json:"sqrt_one_minus_alpha_cumprod"`
	Stddev                   []float64 `json:"stddev"`
}

// ScheduleRow is one timestep of a schedule, tagged for CSV export.
type ScheduleRow struct {
	T                        int     `csv:"t"`
	Beta                     float64 `csv:"beta"`
	Alpha                    float64 `csv:"alpha"`
	AlphaCumprod             float64 `csv:"alpha_cumprod"`
	AlphaCumprodPrev         float64 `csv:"alpha_cumprod_prev"`
	SqrtOneMinusAlphaCumprod float64 `csv:"sqrt_one_minus_alpha_cumprod"`
	Stddev                   float64 `csv:"stddev"`
}

// Rows transposes the schedule arrays into one row per timestep.
func (s ScheduleResponse) Rows() []ScheduleRow {
	rows := make([]ScheduleRow, len(s.Beta))
	for t := range rows {
		rows[t] = ScheduleRow{
			T:                        t,
			Beta:                     s.Beta[t],
			Alpha:                    s.Alpha[t],
			AlphaCumprod:             s.AlphaCumprod[t],
			AlphaCumprodPrev:         s.AlphaCumprodPrev[t],
			SqrtOneMinusAlphaCumprod: s.SqrtOneMinusAlphaCumprod[t],
			Stddev:                   s.Stddev[t],
		}
	}
	return rows
}

// SessionInfo describes a stored session.
type SessionInfo struct {
	Key       string    `json:"key"`
	Step      int       `json:"step"`
	Percent   float64   `json:"percent"`
	CreatedAt time.Time `json:"created_at"`
	TouchedAt time.Time `json:"touched_at"`
}

type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// HistoryRecord is a completed sample. Image holds PNG bytes.
type HistoryRecord struct {
	Key       string    `json:"key"`
	Mode      string    `json:"mode"`
	Model     string    `json:"model"`
	Schedule  string    `json:"schedule"`
	Timesteps int       `json:"timesteps"`
	Image     []byte    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type HistoryResponse struct {
	Records []HistoryRecord `json:"records"`
}
