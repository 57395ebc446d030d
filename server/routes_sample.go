// routes_sample.go - Durchlauf-Endpunkt, Plan und Historie
// Enthaelt: SampleHandler, ScheduleHandler, HistoryHandler, HistoryImageHandler,
// streamResponse(), recordSession()

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ollama/ddpm/api"
	"github.com/ollama/ddpm/diffusion"
	"github.com/ollama/ddpm/imageproc"
	"github.com/ollama/ddpm/sampler"
	"github.com/ollama/ddpm/store"
)

// SampleHandler fuehrt einen kompletten Lauf aus und streamt jeden
// Schritt als NDJSON
func (s *Server) SampleHandler(c *gin.Context) {
	var req api.SampleRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	release, err := s.acquire(ctx)
	if err != nil {
		abortWithError(c, err)
		return
	}

	cfg := s.samplerConfig(s.cfg.Rand)
	if req.Seed != nil {
		cfg.Rand = SeededRand(*req.Seed)
	}

	ch := make(chan any)
	go func() {
		defer close(ch)
		defer release()

		var last [][][][]float32
		err := sampler.Run(ctx, cfg, func(p sampler.Progress) error {
			last = p.Image
			select {
			case ch <- api.ProgressResponse{Type: "data", Step: p.Step, Percent: p.Percent, Image: api.Image(p.Image)}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				select {
				case ch <- gin.H{"error": err.Error()}:
				case <-ctx.Done():
				}
			}
			return
		}

		s.record(store.ModeRun, uuid.NewString(), last)
	}()

	streamResponse(c, ch)
}

// streamResponse schreibt jede Nachricht aus ch als eigene JSON-Zeile
func streamResponse(c *gin.Context, ch chan any) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Stream(func(w io.Writer) bool {
		val, ok := <-ch
		if !ok {
			return false
		}

		bts, err := json.Marshal(val)
		if err != nil {
			slog.Info(fmt.Sprintf("streamResponse: json.Marshal failed with %s", err))
			return false
		}

		// Delineate chunks with new-line delimiter
		bts = append(bts, '\n')
		if _, err := w.Write(bts); err != nil {
			slog.Info(fmt.Sprintf("streamResponse: w.Write failed with %s", err))
			return false
		}

		return true
	})

	// drain so the producer can exit after a write failure
	for range ch {
	}
}

// recordSession wird vom Treiber nach dem letzten Schritt einer Sitzung
// aufgerufen
func (s *Server) recordSession(r sampler.Reply) {
	s.record(store.ModeSession, r.Key, r.Image)
}

func (s *Server) record(mode, key string, image [][][][]float32) {
	if s.cfg.History == nil || image == nil {
		return
	}

	png, err := imageproc.EncodePNG(image)
	if err != nil {
		slog.Warn("history: encode failed", "key", key, "error", err)
		return
	}

	err = s.cfg.History.Add(store.Record{
		Key:       key,
		Mode:      mode,
		Model:     s.cfg.ModelName,
		Schedule:  string(s.cfg.Schedule.Kind()),
		Timesteps: s.cfg.Schedule.Timesteps(),
		Image:     png,
		CreatedAt: time.Now(),
	})
	if err != nil {
		slog.Warn("history: add failed", "key", key, "error", err)
	}
}

// ScheduleHandler liefert den aktiven Rauschplan
func (s *Server) ScheduleHandler(c *gin.Context) {
	c.JSON(http.StatusOK, ScheduleResponse(s.cfg.Schedule))
}

// ScheduleResponse wandelt einen Plan in die API-Form
func ScheduleResponse(sched *diffusion.NoiseSchedule) api.ScheduleResponse {
	return api.ScheduleResponse{
		Kind:      string(sched.Kind()),
		BetaStart: sched.BetaStart(),
		BetaEnd:   sched.BetaEnd(),
		Timesteps: sched.Timesteps(),

		Beta:                     sched.Betas(),
		Alpha:                    sched.Alphas(),
		AlphaCumprod:             sched.AlphaCumprods(),
		AlphaCumprodPrev:         sched.AlphaCumprodPrevs(),
		SqrtOneMinusAlphaCumprod: sched.SqrtOneMinusAlphaCumprods(),
		Stddev:                   sched.Stddevs(),
	}
}

// HistoryHandler listet abgeschlossene Laeufe, die neuesten zuerst
func (s *Server) HistoryHandler(c *gin.Context) {
	if s.cfg.History == nil {
		c.JSON(http.StatusOK, api.HistoryResponse{Records: []api.HistoryRecord{}})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := s.cfg.History.List(limit)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := api.HistoryResponse{Records: make([]api.HistoryRecord, 0, len(records))}
	for _, r := range records {
		resp.Records = append(resp.Records, api.HistoryRecord{
			Key:       r.Key,
			Mode:      r.Mode,
			Model:     r.Model,
			Schedule:  r.Schedule,
			Timesteps: r.Timesteps,
			CreatedAt: r.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// HistoryImageHandler liefert das PNG eines gespeicherten Laufs
func (s *Server) HistoryImageHandler(c *gin.Context) {
	if s.cfg.History == nil {
		abortWithError(c, store.ErrNotFound)
		return
	}

	r, err := s.cfg.History.Get(c.Param("key"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", r.Image)
}
