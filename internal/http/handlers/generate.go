package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"vizor/internal/domain"
	"vizor/internal/middleware"
	"vizor/internal/pipeline"
)

type generateRequest struct {
	Target   string `json:"target"`
	Provider string `json:"provider"`
	Size     string `json:"size"`
	Quality  string `json:"quality"`
	CallerID string `json:"caller_id"`
}

type generateResponse struct {
	Provider  string `json:"provider"`
	MediaType string `json:"media_type"`
	Artifact  []byte `json:"artifact"`
	Message   string `json:"message"`
	Cached    bool   `json:"cached"`
}

// Generate runs the pipeline in single-shot mode: partial artifacts are
// discarded and the caller receives only the terminal result.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	genReq, ok := a.buildRequest(w, r, req)
	if !ok {
		return
	}

	var terminal *pipeline.Event
	sawCacheOnly := true
	for ev := range a.Pipeline.Run(r.Context(), genReq, pipeline.ModeSingle) {
		e := ev
		switch e.Stage {
		case pipeline.StageCompleted, pipeline.StageError:
			terminal = &e
		case pipeline.StageCheckingCache:
		default:
			sawCacheOnly = false
		}
	}
	if terminal == nil {
		// The caller went away before the pipeline finished; there is no
		// one left to answer.
		return
	}
	if terminal.Stage == pipeline.StageError {
		a.error(w, errorStatus(terminal.Code), terminal.Code, terminal.Err)
		return
	}
	a.json(w, http.StatusOK, generateResponse{
		Provider:  terminal.Provider,
		MediaType: terminal.MediaType,
		Artifact:  terminal.Artifact,
		Message:   terminal.Message,
		Cached:    sawCacheOnly,
	})
}

// GenerateStream runs the pipeline in streaming mode over server-sent
// events. Every pipeline event is one SSE data record; an `event: done`
// sentinel follows the terminal event. Closing the connection cancels the
// request.
func (a *App) GenerateStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	q := r.URL.Query()
	req := generateRequest{
		Target:   q.Get("target"),
		Provider: q.Get("provider"),
		Size:     q.Get("size"),
		Quality:  q.Get("quality"),
		CallerID: q.Get("caller_id"),
	}
	genReq, ok := a.buildRequest(w, r, req)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range a.Pipeline.Run(r.Context(), genReq, pipeline.ModeStream) {
		payload, err := json.Marshal(ev)
		if err != nil {
			a.Logger.Error().Err(err).Msg("handlers: encode event failed")
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
	// End-of-stream sentinel. The pipeline closes its channel right after
	// the terminal event, or silently on cancellation; writing to a dead
	// connection is harmless.
	fmt.Fprint(w, "event: done\ndata: {}\n\n")
	flusher.Flush()
}

// Providers lists the configured backends and their capabilities.
func (a *App) Providers(w http.ResponseWriter, r *http.Request) {
	items := make([]map[string]any, 0)
	for _, g := range a.Registry.Chain() {
		d := g.Describe()
		items = append(items, map[string]any{
			"name":                d.Name,
			"supported_sizes":     d.SupportedSizes,
			"supported_qualities": d.SupportedQualities,
			"default_size":        d.DefaultSize,
			"default_quality":     d.DefaultQuality,
			"max_prompt_length":   d.MaxPromptLength,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) buildRequest(w http.ResponseWriter, r *http.Request, req generateRequest) (domain.GenerationRequest, bool) {
	target := strings.TrimSpace(req.Target)
	if target == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "target required")
		return domain.GenerationRequest{}, false
	}
	if req.Provider != "" {
		if _, ok := a.Registry.Get(req.Provider); !ok {
			a.error(w, http.StatusBadRequest, "bad_request", "unsupported provider")
			return domain.GenerationRequest{}, false
		}
	}
	callerID := strings.TrimSpace(req.CallerID)
	if callerID == "" {
		callerID = uuid.NewString()
	}
	return domain.GenerationRequest{
		Target:             target,
		ProviderPreference: req.Provider,
		CallerID:           callerID,
		Size:               req.Size,
		Quality:            req.Quality,
		Locale:             middleware.LocaleFromContext(r.Context()),
	}, true
}

func errorStatus(code string) int {
	switch code {
	case "rejected":
		return http.StatusUnprocessableEntity
	case "collaborator_failed", "providers_failed":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
