package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ahrav/go-soilcast/infrastructure/fileio"
	"github.com/ahrav/go-soilcast/internal/application"
	"github.com/ahrav/go-soilcast/internal/domain"
)

// HeaderShared is set on responses whose forecast was computed for an
// identical concurrent request.
const HeaderShared = "X-Forecast-Shared"

// forecastRequest keeps the inputs raw so they go through the same lenient
// decoding as input files.
type forecastRequest struct {
	InitialState json.RawMessage `json:"initial_state"`
	Weather      json.RawMessage `json:"weather"`
}

type batchRequest struct {
	Requests []forecastRequest `json:"requests"`
}

type batchItem struct {
	Forecast *domain.Forecast `json:"forecast,omitempty"`
	Error    *ErrorDetail     `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItem `json:"results"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeDecodeError(w, r, err)
		return
	}

	var req forecastRequest
	if err := decodeStrict(body, &req); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	in, err := req.decode()
	if err != nil {
		s.writeDecodeError(w, r, err)
		return
	}

	res, ok := s.runShared(r.Context(), requestKey(body), in)
	if !ok {
		s.logger.Debug("client went away before the forecast completed",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(r.Context().Err()),
		)
		return
	}
	if res.Err != nil {
		s.writeRunError(w, r, res.Err)
		return
	}
	if res.Shared {
		w.Header().Set(HeaderShared, "true")
	}
	writeJSON(w, r, http.StatusOK, res.Val)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeDecodeError(w, r, err)
		return
	}

	var req batchRequest
	if err := decodeStrict(body, &req); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	switch n := len(req.Requests); {
	case n == 0:
		writeError(w, r, http.StatusBadRequest, ErrorDetail{Code: codeInvalidJSON, Message: `"requests" must not be empty`})
		return
	case n > s.maxBatchSize:
		writeError(w, r, http.StatusBadRequest, ErrorDetail{
			Code:    codeInvalidJSON,
			Message: fmt.Sprintf("batch of %d requests exceeds the limit of %d", n, s.maxBatchSize),
		})
		return
	}

	items := make([]batchItem, len(req.Requests))
	runs := make([]application.Request, 0, len(req.Requests))
	slots := make([]int, 0, len(req.Requests))
	for i, raw := range req.Requests {
		in, err := raw.decode()
		if err != nil {
			_, detail := classify(err)
			items[i].Error = &detail
			continue
		}
		runs = append(runs, in)
		slots = append(slots, i)
	}

	for j, res := range s.forecaster.RunBatch(r.Context(), runs, s.batchConcurrency) {
		i := slots[j]
		if res.Err != nil {
			_, detail := classify(res.Err)
			items[i].Error = &detail
			continue
		}
		items[i].Forecast = res.Forecast
	}

	writeJSON(w, r, http.StatusOK, batchResponse{Results: items})
}

func requestKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func (req forecastRequest) decode() (application.Request, error) {
	if len(req.InitialState) == 0 || len(req.Weather) == 0 {
		return application.Request{}, fmt.Errorf(`%w: "initial_state" and "weather" are required`, errMalformed)
	}
	initial, err := fileio.DecodeInitialState(req.InitialState)
	if err != nil {
		return application.Request{}, malformed(err)
	}
	weather, err := fileio.DecodeWeather(req.Weather)
	if err != nil {
		return application.Request{}, malformed(err)
	}
	return application.Request{InitialState: initial, Weather: weather}, nil
}

// malformed marks decoding failures as client errors, leaving validation
// errors as they are.
func malformed(err error) error {
	var verr *domain.InputValidationError
	if errors.As(err, &verr) {
		return err
	}
	return fmt.Errorf("%w: %w", errMalformed, err)
}

var errMalformed = errors.New("malformed request")

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	return io.ReadAll(r.Body)
}

// decodeStrict decodes a single JSON value, rejecting unknown fields and
// trailing data.
func decodeStrict(body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: body must contain a single JSON object", errMalformed)
	}
	return nil
}

func (s *Server) writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)
	s.logger.Debug("rejected forecast request",
		zap.Int("status", status),
		zap.String("code", detail.Code),
		zap.Error(err),
	)
	writeError(w, r, status, detail)
}

func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("forecast failed", zap.Error(err))
	}
	writeError(w, r, status, detail)
}
