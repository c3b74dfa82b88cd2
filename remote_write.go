package vigil

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

// maxRemoteWriteBody bounds a single remote-write request body.
const maxRemoteWriteBody = 16 << 20

// StreamKeyFunc derives the engine stream key for a series from its
// metric name and labels (__name__ excluded).
type StreamKeyFunc func(metric string, labels map[string]string) string

// MetricStreamKey routes every series of a metric to one stream.
func MetricStreamKey(metric string, _ map[string]string) string {
	return metric
}

// SeriesStreamKey routes each distinct label set to its own stream,
// appending the sorted labels to the metric name.
func SeriesStreamKey(metric string, labels map[string]string) string {
	if len(labels) == 0 {
		return metric
	}
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return metric + "{" + strings.Join(parts, ",") + "}"
}

// RemoteWriteHandler accepts Prometheus remote-write requests and
// feeds the decoded samples to a stream engine. Samples within one
// series are processed in request order.
type RemoteWriteHandler struct {
	engine  *Engine
	keyFunc StreamKeyFunc
	logger  *slog.Logger
}

// NewRemoteWriteHandler creates a handler. A nil keyFunc routes by
// metric name.
func NewRemoteWriteHandler(engine *Engine, keyFunc StreamKeyFunc) *RemoteWriteHandler {
	if keyFunc == nil {
		keyFunc = MetricStreamKey
	}
	return &RemoteWriteHandler{
		engine:  engine,
		keyFunc: keyFunc,
		logger:  slog.Default().With("component", "remotewrite"),
	}
}

// ServeHTTP implements http.Handler for the remote-write endpoint.
func (h *RemoteWriteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRemoteWriteBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	decoded, err := snappy.Decode(nil, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req prompb.WriteRequest
	if err := req.Unmarshal(decoded); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.ingest(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ingest routes every sample of the request through the engine.
// Stale markers and non-finite values are skipped; rejected samples
// are logged and do not fail the request.
func (h *RemoteWriteHandler) ingest(r *http.Request, req *prompb.WriteRequest) error {
	ctx := r.Context()
	for i := range req.Timeseries {
		ts := &req.Timeseries[i]
		metric := ""
		labels := make(map[string]string)
		for _, label := range ts.Labels {
			if label.Name == "__name__" {
				metric = label.Value
			} else {
				labels[label.Name] = label.Value
			}
		}
		if metric == "" {
			continue
		}
		stream := h.keyFunc(metric, labels)

		for _, sample := range ts.Samples {
			if math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
				continue
			}
			_, err := h.engine.Process(ctx, stream, Sample{
				Timestamp: sample.Timestamp,
				Value:     sample.Value,
			})
			if err == nil {
				continue
			}
			var ve *ValidationError
			if errors.As(err, &ve) {
				h.logger.Warn("sample rejected", "stream", stream, "error", err)
				continue
			}
			return err
		}
	}
	return nil
}
