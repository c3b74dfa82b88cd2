// Package vigil provides a streaming condition-monitoring signal-processing
// core: per-stream statistical anomaly detectors, multivariate and
// correlation analyzers, spectral and vibration diagnostics, and a
// training-data collector for building machine-learning datasets from live
// sensor streams.
//
// Every analyzer follows the same online contract: it is created with a
// fixed configuration, fed timestamped samples one at a time, and
// synchronously returns zero or one Verdict per sample. Detectors own a
// bounded ring of recent samples and never share mutable state across
// streams.
//
// # Basic Usage
//
// Create a detector and feed it samples:
//
//	det := vigil.NewZScoreDetector(vigil.ZScoreConfig{
//	    WindowSize: 20,
//	    Threshold:  3.0,
//	})
//	v, err := det.Ingest(vigil.Sample{Timestamp: ts, Value: 21.5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if v != nil && v.IsAnomaly {
//	    fmt.Println("anomaly:", v.Severity, v.Metric)
//	}
//
// Run several detectors behind an Engine with normal/anomaly sinks:
//
//	eng, _ := vigil.NewEngine(vigil.EngineConfig{
//	    Anomaly: vigil.SinkFunc(func(stream string, v *vigil.Verdict) {
//	        fmt.Println(stream, v.Severity)
//	    }),
//	})
//	eng.Register(ctx, "bearing-1", det)
//	eng.Process(ctx, "bearing-1", vigil.Sample{Timestamp: ts, Value: 21.5})
//
// # Components
//
// Univariate detectors:
//   - Z-score, moving-average residual, EMA residual
//   - CUSUM mean-shift detection with reset-on-critical
//   - Interpolated percentile bounds
//   - Rate-of-change and acceleration
//   - Trend prediction (OLS regression and Holt smoothing)
//
// Multivariate analysis:
//   - Per-feature Z-score / IQR / fixed-threshold checks
//   - Mahalanobis distance with regularized pseudo-inverse
//   - Pearson, Spearman, and lagged cross-correlation
//   - Vector aggregation and splitting
//
// Spectral and vibration diagnostics:
//   - Windowed radix-2 real FFT with per-size twiddle cache
//   - Spectral peaks, centroid, spread, crest, energy
//   - Time-domain vibration features, sample entropy, autocorrelation
//   - ISO 10816-3 velocity severity zones
//   - Envelope analysis with Butterworth bandpass for bearing faults
//   - Cepstrum rahmonics for gear-mesh diagnostics
//
// Training data:
//   - Feature extraction, labeling (manual, message, RUL), validation
//   - Batch, streaming, and sliding-window buffering
//   - Shuffled train/val/test splits with CSV/JSONL/JSON export
package vigil
