package vigil

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ExportFormat selects the dataset encoding.
type ExportFormat int

const (
	// FormatCSV writes a header row plus one comma-separated row per
	// sample.
	FormatCSV ExportFormat = iota
	// FormatJSONL writes one JSON object per line.
	FormatJSONL
	// FormatJSON writes one document with dataset info and data.
	FormatJSON
)

// String returns the format's config name.
func (f ExportFormat) String() string {
	switch f {
	case FormatJSONL:
		return "jsonl"
	case FormatJSON:
		return "json"
	default:
		return "csv"
	}
}

// ParseExportFormat maps a config string to a format.
func ParseExportFormat(name string) (ExportFormat, error) {
	switch name {
	case "", "csv":
		return FormatCSV, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, newConfigError("exportFormat", "unknown export format "+name)
	}
}

func (f ExportFormat) extension() string {
	switch f {
	case FormatJSONL:
		return "jsonl"
	case FormatJSON:
		return "json"
	default:
		return "csv"
	}
}

func (f ExportFormat) contentType() string {
	switch f {
	case FormatJSONL:
		return ContentTypeNDJSON
	case FormatJSON:
		return ContentTypeJSON
	default:
		return ContentTypeCSV
	}
}

// DatasetInfo heads the JSON export and the metadata document.
type DatasetInfo struct {
	Name             string                  `json:"name"`
	Created          string                  `json:"created"`
	Samples          int                     `json:"samples"`
	Features         []string                `json:"features"`
	Classes          []string                `json:"classes"`
	FeatureDimension int                     `json:"featureDimension"`
	Statistics       map[string]FeatureStats `json:"statistics"`
}

// DatasetMetadata is the sidecar document uploaded with each export.
type DatasetMetadata struct {
	DatasetInfo       DatasetInfo     `json:"datasetInfo"`
	LabelDistribution map[string]int  `json:"labelDistribution"`
	DataQuality       QualityCounters `json:"dataQuality"`
	Partitions        map[string]int  `json:"partitions"`
}

// QualityCounters summarizes ingestion health at export time.
type QualityCounters struct {
	Received uint64 `json:"received"`
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
	Issues   uint64 `json:"issues"`
}

// jsonRecord is one row of the JSON document export.
type jsonRecord struct {
	X        []float64 `json:"x"`
	Y        string    `json:"y,omitempty"`
	Severity string    `json:"severity,omitempty"`
}

// jsonlRecord is one line of the JSONL export.
type jsonlRecord struct {
	Features  []float64 `json:"features"`
	Timestamp int64     `json:"timestamp,omitempty"`
	Label     string    `json:"label,omitempty"`
	Severity  string    `json:"severity,omitempty"`
}

// exportLocked encodes, optionally splits, and uploads the buffer.
// Caller holds the lock. The buffer is cleared only after every upload
// succeeded, keeping the data available for retry on failure.
func (c *Collector) exportLocked(ctx context.Context) error {
	if len(c.buf) == 0 {
		return nil
	}
	if c.blob == nil {
		return newExportError("export", c.config.DatasetName, ErrInvalidConfig)
	}

	samples := append([]TrainingSample(nil), c.buf...)
	if c.config.ShuffleOnExport {
		Shuffle(samples, c.config.ShuffleSeed)
	}
	split, err := SplitDataset(samples, c.config.SplitRatio)
	if err != nil {
		return err
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	base := fmt.Sprintf("%s/%s", c.config.DatasetName, stamp)

	partitions := map[string][]TrainingSample{"train": split.Train}
	if !c.config.SplitRatio.single() {
		partitions["val"] = split.Val
		partitions["test"] = split.Test
	}

	for part, rows := range partitions {
		if len(rows) == 0 {
			continue
		}
		data, err := c.encode(rows)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s/%s.%s", base, part, c.config.Format.extension())
		contentType := c.config.Format.contentType()
		if c.config.CompressionEnabled && len(rows) >= c.config.CompressionThreshold {
			if data, err = gzipBytes(data); err != nil {
				return newExportError("gzip", key, err)
			}
			key += ".gz"
			contentType = ContentTypeGzip
		}
		if err := c.blob.Put(ctx, key, data, contentType); err != nil {
			c.logger.Warn("dataset upload failed, buffer retained",
				"key", key, "error", err)
			return err
		}
	}

	if c.config.IncludeMetadata {
		meta := c.metadataLocked(samples, split)
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return newExportError("metadata", base, err)
		}
		if err := c.blob.Put(ctx, base+"/metadata.json", data, ContentTypeJSON); err != nil {
			c.logger.Warn("metadata upload failed, buffer retained",
				"key", base, "error", err)
			return err
		}
	}

	c.exports++
	c.buf = nil
	c.logger.Info("dataset exported",
		"samples", len(samples), "format", c.config.Format.String(), "key", base)
	return nil
}

// encode renders one partition in the configured format.
func (c *Collector) encode(rows []TrainingSample) ([]byte, error) {
	switch c.config.Format {
	case FormatJSONL:
		return c.encodeJSONL(rows)
	case FormatJSON:
		return c.encodeJSON(rows)
	default:
		return c.encodeCSV(rows)
	}
}

// encodeCSV writes header timestamp?, feature..., label?, severity?.
func (c *Collector) encodeCSV(rows []TrainingSample) ([]byte, error) {
	var sb strings.Builder

	withLabel := c.config.LabelMode != LabelNone
	var header []string
	if c.config.IncludeTimestamp {
		header = append(header, "timestamp")
	}
	header = append(header, c.names...)
	if withLabel {
		header = append(header, "label")
	}
	header = append(header, "severity")
	sb.WriteString(strings.Join(header, ","))
	sb.WriteByte('\n')

	for _, row := range rows {
		fields := make([]string, 0, len(header))
		if c.config.IncludeTimestamp {
			fields = append(fields, strconv.FormatInt(row.Timestamp, 10))
		}
		for _, v := range row.Features {
			fields = append(fields, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if withLabel {
			fields = append(fields, csvEscape(row.Label))
		}
		fields = append(fields, csvEscape(row.Severity))
		sb.WriteString(strings.Join(fields, ","))
		sb.WriteByte('\n')
	}
	return []byte(sb.String()), nil
}

func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

func (c *Collector) encodeJSONL(rows []TrainingSample) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		rec := jsonlRecord{
			Features: row.Features,
			Label:    row.Label,
			Severity: row.Severity,
		}
		if c.config.IncludeTimestamp {
			rec.Timestamp = row.Timestamp
		}
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (c *Collector) encodeJSON(rows []TrainingSample) ([]byte, error) {
	doc := struct {
		DatasetInfo DatasetInfo  `json:"datasetInfo"`
		Data        []jsonRecord `json:"data"`
	}{
		DatasetInfo: c.datasetInfoLocked(len(rows)),
		Data:        make([]jsonRecord, len(rows)),
	}
	for i, row := range rows {
		doc.Data[i] = jsonRecord{X: row.Features, Y: row.Label, Severity: row.Severity}
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (c *Collector) datasetInfoLocked(samples int) DatasetInfo {
	info := DatasetInfo{
		Name:             c.config.DatasetName,
		Created:          time.Now().UTC().Format(time.RFC3339),
		Samples:          samples,
		Features:         append([]string(nil), c.names...),
		FeatureDimension: len(c.names),
		Statistics:       make(map[string]FeatureStats, len(c.names)),
	}
	for label := range c.labels {
		info.Classes = append(info.Classes, label)
	}
	sort.Strings(info.Classes)
	for i, name := range c.names {
		a := c.stats[i]
		info.Statistics[name] = FeatureStats{
			Count: a.Count,
			Mean:  a.Mean(),
			Std:   a.Std(),
			Min:   a.Min,
			Max:   a.Max,
		}
	}
	return info
}

func (c *Collector) metadataLocked(samples []TrainingSample, split DatasetSplit) DatasetMetadata {
	dist := make(map[string]int)
	for _, s := range samples {
		if s.Label != "" {
			dist[s.Label]++
		}
	}
	return DatasetMetadata{
		DatasetInfo:       c.datasetInfoLocked(len(samples)),
		LabelDistribution: dist,
		DataQuality: QualityCounters{
			Received: c.received,
			Accepted: c.accepted,
			Rejected: c.rejected,
			Issues:   c.issues,
		},
		Partitions: map[string]int{
			"train": len(split.Train),
			"val":   len(split.Val),
			"test":  len(split.Test),
		},
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
