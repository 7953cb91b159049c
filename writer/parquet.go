// Package writer persists built datasets as parquet files, locally and
// optionally to S3.
package writer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"tickflow/config"
	"tickflow/internal/frame"
	"tickflow/internal/pipeline"
	"tickflow/logger"
	"tickflow/models"
)

// memoryFileWriter implements ParquetFile for in-memory writing; the buffer
// is uploaded to S3 afterwards.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// WriteLocal serializes the dataset under the configured output directory
// and returns the file path.
func WriteLocal(ds *pipeline.Dataset, cfg *config.Config) (string, error) {
	log := logger.GetLogger().WithComponent("writer").WithFields(logger.Fields{
		"kind": ds.Kind.String(),
		"rows": ds.Frame.NumRows(),
	})

	dir := filepath.Join(cfg.Writer.OutputDir, partitionPath(ds, cfg))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.parquet", ds.Kind.String(), ds.Report.RunID))

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return "", fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer fw.Close()

	if err := writeRows(fw, ds, cfg.Writer.Compression); err != nil {
		return "", err
	}

	log.WithFields(logger.Fields{"path": path}).Info("dataset written")
	return path, nil
}

// writeRows streams the dataset's rows into the parquet file.
func writeRows(fw source.ParquetFile, ds *pipeline.Dataset, compression string) error {
	var pw *writer.ParquetWriter
	var err error
	switch ds.Kind {
	case models.KindTrade:
		pw, err = writer.NewParquetWriter(fw, new(models.TradeRow), 4)
	default:
		pw, err = writer.NewParquetWriter(fw, new(models.QuoteRow), 4)
	}
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(compression)

	n := ds.Frame.NumRows()
	for i := 0; i < n; i++ {
		row, err := rowAt(ds.Frame, ds.Kind, i)
		if err != nil {
			return err
		}
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// rowAt projects one frame row into its parquet struct. Null numeric cells
// become zero values; the pipeline's filters guarantee the columns that
// matter are populated.
func rowAt(f *frame.Frame, kind models.Kind, i int) (interface{}, error) {
	idx := f.Column(models.ColIndex)
	stock := f.Column(models.ColStock)
	if idx == nil || stock == nil {
		return nil, fmt.Errorf("dataset missing %q or %q", models.ColIndex, models.ColStock)
	}
	ts, _ := idx.Time(i)
	name, _ := stock.Str(i)

	if kind == models.KindTrade {
		row := models.TradeRow{Timestamp: ts.UnixMicro(), Stock: name}
		if c := f.Column(models.ColTradePrice); c != nil {
			row.Price, _ = c.Float(i)
		}
		if c := f.Column(models.ColTradeVolume); c != nil {
			row.Volume, _ = c.Float(i)
		}
		return row, nil
	}

	row := models.QuoteRow{Timestamp: ts.UnixMicro(), Stock: name}
	if c := f.Column(models.ColBidPrice); c != nil {
		row.BidPrice, _ = c.Float(i)
	}
	if c := f.Column(models.ColAskPrice); c != nil {
		row.AskPrice, _ = c.Float(i)
	}
	if c := f.Column(models.ColBidVolume); c != nil {
		row.BidVolume, _ = c.Float(i)
	}
	if c := f.Column(models.ColAskVolume); c != nil {
		row.AskVolume, _ = c.Float(i)
	}
	return row, nil
}

func compressionCodec(name string) parquet.CompressionCodec {
	switch strings.ToLower(name) {
	case "gzip":
		return parquet.CompressionCodec_GZIP
	case "none", "uncompressed":
		return parquet.CompressionCodec_UNCOMPRESSED
	default:
		return parquet.CompressionCodec_SNAPPY
	}
}

// partitionPath renders the configured hive-style partition layout for a
// dataset, keyed by the run's start time.
func partitionPath(ds *pipeline.Dataset, cfg *config.Config) string {
	var parts []string
	for _, k := range cfg.Writer.Partitioning.AdditionalKeys {
		switch k {
		case "kind":
			parts = append(parts, fmt.Sprintf("kind=%s", ds.Kind.String()))
		case "run":
			parts = append(parts, fmt.Sprintf("run=%s", ds.Report.RunID))
		}
	}

	ts := ds.Report.StartedAt
	timePath := cfg.Writer.Partitioning.TimeFormat
	timePath = strings.ReplaceAll(timePath, "{year}", fmt.Sprintf("%04d", ts.Year()))
	timePath = strings.ReplaceAll(timePath, "{month}", fmt.Sprintf("%02d", ts.Month()))
	timePath = strings.ReplaceAll(timePath, "{day}", fmt.Sprintf("%02d", ts.Day()))
	if timePath != "" {
		parts = append(parts, timePath)
	}

	return filepath.Join(parts...)
}
